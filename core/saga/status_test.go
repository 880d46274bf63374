package saga

import "testing"

func TestStatus_Terminal(t *testing.T) {
	terminal := map[Status]bool{
		StatusPending:      false,
		StatusRunning:      false,
		StatusCompensating: false,
		StatusCompleted:    true,
		StatusCompensated:  true,
		StatusCancelled:    true,
		StatusFailed:       true,
	}
	for s, want := range terminal {
		if got := s.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", s, got, want)
		}
	}
}

func TestStatus_CanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPending, StatusRunning},
		{StatusPending, StatusCancelled},
		{StatusRunning, StatusPending},
		{StatusRunning, StatusCompleted},
		{StatusRunning, StatusCompensating},
		{StatusRunning, StatusCancelled},
		{StatusRunning, StatusFailed},
		{StatusCompensating, StatusCompensated},
		{StatusCompensating, StatusCancelled},
		{StatusCompensating, StatusFailed},
	}
	for _, tr := range allowed {
		if !tr.from.CanTransition(tr.to) {
			t.Errorf("%s -> %s must be allowed", tr.from, tr.to)
		}
	}

	denied := []struct{ from, to Status }{
		{StatusPending, StatusCompleted},
		{StatusPending, StatusCompensating},
		{StatusRunning, StatusCompensated},
		{StatusCompleted, StatusRunning},
		{StatusCancelled, StatusPending},
		{StatusCompensated, StatusCompensating},
		{StatusFailed, StatusPending},
	}
	for _, tr := range denied {
		if tr.from.CanTransition(tr.to) {
			t.Errorf("%s -> %s must be denied", tr.from, tr.to)
		}
	}
}
