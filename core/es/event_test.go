package es

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type (
	plainEvent struct {
		Value int `json:"value"`
	}

	namedEvent struct{}

	versionedEvent struct{}
)

func (namedEvent) EventType() string { return "my.custom.name" }

func (versionedEvent) EventSchemaVersion() int { return 3 }

func TestEventRegistry_Decode(t *testing.T) {
	r := NewRegistry()
	RegisterEvents(r, Event[plainEvent]())

	data, err := json.Marshal(&plainEvent{Value: 42})
	require.NoError(t, err)

	ev, err := r.Decode(Envelope{Type: "plainEvent", Data: data})
	require.NoError(t, err)
	pe, ok := ev.(*plainEvent)
	require.True(t, ok)
	require.Equal(t, 42, pe.Value)

	t.Run("each decode yields a fresh instance", func(t *testing.T) {
		again, err := r.Decode(Envelope{Type: "plainEvent", Data: data})
		require.NoError(t, err)
		require.NotSame(t, ev, again)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := r.Decode(Envelope{Type: "Unregistered"})
		require.ErrorIs(t, err, ErrUnknownEventType)
	})
}

func TestEventTypeOf(t *testing.T) {
	require.Equal(t, "plainEvent", getEventTypeOf(&plainEvent{}))
	require.Equal(t, "my.custom.name", getEventTypeOf(&namedEvent{}))

	require.Equal(t, 1, getEventSchemaVersionOf(&plainEvent{}))
	require.Equal(t, 3, getEventSchemaVersionOf(&versionedEvent{}))
}

func TestEnvelope_Validate(t *testing.T) {
	valid := Envelope{
		ID:         "e-1",
		StreamType: "order",
		StreamID:   "o-1",
		Type:       "ItemAdded",
		OccurredAt: time.Now(),
	}
	require.NoError(t, valid.Validate())

	for name, mutate := range map[string]func(*Envelope){
		"id":          func(e *Envelope) { e.ID = "" },
		"stream id":   func(e *Envelope) { e.StreamID = "" },
		"stream type": func(e *Envelope) { e.StreamType = "" },
		"type":        func(e *Envelope) { e.Type = "" },
		"occurred at": func(e *Envelope) { e.OccurredAt = time.Time{} },
	} {
		t.Run(name, func(t *testing.T) {
			e := valid
			mutate(&e)
			require.Error(t, e.Validate())
		})
	}
}
