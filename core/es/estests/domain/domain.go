// Package domain holds the aggregate fixture shared by the es tests.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/codewandler/sourcing-go/core/es"
)

type (
	Order struct {
		es.BaseAggregate

		Items     []string `json:"items"`
		Confirmed bool     `json:"confirmed"`
	}

	ItemAdded struct {
		SKU string `json:"sku"`
	}

	OrderConfirmed struct{}
)

func (e ItemAdded) Validate() error {
	if e.SKU == "" {
		return errors.New("sku is required")
	}
	return nil
}

func (o *Order) Snapshot() (data []byte, err error) { return json.Marshal(o) }
func (o *Order) RestoreSnapshot(data []byte) error  { return json.Unmarshal(data, o) }
func (o *Order) GetAggType() string                 { return "order" }
func (o *Order) Register(r es.Registrar) {
	es.RegisterEvents(r, es.Event[ItemAdded](), es.Event[OrderConfirmed]())
}

func (o *Order) Apply(event any) error {
	switch e := event.(type) {
	case *ItemAdded:
		o.Items = append(o.Items, e.SKU)
		return nil
	case *OrderConfirmed:
		o.Confirmed = true
		return nil
	}
	return o.BaseAggregate.Apply(event)
}

var _ es.Snapshottable = &Order{}

// === Commands ===

func (o *Order) AddItem(sku string) error {
	if o.Confirmed {
		return fmt.Errorf("order %s is confirmed, no more items", o.GetID())
	}
	return es.RaiseAndApply(o, &ItemAdded{SKU: sku})
}

func (o *Order) Confirm() error {
	if o.Confirmed {
		return fmt.Errorf("order %s is already confirmed", o.GetID())
	}
	if len(o.Items) == 0 {
		return fmt.Errorf("order %s has no items", o.GetID())
	}
	return es.RaiseAndApply(o, &OrderConfirmed{})
}

// === Read ===

func (o *Order) NumItems() int { return len(o.Items) }

func NewOrder(id string) *Order {
	o := &Order{}
	o.SetID(id)
	return o
}
