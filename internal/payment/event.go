package payment

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event is a decoded processor webhook notification
type Event struct {
	ID       string
	Type     string
	IntentID string
	// Status is empty for event types that do not settle a payment
	Status Status
}

var ErrMalformedEvent = errors.New("malformed webhook event")

type eventEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID     string `json:"id"`
			Object string `json:"object"`
		} `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes a webhook payload. Only payment intent events carry an
// IntentID and Status.
func ParseEvent(payload []byte) (*Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.ID == "" || env.Type == "" {
		return nil, fmt.Errorf("%w: missing id or type", ErrMalformedEvent)
	}

	evt := &Event{ID: env.ID, Type: env.Type}
	switch env.Type {
	case "payment_intent.succeeded":
		evt.Status = StatusSucceeded
	case "payment_intent.payment_failed", "payment_intent.canceled":
		evt.Status = StatusFailed
	}
	if evt.Status != "" {
		if env.Data.Object.ID == "" {
			return nil, fmt.Errorf("%w: missing payment intent id", ErrMalformedEvent)
		}
		evt.IntentID = env.Data.Object.ID
	}
	return evt, nil
}
