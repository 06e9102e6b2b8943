package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/imrishuroy/go-refund-reconciler/internal/refunds"
	"github.com/imrishuroy/go-refund-reconciler/internal/validation"
)

// Kind discriminates push events.
type Kind string

// Push event names as they appear on the wire.
const (
	KindCreated Kind = "refund-payment-created"
	KindUpdated Kind = "refund-payment-updated"
)

// Event is a decoded push notification. Record is always a full payload.
type Event struct {
	Kind      Kind
	Record    refunds.Record
	MessageID string // transport id, empty for webhook pushes
}

// Envelope is the wire shape of a push notification.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Malformed payload reasons.
const (
	ReasonInvalidJSON   = "invalid_json"
	ReasonUnknownEvent  = "unknown_event"
	ReasonMissingData   = "missing_data"
	ReasonInvalidRecord = "invalid_record"
)

// ErrMalformedPayload matches every MalformedPayloadError with errors.Is.
var ErrMalformedPayload = errors.New("malformed payload")

// MalformedPayloadError is returned when a push payload fails shape
// validation. Such payloads never reach the store.
type MalformedPayloadError struct {
	Reason string
	Err    error
}

func (e *MalformedPayloadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("malformed payload: %s", e.Reason)
	}
	return fmt.Sprintf("malformed payload: %s: %v", e.Reason, e.Err)
}

func (e *MalformedPayloadError) Unwrap() error { return e.Err }

func (e *MalformedPayloadError) Is(target error) bool { return target == ErrMalformedPayload }

var recordValidator = validation.New()

// Decode parses and validates a wire envelope.
func Decode(body []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Event{}, &MalformedPayloadError{Reason: ReasonInvalidJSON, Err: err}
	}

	kind := Kind(env.Event)
	if kind != KindCreated && kind != KindUpdated {
		return Event{}, &MalformedPayloadError{Reason: ReasonUnknownEvent, Err: fmt.Errorf("event %q", env.Event)}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return Event{}, &MalformedPayloadError{Reason: ReasonMissingData}
	}

	var rec refunds.Record
	if err := json.Unmarshal(env.Data, &rec); err != nil {
		return Event{}, &MalformedPayloadError{Reason: ReasonInvalidJSON, Err: err}
	}
	if err := recordValidator.Struct(rec); err != nil {
		return Event{}, &MalformedPayloadError{Reason: ReasonInvalidRecord, Err: err}
	}

	return Event{Kind: kind, Record: rec}, nil
}

// Encode builds the wire envelope for ev.
func Encode(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev.Record)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return json.Marshal(Envelope{Event: string(ev.Kind), Data: data})
}
