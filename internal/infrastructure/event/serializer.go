package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/shared"
)

// Envelope decoding errors. Both mean the message can never be handled and must not be retried.
var (
	ErrUnknownEventType  = errors.New("unknown event type")
	ErrMalformedEnvelope = errors.New("malformed envelope")
)

// IsPermanent reports whether a decode error can never succeed on redelivery
func IsPermanent(err error) bool {
	return errors.Is(err, ErrUnknownEventType) || errors.Is(err, ErrMalformedEnvelope)
}

// EventSerializer handles JSON serialization/deserialization of envelopes.
// The set of registered types is the allow-list consumers accept.
type EventSerializer struct {
	mu       sync.RWMutex
	registry map[string]reflect.Type // eventType -> envelope struct type
}

// NewEventSerializer creates a new event serializer
func NewEventSerializer() *EventSerializer {
	return &EventSerializer{
		registry: make(map[string]reflect.Type),
	}
}

// Register registers an event type for deserialization.
// eventInstance is usually a zero envelope such as &receipt.ReceiptReadyEvent{}.
func (s *EventSerializer) Register(eventType string, eventInstance shared.DomainEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := reflect.TypeOf(eventInstance)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	s.registry[eventType] = t
}

// Serialize serializes a domain event to JSON bytes
func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	return json.Marshal(event)
}

// PeekHeader decodes only the envelope header, without looking at data
func PeekHeader(data []byte) (shared.EnvelopeHeader, error) {
	var h shared.EnvelopeHeader
	if err := json.Unmarshal(data, &h); err != nil {
		return h, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if h.Type == "" || h.MessageID == uuid.Nil || h.Tenant == uuid.Nil {
		return h, fmt.Errorf("%w: missing type, message id or tenant id", ErrMalformedEnvelope)
	}
	return h, nil
}

// Deserialize validates the envelope type against the allow-list, then decodes its data
func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	s.mu.RLock()
	t, ok := s.registry[eventType]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}

	header, err := PeekHeader(data)
	if err != nil {
		return nil, err
	}
	if header.Type != eventType {
		return nil, fmt.Errorf("%w: envelope type %q does not match %q", ErrMalformedEnvelope, header.Type, eventType)
	}

	eventPtr := reflect.New(t).Interface()
	if err := json.Unmarshal(data, eventPtr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	event, ok := eventPtr.(shared.DomainEvent)
	if !ok {
		return nil, fmt.Errorf("deserialized object does not implement DomainEvent")
	}

	return event, nil
}

// IsRegistered checks if an event type is registered
func (s *EventSerializer) IsRegistered(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.registry[eventType]
	return ok
}

// RegisteredTypes returns all registered event types, sorted
func (s *EventSerializer) RegisteredTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make([]string, 0, len(s.registry))
	for t := range s.registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
