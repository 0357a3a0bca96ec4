package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
	"github.com/openfoodnetwork/ofn-backend/pkg/outbox/payloads"
)

// ErrNoDecoder is returned for an event type and version nobody registered.
var ErrNoDecoder = errors.New("no decoder registered")

type decoderFunc func(payload json.RawMessage) (any, error)

type schema struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry maps each payload schema to its decoder. It is filled at
// startup and read-only afterwards.
type DecoderRegistry struct {
	decoders map[schema]decoderFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: make(map[schema]decoderFunc)}
}

// Register replaces any decoder already set for eventType at version.
func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder decoderFunc) {
	r.decoders[schema{eventType: eventType, version: version}] = decoder
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	decode, ok := r.decoders[schema{eventType: eventType, version: version}]
	if !ok {
		return nil, fmt.Errorf("%w for %s v%d", ErrNoDecoder, eventType, version)
	}
	return decode(payload)
}

// DefaultDecoders knows every payload the backend emits.
func DefaultDecoders() *DecoderRegistry {
	r := NewDecoderRegistry()
	r.Register(enums.EventProductsCacheInvalidated, 1, jsonDecoder[payloads.ProductsCacheInvalidatedEvent])
	r.Register(enums.EventOrderCompleted, 1, jsonDecoder[payloads.OrderCompletedEvent])
	return r
}

func jsonDecoder[T any](payload json.RawMessage) (any, error) {
	out := new(T)
	if err := json.Unmarshal(payload, out); err != nil {
		return nil, err
	}
	return out, nil
}
