package xdispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Codec turns a command (or any dispatch payload) into bytes for adapters
// that keep a record of it, such as the Redis audit trail. The dispatcher
// itself never encodes commands.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// JSONCodec encodes payloads as JSON; registered as "json".
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func (JSONCodec) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }
func (JSONCodec) Name() string                    { return "json" }

// CodecFactory returns a ready Codec. Adapters resolve codecs by name from
// their config, so factories are looked up rather than passed around.
type CodecFactory func() Codec

var (
	ErrEmptyCodecName = errors.New("xdispatch: codec name must not be empty")
	ErrNilCodec       = errors.New("xdispatch: codec factory must not be nil")
)

var (
	codecsMu sync.RWMutex
	codecs   = map[string]CodecFactory{
		"json": func() Codec { return JSONCodec{} },
	}
)

// RegisterCodec makes a codec available to adapter configs under name,
// replacing any earlier registration.
func RegisterCodec(name string, factory CodecFactory) error {
	switch {
	case name == "":
		return ErrEmptyCodecName
	case factory == nil:
		return ErrNilCodec
	}
	codecsMu.Lock()
	codecs[name] = factory
	codecsMu.Unlock()
	return nil
}

// NewCodec resolves the codec an adapter config names.
func NewCodec(name string) (Codec, error) {
	codecsMu.RLock()
	f, ok := codecs[name]
	codecsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("xdispatch: codec %q not registered", name)
	}
	return f(), nil
}
