package kvsession

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"
)

// sessionEnvelope is the persisted form of a session. The store sees only
// the resulting opaque bytes; the envelope format is owned by this layer.
type sessionEnvelope struct {
	Values    map[string]any
	CreatedAt time.Time
	ExpiresAt time.Time
}

func init() {
	gob.Register(sessionEnvelope{})
	gob.Register(map[string]any{})
}

// encodeEnvelope serializes env into buf.
func encodeEnvelope(buf *bytes.Buffer, env sessionEnvelope) error {
	if err := gob.NewEncoder(buf).Encode(env); err != nil {
		return fmt.Errorf("failed to encode session data: %w", err)
	}
	return nil
}

// decodeEnvelope deserializes a payload produced by encodeEnvelope.
func decodeEnvelope(data []byte) (sessionEnvelope, error) {
	reader := readerPool.Get().(*bytes.Reader)
	reader.Reset(data)
	defer readerPool.Put(reader)

	var env sessionEnvelope
	if err := gob.NewDecoder(reader).Decode(&env); err != nil {
		return sessionEnvelope{}, fmt.Errorf("failed to decode session data: %w", err)
	}
	if env.Values == nil {
		env.Values = make(map[string]any)
	}
	return env, nil
}
