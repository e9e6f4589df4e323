package bridge

import (
	"encoding/json"
	"fmt"
	"time"
)

// ProtocolVersion is the renderer bridge protocol spoken by this server.
const ProtocolVersion = "1"

type MessageType string

const (
	MessageHello      MessageType = "hello"
	MessageViewer     MessageType = "viewer"
	MessageWelcome    MessageType = "welcome"
	MessageVisibility MessageType = "visibility"
	MessageEvict      MessageType = "evict"
)

// Envelope wraps every JSON text frame.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Seq       uint64          `json:"seq"`
	Payload   json.RawMessage `json:"payload"`
}

// Hello is the first message a renderer sends.
type Hello struct {
	ProtocolVersion string `json:"protocolVersion"`
	Client          string `json:"client,omitempty"`
}

// Viewer carries the viewer position in world units. Only X and Z drive
// streaming.
type Viewer struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type Welcome struct {
	SessionID       string `json:"sessionId"`
	ProtocolVersion string `json:"protocolVersion"`
	ChunkWidth      int    `json:"chunkWidth"`
	ChunkHeight     int    `json:"chunkHeight"`
	ViewDistance    int    `json:"viewDistance"`
	AtlasBlocks     int    `json:"atlasBlocks"`
}

type Visibility struct {
	ChunkX  int    `json:"chunkX"`
	ChunkZ  int    `json:"chunkZ"`
	Variant string `json:"variant"`
	Visible bool   `json:"visible"`
}

type Evict struct {
	ChunkX  int    `json:"chunkX"`
	ChunkZ  int    `json:"chunkZ"`
	Variant string `json:"variant"`
}

func Encode(msg Envelope) ([]byte, error) {
	return json.Marshal(msg)
}

func Decode(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}

// NewEnvelope marshals payload into an envelope stamped with now.
func NewEnvelope(msgType MessageType, seq uint64, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	return Envelope{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Seq:       seq,
		Payload:   raw,
	}, nil
}

// DecodePayload unmarshals the envelope payload into v.
func DecodePayload(env Envelope, v any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("%s: decode payload: %w", env.Type, err)
	}
	return nil
}
