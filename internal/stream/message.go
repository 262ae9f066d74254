package stream

import (
	"encoding/json"
	"fmt"

	"github.com/splax/livelog/internal/domain"
)

// Message type tags carried in the "type" field of every stream frame.
const (
	TypeError       = "error"
	TypeClientCount = "client-count"
	TypePing        = "ping"
)

// Message is a frame pushed to subscribers. The set of implementations is closed.
type Message interface {
	MessageType() string
	isMessage()
}

// ErrorMessage carries a reported error.
type ErrorMessage struct {
	Error domain.ErrorEvent
}

// ClientCountMessage announces the number of live subscribers.
type ClientCountMessage struct {
	Count int
}

// PingMessage keeps idle connections alive.
type PingMessage struct{}

// MessageType returns TypeError.
func (ErrorMessage) MessageType() string { return TypeError }

// MessageType returns TypeClientCount.
func (ClientCountMessage) MessageType() string { return TypeClientCount }

// MessageType returns TypePing.
func (PingMessage) MessageType() string { return TypePing }

func (ErrorMessage) isMessage()       {}
func (ClientCountMessage) isMessage() {}
func (PingMessage) isMessage()        {}

// MarshalJSON encodes the frame as {"type":"error","error":{...}}.
func (m ErrorMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  string            `json:"type"`
		Error domain.ErrorEvent `json:"error"`
	}{TypeError, m.Error})
}

// MarshalJSON encodes the frame as {"type":"client-count","count":N}.
func (m ClientCountMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  string `json:"type"`
		Count int    `json:"count"`
	}{TypeClientCount, m.Count})
}

// MarshalJSON encodes the frame as {"type":"ping"}.
func (PingMessage) MarshalJSON() ([]byte, error) {
	return []byte(`{"type":"ping"}`), nil
}

// Encode serializes a message into its tagged JSON form.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses a tagged JSON frame back into a typed message.
func Decode(data []byte) (Message, error) {
	var envelope struct {
		Type  string             `json:"type"`
		Error *domain.ErrorEvent `json:"error"`
		Count int                `json:"count"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode stream message: %w", err)
	}
	switch envelope.Type {
	case TypeError:
		if envelope.Error == nil {
			return nil, fmt.Errorf("decode stream message: error frame without payload")
		}
		return ErrorMessage{Error: *envelope.Error}, nil
	case TypeClientCount:
		return ClientCountMessage{Count: envelope.Count}, nil
	case TypePing:
		return PingMessage{}, nil
	default:
		return nil, fmt.Errorf("decode stream message: unknown type %q", envelope.Type)
	}
}
