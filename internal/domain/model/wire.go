package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrPayload marks an inbound payload that cannot be decoded.
var ErrPayload = errors.New("invalid action payload")

// WireMessage is the JSON shape nodes publish over MQTT or POST to /events.
type WireMessage struct {
	NodeID        string `json:"node_id,omitempty"`
	Topic         string `json:"topic,omitempty"`
	ActionID      string `json:"action_id"`
	NodeTimestamp *int64 `json:"node_timestamp"`
}

// DecodeMessage parses a payload. fallbackTopic is used when the payload
// carries no topic, as on MQTT where the transport topic names the
// instrument. A missing timestamp yields a negative one so normalization
// rejects the message as malformed.
func DecodeMessage(data []byte, fallbackTopic string, receivedAt time.Time) (Message, error) {
	var w WireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrPayload, err)
	}
	return w.Message(fallbackTopic, receivedAt), nil
}

// Message converts the wire form.
func (w WireMessage) Message(fallbackTopic string, receivedAt time.Time) Message {
	m := Message{
		NodeID:        w.NodeID,
		Topic:         w.Topic,
		ActionID:      w.ActionID,
		NodeTimestamp: -1,
		ReceivedAt:    receivedAt,
	}
	if m.Topic == "" {
		m.Topic = fallbackTopic
	}
	if w.NodeTimestamp != nil {
		m.NodeTimestamp = *w.NodeTimestamp
	}
	return m
}
