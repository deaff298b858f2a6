package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/discovery/internal/model"
)

// Event topic constants
const (
	TopicPrefix = "discovery."

	// TopicSearchPerformed is published once per retrieval that settled
	// successfully with at least one hit.
	TopicSearchPerformed = "discovery.search.performed"

	// Session lifecycle events, published by the session server.
	TopicSessionOpened = "discovery.session.opened"
	TopicSessionClosed = "discovery.session.closed"

	// TopicAll matches every discovery topic on NATS.
	TopicAll = "discovery.>"
)

// Event types

// SearchPerformed carries the resolved options and a summary of the result.
type SearchPerformed struct {
	Search *model.SearchEvent `json:"search"`
}

type SessionOpened struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
	Variant   string `json:"variant"`
}

type SessionClosed struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// DecodeSearchPerformed parses a raw search-performed payload.
func DecodeSearchPerformed(data []byte) (*SearchPerformed, error) {
	var ev SearchPerformed
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decoding search event: %w", err)
	}
	if ev.Search == nil {
		return nil, fmt.Errorf("decoding search event: missing search record")
	}
	return &ev, nil
}
