// Package notify announces aggregate changes to downstream consumers.
package notify

import (
	"context"
	"encoding/json"
	"strings"
)

// Publisher delivers a payload on a subject
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte) error
	Close() error
}

// EntityUpdate tells subscribers that an aggregate changed
type EntityUpdate struct {
	Kind        string `json:"kind"`
	ID          string `json:"id"`
	EventKey    string `json:"eventKey"`
	EventName   string `json:"eventName"`
	BlockNumber uint64 `json:"blockNumber"`
}

// Subject returns the subject an update of kind is published on
func Subject(prefix, kind string) string {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		return kind
	}
	return prefix + "." + kind
}

// PublishUpdate encodes u and publishes it under prefix
func PublishUpdate(ctx context.Context, p Publisher, prefix string, u EntityUpdate) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return p.Publish(ctx, Subject(prefix, u.Kind), payload)
}

// NopPublisher drops everything
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, subject string, payload []byte) error { return nil }

func (NopPublisher) Close() error { return nil }
