// Package events publishes content lifecycle notifications.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// Event types.
const (
	TypeContentRegenerated = "content.regenerated"
	TypeAssetRenamed       = "asset.renamed"
)

// ContentRegenerated is sent after a full regeneration wrote the article set.
type ContentRegenerated struct {
	RunID        string   `json:"runId"`
	ArticleCount int      `json:"articleCount"`
	Slugs        []string `json:"slugs"`
}

// AssetRenamed is sent when the image compressor changed an asset's URL.
type AssetRenamed struct {
	OldURL string `json:"oldUrl"`
	NewURL string `json:"newUrl"`
}

// Envelope is the wire form of every event.
type Envelope struct {
	Type string          `json:"type"`
	Time time.Time       `json:"time"`
	Data json.RawMessage `json:"data"`
}

// Publisher sends events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data any) error
	Close() error
}

// NoopPublisher drops every event (default when events are not configured).
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, any) error { return nil }
func (NoopPublisher) Close() error                               { return nil }

// Encode wraps data in an Envelope and marshals it.
func Encode(eventType string, data any, at time.Time) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: eventType, Time: at.UTC(), Data: raw})
}
