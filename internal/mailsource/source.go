// Package mailsource defines the mailbox the ingestion pass reads bank
// notifications from.
package mailsource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MessageRef identifies a message returned by a search.
type MessageRef struct {
	ID       string
	ThreadID string
}

// Part is one node of a message's MIME tree. Data is base64url encoded,
// as mail APIs deliver it.
type Part struct {
	MimeType string
	Filename string
	Data     string
	Parts    []Part
}

// Message is a fetched notification.
type Message struct {
	ID         string
	Headers    map[string]string
	Parts      []Part
	Snippet    string
	ReceivedAt time.Time
}

// Header returns a header value, matching the name case-insensitively.
func (m *Message) Header(name string) string {
	if v, ok := m.Headers[name]; ok {
		return v
	}
	for k, v := range m.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Ref returns the reference of a fetched message.
func (m *Message) Ref() MessageRef {
	return MessageRef{ID: m.ID}
}

// Source searches, fetches and consumes notification messages.
type Source interface {
	Search(ctx context.Context, query string, max int) ([]MessageRef, error)
	Fetch(ctx context.Context, ref MessageRef) (*Message, error)
	// MarkConsumed makes the message invisible to future searches.
	MarkConsumed(ctx context.Context, ref MessageRef) error
}

// SourceAuthError means the mailbox credentials were rejected or could not
// be refreshed. It aborts an ingestion pass.
type SourceAuthError struct {
	Op  string
	Err error
}

func (e *SourceAuthError) Error() string {
	return fmt.Sprintf("mail source authentication failed during %s: %v", e.Op, e.Err)
}

func (e *SourceAuthError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err carries a SourceAuthError.
func IsAuthError(err error) bool {
	var authErr *SourceAuthError
	return errors.As(err, &authErr)
}
