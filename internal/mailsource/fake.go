package mailsource

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FakeSource is an in-memory Source. Queries are matched as substrings of
// the message body so tests can reuse one message for several rules.
type FakeSource struct {
	mu sync.Mutex

	Messages map[string]*Message
	// Order lists message ids in search order, newest first.
	Order []string

	SearchError error
	FetchErrors map[string]error
	MarkError   error

	consumed  map[string]bool
	searches  []string
	markCalls int
}

// NewFakeSource returns a source holding msgs in the given order.
func NewFakeSource(msgs ...*Message) *FakeSource {
	f := &FakeSource{
		Messages:    map[string]*Message{},
		FetchErrors: map[string]error{},
		consumed:    map[string]bool{},
	}
	for _, m := range msgs {
		f.Add(m)
	}
	return f
}

// Add appends a message.
func (f *FakeSource) Add(m *Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Messages[m.ID] = m
	f.Order = append(f.Order, m.ID)
}

func (f *FakeSource) Search(ctx context.Context, query string, max int) ([]MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, query)
	if f.SearchError != nil {
		return nil, f.SearchError
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var refs []MessageRef
	for _, id := range f.Order {
		if f.consumed[id] {
			continue
		}
		m := f.Messages[id]
		if query != "" && !strings.Contains(ExtractText(m), query) && m.Header("Subject") != query {
			continue
		}
		refs = append(refs, MessageRef{ID: id})
		if max > 0 && len(refs) == max {
			break
		}
	}
	return refs, nil
}

func (f *FakeSource) Fetch(ctx context.Context, ref MessageRef) (*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FetchErrors[ref.ID]; err != nil {
		return nil, err
	}
	m, ok := f.Messages[ref.ID]
	if !ok {
		return nil, fmt.Errorf("message %s not found", ref.ID)
	}
	return m, nil
}

func (f *FakeSource) MarkConsumed(ctx context.Context, ref MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls++
	if f.MarkError != nil {
		return f.MarkError
	}
	f.consumed[ref.ID] = true
	return nil
}

// Consumed reports whether the message was marked consumed.
func (f *FakeSource) Consumed(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.consumed[id]
}

// Searches returns the queries seen so far.
func (f *FakeSource) Searches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.searches...)
}

// TextMessage builds a single-part text/plain message.
func TextMessage(id, body string) *Message {
	return &Message{
		ID:      id,
		Headers: map[string]string{},
		Parts:   []Part{{MimeType: "text/plain", Data: EncodeData(body)}},
	}
}
