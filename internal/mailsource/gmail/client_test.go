package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"fjacquet/networth-sync/internal/logging"
	"fjacquet/networth-sync/internal/mailsource"
)

type fakeGmail struct {
	mu        sync.Mutex
	status    int
	lastQuery string
	lastMax   string
	modified  map[string][]string
}

func (f *fakeGmail) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		if f.fail(w) {
			return
		}
		q := r.URL.Query().Get("q")
		f.mu.Lock()
		f.lastQuery = q
		f.lastMax = r.URL.Query().Get("maxResults")
		_, m1Read := f.modified["m1"]
		f.mu.Unlock()
		messages := []map[string]string{}
		if !m1Read || !strings.Contains(q, "is:unread") {
			messages = append(messages, map[string]string{"id": "m1", "threadId": "t1"})
		}
		messages = append(messages, map[string]string{"id": "m2", "threadId": "t2"})
		writeJSON(w, map[string]any{"messages": messages})
	})
	mux.HandleFunc("/gmail/v1/users/me/messages/m1", func(w http.ResponseWriter, r *http.Request) {
		if f.fail(w) {
			return
		}
		writeJSON(w, map[string]any{
			"id":           "m1",
			"snippet":      "Payment CHF 45.00",
			"internalDate": "1717408800000",
			"payload": map[string]any{
				"mimeType": "multipart/alternative",
				"headers": []map[string]string{
					{"name": "Subject", "value": "Card payment"},
					{"name": "From", "value": "alerts@bank.example"},
				},
				"parts": []map[string]any{
					{"mimeType": "text/html", "body": map[string]string{"data": mailsource.EncodeData("<p>Payment <b>CHF 45.00</b></p>")}},
					{"mimeType": "text/plain", "body": map[string]string{"data": mailsource.EncodeData("Payment CHF 45.00 at COOP")}},
				},
			},
		})
	})
	mux.HandleFunc("/gmail/v1/users/me/messages/m1/modify", func(w http.ResponseWriter, r *http.Request) {
		if f.fail(w) {
			return
		}
		body, _ := io.ReadAll(r.Body)
		var req struct {
			RemoveLabelIds []string `json:"removeLabelIds"`
		}
		_ = json.Unmarshal(body, &req)
		f.mu.Lock()
		f.modified["m1"] = req.RemoveLabelIds
		f.mu.Unlock()
		writeJSON(w, map[string]any{"id": "m1"})
	})
	return mux
}

func (f *fakeGmail) fail(w http.ResponseWriter) bool {
	f.mu.Lock()
	status := f.status
	f.mu.Unlock()
	if status == 0 {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":{"code":%d,"message":"%s"}}`, status, http.StatusText(status))
	return true
}

func (f *fakeGmail) setStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

func (f *fakeGmail) seen() (query, max string, modified []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastQuery, f.lastMax, f.modified["m1"]
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T) (*Client, *fakeGmail) {
	t.Helper()
	fake := &fakeGmail{modified: map[string][]string{}}
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	c, err := NewClient(context.Background(), Config{Endpoint: server.URL + "/"}, logging.NewMockLogger())
	require.NoError(t, err)
	return c, fake
}

func TestClient_Search(t *testing.T) {
	c, fake := newTestClient(t)

	refs, err := c.Search(context.Background(), "from:alerts@bank.example is:unread", 5)
	require.NoError(t, err)
	assert.Equal(t, []mailsource.MessageRef{{ID: "m1", ThreadID: "t1"}, {ID: "m2", ThreadID: "t2"}}, refs)
	query, max, _ := fake.seen()
	assert.Equal(t, "from:alerts@bank.example is:unread", query)
	assert.Equal(t, "5", max)
}

func TestClient_SearchSkipsConsumed(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.MarkConsumed(ctx, mailsource.MessageRef{ID: "m1"}))

	refs, err := c.Search(ctx, "from:alerts@bank.example", 10)
	require.NoError(t, err)
	query, _, _ := fake.seen()
	assert.Equal(t, "from:alerts@bank.example is:unread", query)
	assert.Equal(t, []mailsource.MessageRef{{ID: "m2", ThreadID: "t2"}}, refs)
}

func TestWithUnread(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"from:alerts@bank.example", "from:alerts@bank.example is:unread"},
		{"from:alerts@bank.example is:unread", "from:alerts@bank.example is:unread"},
		{"IS:UNREAD subject:Visa", "IS:UNREAD subject:Visa"},
		{"  ", "is:unread"},
		{"subject:is:unreadable", "subject:is:unreadable is:unread"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, withUnread(tt.query))
		})
	}
}

func TestClient_Fetch(t *testing.T) {
	c, _ := newTestClient(t)

	m, err := c.Fetch(context.Background(), mailsource.MessageRef{ID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, "Card payment", m.Header("subject"))
	assert.True(t, time.UnixMilli(1717408800000).Equal(m.ReceivedAt))
	require.Len(t, m.Parts, 1)
	assert.Len(t, m.Parts[0].Parts, 2)
	assert.Equal(t, "Payment CHF 45.00 at COOP", mailsource.ExtractText(m))
}

func TestClient_MarkConsumed(t *testing.T) {
	c, fake := newTestClient(t)

	require.NoError(t, c.MarkConsumed(context.Background(), mailsource.MessageRef{ID: "m1"}))
	_, _, modified := fake.seen()
	assert.Equal(t, []string{"UNREAD"}, modified)
}

func TestClient_AuthErrors(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			c, fake := newTestClient(t)
			fake.setStatus(status)

			_, err := c.Search(context.Background(), "q", 1)
			assert.True(t, mailsource.IsAuthError(err), "got %v", err)

			err = c.MarkConsumed(context.Background(), mailsource.MessageRef{ID: "m1"})
			assert.True(t, mailsource.IsAuthError(err))
		})
	}
}

func TestClient_NotFoundIsNotAuth(t *testing.T) {
	c, fake := newTestClient(t)
	fake.setStatus(http.StatusNotFound)

	_, err := c.Fetch(context.Background(), mailsource.MessageRef{ID: "m1"})
	require.Error(t, err)
	assert.False(t, mailsource.IsAuthError(err))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		auth bool
	}{
		{"unauthorized", &googleapi.Error{Code: 401}, true},
		{"forbidden wrapped", fmt.Errorf("call: %w", &googleapi.Error{Code: 403}), true},
		{"refresh failure", fmt.Errorf("Get: %w", &oauth2.RetrieveError{ErrorCode: "invalid_grant"}), true},
		{"not found", &googleapi.Error{Code: 404}, false},
		{"network", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.auth, mailsource.IsAuthError(classify("op", tt.err)))
		})
	}
}

func TestTokenFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	token := &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer"}

	require.NoError(t, saveToken(path, token))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := loadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "access", loaded.AccessToken)
	assert.Equal(t, "refresh", loaded.RefreshToken)
}

func TestNewClient_MissingTokenIsAuthError(t *testing.T) {
	dir := t.TempDir()
	creds := filepath.Join(dir, "credentials.json")
	require.NoError(t, os.WriteFile(creds, []byte(`{"installed":{"client_id":"id","client_secret":"secret","redirect_uris":["http://localhost"],"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token"}}`), 0o600))

	_, err := NewClient(context.Background(), Config{CredentialsFile: creds, TokenFile: filepath.Join(dir, "token.json")}, nil)
	assert.True(t, mailsource.IsAuthError(err))
}

type countingSource struct {
	tokens []*oauth2.Token
	calls  int
}

func (c *countingSource) Token() (*oauth2.Token, error) {
	tok := c.tokens[c.calls]
	if c.calls < len(c.tokens)-1 {
		c.calls++
	}
	return tok, nil
}

func TestSavingTokenSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	src := &savingTokenSource{
		base:   &countingSource{tokens: []*oauth2.Token{{AccessToken: "old"}, {AccessToken: "new"}}},
		path:   path,
		last:   "old",
		logger: logging.NewMockLogger(),
	}

	_, err := src.Token()
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	_, err = src.Token()
	require.NoError(t, err)
	saved, err := loadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "new", saved.AccessToken)
}
