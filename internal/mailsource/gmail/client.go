// Package gmail reads bank notifications from a Gmail mailbox.
package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"fjacquet/networth-sync/internal/logging"
	"fjacquet/networth-sync/internal/mailsource"
	"fjacquet/networth-sync/internal/models"
)

const (
	labelUnread = "UNREAD"
	unreadQuery = "is:unread"
)

// Config holds OAuth2 file paths and an optional API endpoint.
type Config struct {
	CredentialsFile string
	TokenFile       string
	UserID          string
	// Endpoint replaces the Gmail API base URL and disables authentication.
	Endpoint string
}

// Client implements mailsource.Source on the Gmail API.
type Client struct {
	service *gmailapi.Service
	userID  string
	logger  logging.Logger
}

var _ mailsource.Source = (*Client)(nil)

// NewClient creates a Gmail client from the stored OAuth2 token. The
// interactive consent flow happens elsewhere; a missing token file is an
// authentication error.
func NewClient(ctx context.Context, cfg Config, logger logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	userID := cfg.UserID
	if userID == "" {
		userID = "me"
	}

	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts,
			option.WithEndpoint(cfg.Endpoint),
			option.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
			option.WithoutAuthentication())
	} else {
		httpClient, err := oauthClient(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	service, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return &Client{service: service, userID: userID, logger: logger}, nil
}

func oauthClient(ctx context.Context, cfg Config, logger logging.Logger) (*http.Client, error) {
	credBytes, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}
	oauthConfig, err := google.ConfigFromJSON(credBytes, gmailapi.GmailModifyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	token, err := loadToken(cfg.TokenFile)
	if err != nil {
		return nil, &mailsource.SourceAuthError{Op: "load token", Err: err}
	}

	src := &savingTokenSource{
		base:   oauthConfig.TokenSource(ctx, token),
		path:   cfg.TokenFile,
		last:   token.AccessToken,
		logger: logger,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(token, src)), nil
}

// savingTokenSource writes refreshed tokens back to the token file.
type savingTokenSource struct {
	mu     sync.Mutex
	base   oauth2.TokenSource
	path   string
	last   string
	logger logging.Logger
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if token.AccessToken != s.last {
		s.last = token.AccessToken
		if err := saveToken(s.path, token); err != nil {
			s.logger.WithError(err).Warn("Unable to save refreshed Gmail token")
		}
	}
	return token, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", path, err)
	}
	return token, nil
}

func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), models.PermissionDirectory); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, models.PermissionConfigFile)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// Search lists unread message ids matching a Gmail query. Consumed messages
// lose UNREAD, so the query is always restricted to unread mail.
func (c *Client) Search(ctx context.Context, query string, max int) ([]mailsource.MessageRef, error) {
	query = withUnread(query)
	call := c.service.Users.Messages.List(c.userID).Q(query).Context(ctx)
	if max > 0 {
		call = call.MaxResults(int64(max))
	}
	resp, err := call.Do()
	if err != nil {
		return nil, classify("search", err)
	}

	refs := make([]mailsource.MessageRef, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		refs = append(refs, mailsource.MessageRef{ID: m.Id, ThreadID: m.ThreadId})
	}
	c.logger.WithFields(
		logging.Field{Key: "query", Value: query},
		logging.Field{Key: logging.FieldCount, Value: len(refs)},
	).Debug("Gmail search completed")
	return refs, nil
}

// withUnread appends is:unread unless the query already carries it.
func withUnread(query string) string {
	for _, term := range strings.Fields(query) {
		if strings.EqualFold(term, unreadQuery) {
			return query
		}
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return unreadQuery
	}
	return query + " " + unreadQuery
}

// Fetch loads the full message including its MIME tree.
func (c *Client) Fetch(ctx context.Context, ref mailsource.MessageRef) (*mailsource.Message, error) {
	m, err := c.service.Users.Messages.Get(c.userID, ref.ID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, classify("fetch", err)
	}
	return convertMessage(m), nil
}

// MarkConsumed removes the UNREAD label.
func (c *Client) MarkConsumed(ctx context.Context, ref mailsource.MessageRef) error {
	req := &gmailapi.ModifyMessageRequest{RemoveLabelIds: []string{labelUnread}}
	if _, err := c.service.Users.Messages.Modify(c.userID, ref.ID, req).Context(ctx).Do(); err != nil {
		return classify("mark consumed", err)
	}
	return nil
}

func convertMessage(m *gmailapi.Message) *mailsource.Message {
	msg := &mailsource.Message{
		ID:      m.Id,
		Headers: map[string]string{},
		Snippet: m.Snippet,
	}
	if m.InternalDate > 0 {
		msg.ReceivedAt = time.UnixMilli(m.InternalDate)
	}
	if m.Payload != nil {
		for _, h := range m.Payload.Headers {
			msg.Headers[h.Name] = h.Value
		}
		msg.Parts = []mailsource.Part{convertPart(m.Payload)}
	}
	return msg
}

func convertPart(p *gmailapi.MessagePart) mailsource.Part {
	part := mailsource.Part{MimeType: p.MimeType, Filename: p.Filename}
	if p.Body != nil {
		part.Data = p.Body.Data
	}
	for _, child := range p.Parts {
		if child != nil {
			part.Parts = append(part.Parts, convertPart(child))
		}
	}
	return part
}

// classify turns rejected credentials into a SourceAuthError.
func classify(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden) {
		return &mailsource.SourceAuthError{Op: op, Err: err}
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return &mailsource.SourceAuthError{Op: op, Err: err}
	}
	if strings.Contains(err.Error(), "oauth2: token expired") {
		return &mailsource.SourceAuthError{Op: op, Err: err}
	}
	return fmt.Errorf("gmail %s: %w", op, err)
}
