// Package firestore implements ledgerstore.Store on Cloud Firestore, the
// document database the dashboard reads from.
//
// Layout:
//
//	accounts/{accountID}                      account document
//	accounts/{accountID}/history/{entryID}    one ledger entry per day
//	movementLogs/{accountID}                  capped movement feed
package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// Client bundles the Firestore and Auth clients of one Firebase app.
type Client struct {
	Firestore *firestore.Client
	Auth      *auth.Client
	projectID string
}

// NewClient initializes a Firebase app. Application Default Credentials
// are used unless credentialsFile is set.
func NewClient(ctx context.Context, projectID, credentialsFile string) (*Client, error) {
	conf := &firebase.Config{ProjectID: projectID}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	firestoreClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		_ = firestoreClient.Close()
		return nil, fmt.Errorf("failed to create Auth client: %w", err)
	}

	return &Client{
		Firestore: firestoreClient,
		Auth:      authClient,
		projectID: projectID,
	}, nil
}

// ProjectID returns the Firebase project the client is bound to.
func (c *Client) ProjectID() string {
	return c.projectID
}

// Close closes the Firestore client
func (c *Client) Close() error {
	return c.Firestore.Close()
}
