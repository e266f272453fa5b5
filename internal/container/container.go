// Package container provides dependency injection for networth-sync.
// It centralizes the creation and wiring of all application dependencies,
// making them explicit and testable.
package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fjacquet/networth-sync/internal/api"
	"fjacquet/networth-sync/internal/categorizer"
	"fjacquet/networth-sync/internal/config"
	"fjacquet/networth-sync/internal/csvimport"
	"fjacquet/networth-sync/internal/ingest"
	"fjacquet/networth-sync/internal/ledgerstore"
	fsstore "fjacquet/networth-sync/internal/ledgerstore/firestore"
	"fjacquet/networth-sync/internal/ledgerstore/sqlite"
	"fjacquet/networth-sync/internal/logging"
	"fjacquet/networth-sync/internal/mailsource"
	"fjacquet/networth-sync/internal/mailsource/gmail"
	"fjacquet/networth-sync/internal/matcher"
	"fjacquet/networth-sync/internal/reconciler"
	"fjacquet/networth-sync/internal/scheduler"
	"fjacquet/networth-sync/internal/store"
)

// Option customizes a Container at construction time.
type Option func(*Container)

// WithMailSource replaces the Gmail client, typically with a fake.
func WithMailSource(src mailsource.Source) Option {
	return func(c *Container) { c.source = src }
}

// WithTokenVerifier replaces the Firebase Auth client used by the API.
func WithTokenVerifier(v api.TokenVerifier) Option {
	return func(c *Container) { c.verifier = v }
}

// WithLogger replaces the logger built from the configuration.
func WithLogger(l logging.Logger) Option {
	return func(c *Container) { c.logger = l }
}

// Container holds all application dependencies and provides methods to access them.
//
// The ledger store, categorizer, reconciler and importer are built eagerly.
// Everything that needs the rules file or remote credentials (mail source,
// orchestrator, API server, scheduler) is built on first use so that
// commands like import or observe work without them.
type Container struct {
	logger      logging.Logger
	config      *config.Config
	location    *time.Location
	ledger      ledgerstore.Store
	firebase    *fsstore.Client
	configStore *store.ConfigStore
	aiClient    categorizer.AIClient
	categorizer *categorizer.Categorizer
	reconciler  *reconciler.Reconciler
	importer    *csvimport.Importer

	mu           sync.Mutex
	source       mailsource.Source
	verifier     api.TokenVerifier
	rules        *store.RulesConfig
	orchestrator *ingest.Orchestrator
	scheduler    *scheduler.Scheduler
}

// NewContainer creates and wires all application dependencies.
func NewContainer(ctx context.Context, cfg *config.Config, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}

	c := &Container{config: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.NewLogrusAdapter(cfg.Log.Level, cfg.Log.Format)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	c.location = loc

	if err := c.openLedger(ctx); err != nil {
		return nil, err
	}

	c.configStore = store.NewConfigStore(cfg.Ingest.RulesFile, cfg.Categories.File)

	if cfg.AI.Enabled && cfg.AI.APIKey != "" {
		timeout := time.Duration(cfg.AI.TimeoutSeconds) * time.Second
		gemini, err := categorizer.NewGeminiClient(ctx, cfg.AI.APIKey, cfg.AI.Model, timeout, c.logger)
		if err != nil {
			c.logger.WithError(err).Warn("AI categorization unavailable, using keywords only")
		} else {
			c.aiClient = gemini
			c.logger.Info("AI categorization enabled")
		}
	} else {
		c.logger.Info("AI categorization disabled")
	}

	c.categorizer = categorizer.NewCategorizer(c.configStore, c.aiClient, cfg.Categories.Fallback, c.logger)
	c.reconciler = reconciler.New(c.ledger, loc, c.logger)
	c.importer = csvimport.NewImporter(c.reconciler, loc, c.logger)

	c.logger.Info("Container initialized successfully",
		logging.Field{Key: "store_driver", Value: cfg.Store.Driver},
		logging.Field{Key: "timezone", Value: loc.String()},
		logging.Field{Key: "ai_enabled", Value: c.aiClient != nil})

	return c, nil
}

func (c *Container) openLedger(ctx context.Context) error {
	cfg := c.config
	switch cfg.Store.Driver {
	case config.DriverSQLite, "":
		s, err := sqlite.Open(cfg.Store.SQLitePath, cfg.Store.MaxAttempts, c.logger)
		if err != nil {
			return fmt.Errorf("failed to open ledger store: %w", err)
		}
		c.ledger = s
	case config.DriverFirestore:
		client, err := fsstore.NewClient(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			return err
		}
		c.firebase = client
		c.ledger = fsstore.NewStore(client.Firestore, cfg.Store.MaxAttempts, c.logger)
	default:
		return fmt.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
	return nil
}

// Rules loads the rules file once and returns it.
func (c *Container) Rules() (*store.RulesConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadRules()
}

func (c *Container) loadRules() (*store.RulesConfig, error) {
	if c.rules != nil {
		return c.rules, nil
	}
	rules, err := c.configStore.LoadRules()
	if err != nil {
		return nil, err
	}
	c.rules = rules
	return rules, nil
}

// Orchestrator builds the ingestion orchestrator on first use.
func (c *Container) Orchestrator(ctx context.Context) (*ingest.Orchestrator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buildOrchestrator(ctx)
}

func (c *Container) buildOrchestrator(ctx context.Context) (*ingest.Orchestrator, error) {
	if c.orchestrator != nil {
		return c.orchestrator, nil
	}

	rules, err := c.loadRules()
	if err != nil {
		return nil, err
	}
	compiled, err := matcher.CompileAll(rules.Rules)
	if err != nil {
		return nil, fmt.Errorf("invalid extraction rules: %w", err)
	}

	if c.source == nil {
		g := c.config.Gmail
		client, err := gmail.NewClient(ctx, gmail.Config{
			CredentialsFile: g.CredentialsFile,
			TokenFile:       g.TokenFile,
			UserID:          g.UserID,
			Endpoint:        g.Endpoint,
		}, c.logger)
		if err != nil {
			return nil, err
		}
		c.source = client
	}

	c.orchestrator = ingest.New(
		c.source,
		matcher.New(compiled, c.logger),
		c.reconciler,
		c.ledger,
		c.categorizer,
		ingest.Options{
			MaxMessagesPerRule: c.config.Ingest.MaxMessagesPerRule,
			PassTimeout:        c.config.Ingest.PassTimeout,
			Cards:              rules.Cards,
		},
		c.logger,
	)
	c.logger.Info("Ingestion ready", logging.Field{Key: logging.FieldCount, Value: len(compiled)})
	return c.orchestrator, nil
}

// TokenVerifier returns the Firebase Auth client, creating a Firebase app
// when the ledger does not already use one.
func (c *Container) TokenVerifier(ctx context.Context) (api.TokenVerifier, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokenVerifier(ctx)
}

func (c *Container) tokenVerifier(ctx context.Context) (api.TokenVerifier, error) {
	if c.verifier != nil {
		return c.verifier, nil
	}
	if c.firebase == nil {
		if c.config.Firebase.ProjectID == "" {
			return nil, errors.New("firebase.project_id is required to verify API tokens")
		}
		client, err := fsstore.NewClient(ctx, c.config.Firebase.ProjectID, c.config.Firebase.CredentialsFile)
		if err != nil {
			return nil, err
		}
		c.firebase = client
	}
	c.verifier = c.firebase.Auth
	return c.verifier, nil
}

// Server builds the HTTP API.
func (c *Container) Server(ctx context.Context) (*api.Server, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	orch, err := c.buildOrchestrator(ctx)
	if err != nil {
		return nil, err
	}
	verifier, err := c.tokenVerifier(ctx)
	if err != nil {
		return nil, err
	}
	authMW := api.NewAuthMiddleware(verifier, c.config.API.AllowedUIDs, c.logger)
	maxUpload := c.config.API.MaxUploadMB << 20
	return api.NewServer(orch, c.importer, c.reconciler, authMW, maxUpload, c.logger), nil
}

// Scheduler builds the cron scheduler for background passes.
func (c *Container) Scheduler(ctx context.Context) (*scheduler.Scheduler, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.scheduler != nil {
		return c.scheduler, nil
	}
	orch, err := c.buildOrchestrator(ctx)
	if err != nil {
		return nil, err
	}
	s, err := scheduler.New(c.config.Ingest.Schedule, orch, c.logger)
	if err != nil {
		return nil, err
	}
	c.scheduler = s
	return s, nil
}

// GetLogger returns the container's logger instance.
func (c *Container) GetLogger() logging.Logger {
	return c.logger
}

// GetConfig returns the container's configuration instance.
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetLocation returns the timezone that defines ledger days.
func (c *Container) GetLocation() *time.Location {
	return c.location
}

// GetLedger returns the account store.
func (c *Container) GetLedger() ledgerstore.Store {
	return c.ledger
}

// GetConfigStore returns the rules and categories file store.
func (c *Container) GetConfigStore() *store.ConfigStore {
	return c.configStore
}

// GetCategorizer returns the container's categorizer instance.
func (c *Container) GetCategorizer() *categorizer.Categorizer {
	return c.categorizer
}

// GetAIClient returns the container's AI client instance.
// Returns nil if AI is not enabled.
func (c *Container) GetAIClient() categorizer.AIClient {
	return c.aiClient
}

// GetReconciler returns the reconciler.
func (c *Container) GetReconciler() *reconciler.Reconciler {
	return c.reconciler
}

// GetImporter returns the CSV observation importer.
func (c *Container) GetImporter() *csvimport.Importer {
	return c.importer
}

// Close releases the ledger store and the Firebase app.
func (c *Container) Close() error {
	var errs []error
	if c.ledger != nil {
		if err := c.ledger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	// The Firestore store already closed the shared client.
	if c.firebase != nil && c.config.Store.Driver != config.DriverFirestore {
		if err := c.firebase.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.logger.Info("Container closed")
	return errors.Join(errs...)
}
