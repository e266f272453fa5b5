// Package ingest runs ingestion passes: every extraction rule searches the
// mailbox, matching notifications are turned into balance deltas, and each
// handled message is consumed so the next pass does not see it again.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"fjacquet/networth-sync/internal/categorizer"
	"fjacquet/networth-sync/internal/ledgerstore"
	"fjacquet/networth-sync/internal/logging"
	"fjacquet/networth-sync/internal/mailsource"
	"fjacquet/networth-sync/internal/matcher"
	"fjacquet/networth-sync/internal/models"
	"fjacquet/networth-sync/internal/reconciler"
)

// DefaultMaxMessagesPerRule bounds each rule's search.
const DefaultMaxMessagesPerRule = 10

// Pass states, logged under logging.FieldState.
const (
	StateIdle              = "idle"
	StateFetchingMessages  = "fetching_messages"
	StateProcessingMessage = "processing_message"
	StateDone              = "done"
)

// AccountLister lists the accounts rules can be resolved against.
type AccountLister interface {
	ListAccounts(ctx context.Context) ([]models.Account, error)
}

// Categorizer names the category of a detected movement.
type Categorizer interface {
	Categorize(ctx context.Context, tx categorizer.Transaction) string
}

// Options tune a pass.
type Options struct {
	MaxMessagesPerRule int
	// PassTimeout stops remaining work; zero means no limit.
	PassTimeout time.Duration
	// Cards maps a rule's card identifier to an account id.
	Cards map[string]string
}

// Summary reports what one pass did.
type Summary struct {
	PassID       string `json:"passId"`
	Applied      int    `json:"applied"`
	Skipped      int    `json:"skipped"`
	NoMatch      int    `json:"noMatch"`
	Failed       int    `json:"failed"`
	RulesSkipped int    `json:"rulesSkipped"`
	TimedOut     bool   `json:"timedOut"`
	Message      string `json:"message"`
}

// Orchestrator drives ingestion passes. It holds no per-pass state, so a
// scheduled and a manual pass may run at the same time.
type Orchestrator struct {
	source      mailsource.Source
	matcher     *matcher.Matcher
	reconciler  *reconciler.Reconciler
	accounts    AccountLister
	categorizer Categorizer
	opts        Options
	logger      logging.Logger
}

// New creates an Orchestrator. cat may be nil, in which case movements are
// stored without a category.
func New(source mailsource.Source, m *matcher.Matcher, rec *reconciler.Reconciler, accounts AccountLister, cat Categorizer, opts Options, logger logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	if opts.MaxMessagesPerRule <= 0 {
		opts.MaxMessagesPerRule = DefaultMaxMessagesPerRule
	}
	return &Orchestrator{
		source:      source,
		matcher:     m,
		reconciler:  rec,
		accounts:    accounts,
		categorizer: cat,
		opts:        opts,
		logger:      logger,
	}
}

// errAbortRule stops the current rule and moves to the next one.
var errAbortRule = errors.New("rule aborted")

type pass struct {
	id       string
	summary  Summary
	seen     map[string]bool
	// resolved maps card identifiers to accounts, nil when unresolved.
	resolved map[string]*models.Account
	logger   logging.Logger
}

// RunPass runs one ingestion pass. A SourceAuthError aborts the pass and is
// returned together with the partial summary. Other failures are counted
// and the pass continues.
func (o *Orchestrator) RunPass(ctx context.Context) (Summary, error) {
	started := time.Now()
	p := &pass{
		id:       uuid.NewString(),
		seen:     map[string]bool{},
		resolved: map[string]*models.Account{},
	}
	p.summary.PassID = p.id
	p.logger = o.logger.WithField(logging.FieldPassID, p.id)
	p.logger.WithField(logging.FieldState, StateIdle).Info("Starting ingestion pass")

	if o.opts.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.PassTimeout)
		defer cancel()
	}

	accounts, err := o.accounts.ListAccounts(ctx)
	if err != nil {
		p.summary.Message = fmt.Sprintf("Could not list accounts: %v", err)
		return p.summary, fmt.Errorf("list accounts: %w", err)
	}
	for _, rule := range o.matcher.Rules() {
		if _, done := p.resolved[rule.CardIdentifier]; !done {
			p.resolved[rule.CardIdentifier] = o.resolveAccount(p, rule, accounts)
		}
	}

	for _, rule := range o.matcher.Rules() {
		if ctx.Err() != nil {
			p.summary.TimedOut = true
			break
		}
		err := o.runRule(ctx, p, rule)
		if err == nil || errors.Is(err, errAbortRule) {
			continue
		}
		if mailsource.IsAuthError(err) {
			p.summary.Message = fmt.Sprintf("Mail source authentication failed after %d applied transactions: %v", p.summary.Applied, err)
			p.logger.WithError(err).WithField(logging.FieldState, StateDone).Error("Ingestion pass aborted")
			return p.summary, fmt.Errorf("ingestion pass %s: %w", p.id, err)
		}
		if ctx.Err() != nil {
			p.summary.TimedOut = true
			break
		}
	}

	p.summary.Message = summaryMessage(p.summary)
	p.logger.WithFields(
		logging.Field{Key: logging.FieldState, Value: StateDone},
		logging.Field{Key: logging.FieldCount, Value: p.summary.Applied},
		logging.Field{Key: "skipped", Value: p.summary.Skipped},
		logging.Field{Key: "no_match", Value: p.summary.NoMatch},
		logging.Field{Key: "failed", Value: p.summary.Failed},
		logging.Field{Key: "rules_skipped", Value: p.summary.RulesSkipped},
		logging.Field{Key: logging.FieldDuration, Value: time.Since(started).Milliseconds()},
	).Info("Ingestion pass finished")
	return p.summary, nil
}

func (o *Orchestrator) runRule(ctx context.Context, p *pass, rule *matcher.CompiledRule) error {
	logger := p.logger.WithField(logging.FieldRule, rule.Name)

	if p.resolved[rule.CardIdentifier] == nil {
		p.summary.RulesSkipped++
		logger.WithField("card", rule.CardIdentifier).Warn("No account for rule card, skipping rule")
		return errAbortRule
	}

	logger.WithField(logging.FieldState, StateFetchingMessages).Debug("Searching messages")
	refs, err := o.source.Search(ctx, rule.SearchQuery, o.opts.MaxMessagesPerRule)
	if err != nil {
		if mailsource.IsAuthError(err) {
			return err
		}
		p.summary.RulesSkipped++
		logger.WithError(err).Error("Message search failed, skipping rule")
		return errAbortRule
	}

	for _, ref := range refs {
		if p.seen[ref.ID] {
			continue
		}
		if ctx.Err() != nil {
			p.summary.TimedOut = true
			return ctx.Err()
		}
		p.seen[ref.ID] = true

		if err := o.processMessage(ctx, p, rule, ref); err != nil {
			if errors.Is(err, ledgerstore.ErrAccountNotFound) {
				p.summary.RulesSkipped++
				logger.WithError(err).Error("Account disappeared, skipping rest of rule")
				return errAbortRule
			}
			return err
		}
	}
	return nil
}

// processMessage handles one message. The returned error is either an auth
// failure, a missing account or a context error; everything else is
// counted in the summary.
func (o *Orchestrator) processMessage(ctx context.Context, p *pass, rule *matcher.CompiledRule, ref mailsource.MessageRef) error {
	logger := p.logger.WithFields(
		logging.Field{Key: logging.FieldRule, Value: rule.Name},
		logging.Field{Key: logging.FieldMessageID, Value: ref.ID},
		logging.Field{Key: logging.FieldState, Value: StateProcessingMessage},
	)

	msg, err := o.source.Fetch(ctx, ref)
	if err != nil {
		if mailsource.IsAuthError(err) {
			return err
		}
		p.summary.Failed++
		logger.WithError(err).Warn("Could not fetch message, leaving it for the next pass")
		return ctx.Err()
	}

	candidate, err := o.match(rule, mailsource.ExtractText(msg))
	switch {
	case err != nil:
		p.summary.Failed++
		logger.WithError(err).Warn("Message matched but could not be parsed")
		return o.consume(ctx, logger, ref)
	case candidate == nil:
		p.summary.NoMatch++
		logger.Debug("No rule matched message")
		return o.consume(ctx, logger, ref)
	}

	account := p.resolved[candidate.Rule.CardIdentifier]
	if account == nil {
		p.summary.Failed++
		logger.WithField("matched_rule", candidate.Rule.Name).Warn("Message matched a rule without account")
		return o.consume(ctx, logger, ref)
	}

	candidate.SourceMessageID = msg.ID
	candidate.Timestamp = msg.ReceivedAt
	if candidate.Timestamp.IsZero() {
		candidate.Timestamp = time.Now()
	}

	category := ""
	if o.categorizer != nil {
		category = o.categorizer.Categorize(ctx, categorizer.Transaction{
			Merchant:    candidate.Merchant,
			Description: candidate.Description(),
			Amount:      candidate.Amount,
			Income:      candidate.Rule.IsIncome(),
		})
	}

	res, err := o.reconciler.ApplyDelta(ctx, reconciler.DeltaRequest{
		AccountID:     account.ID,
		TransactionID: candidate.SourceMessageID,
		Delta:         reconciler.SignedDelta(account.Kind, candidate.Rule.Direction, candidate.Amount),
		Direction:     candidate.Rule.Direction,
		Description:   candidate.Description(),
		Currency:      candidate.Rule.Currency,
		Category:      category,
		Timestamp:     candidate.Timestamp,
		Source:        models.SourceEmail,
	})
	if err != nil {
		if errors.Is(err, ledgerstore.ErrAccountNotFound) {
			return err
		}
		p.summary.Failed++
		logger.WithError(err).Error("Could not apply transaction, leaving message for the next pass")
		return ctx.Err()
	}

	switch res.Outcome {
	case reconciler.Applied:
		p.summary.Applied++
	case reconciler.Skipped:
		p.summary.Skipped++
	}
	logger.WithFields(
		logging.Field{Key: logging.FieldAccountID, Value: account.ID},
		logging.Field{Key: logging.FieldOutcome, Value: res.Outcome.String()},
		logging.Field{Key: logging.FieldCategory, Value: category},
	).Info("Processed message")

	return o.consume(ctx, logger, ref)
}

// match tries the rule whose search found the message, then all rules in
// configured order.
func (o *Orchestrator) match(rule *matcher.CompiledRule, text string) (*models.TransactionCandidate, error) {
	candidate, err := o.matcher.Match(rule, text)
	if err != nil || candidate != nil {
		return candidate, err
	}
	return o.matcher.MatchFirst(text)
}

func (o *Orchestrator) consume(ctx context.Context, logger logging.Logger, ref mailsource.MessageRef) error {
	if err := o.source.MarkConsumed(ctx, ref); err != nil {
		if mailsource.IsAuthError(err) {
			return err
		}
		logger.WithError(err).Warn("Could not mark message consumed")
	}
	return nil
}

// resolveAccount finds the account a rule feeds: the cards mapping first,
// then the card identifier stored on the account, then a substring match
// of the card identifier against account names.
func (o *Orchestrator) resolveAccount(p *pass, rule *matcher.CompiledRule, accounts []models.Account) *models.Account {
	card := rule.CardIdentifier
	logger := p.logger.WithFields(
		logging.Field{Key: logging.FieldRule, Value: rule.Name},
		logging.Field{Key: "card", Value: card},
	)

	if id, ok := o.opts.Cards[card]; ok {
		for i := range accounts {
			if accounts[i].ID == id {
				return &accounts[i]
			}
		}
		logger.WithField(logging.FieldAccountID, id).Warn("Card is mapped to an unknown account")
		return nil
	}

	for i := range accounts {
		if accounts[i].CardIdentifier != "" && accounts[i].CardIdentifier == card {
			return &accounts[i]
		}
	}

	needle := strings.ToLower(card)
	for i := range accounts {
		if strings.Contains(strings.ToLower(accounts[i].Name), needle) {
			logger.WithField(logging.FieldAccountID, accounts[i].ID).
				Info("Resolved account by name, add a cards mapping to make it explicit")
			return &accounts[i]
		}
	}
	return nil
}

func summaryMessage(s Summary) string {
	msg := fmt.Sprintf("Applied %d transaction(s): %d duplicate, %d without match, %d failed, %d rule(s) skipped",
		s.Applied, s.Skipped, s.NoMatch, s.Failed, s.RulesSkipped)
	if s.TimedOut {
		msg += "; pass stopped early on timeout"
	}
	return msg
}
