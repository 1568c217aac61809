// Package attribution computes per-channel redirect and signup attribution
// from raw tracker events, and the coarse totals shown on the overview.
package attribution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"attribly/internal/channels"
	"attribly/internal/metrics"
	"attribly/internal/store"
	"attribly/internal/timeframe"
)

var (
	// ErrStore wraps every failure coming from the analytics database. These
	// are transient from the caller's point of view and are never retried here.
	ErrStore = errors.New("store unavailable")

	ErrUnknownChannel = channels.ErrUnknownChannel
)

// DefaultConversionWindow is the tolerance between a user_id attribute and
// the account creation it should match.
const DefaultConversionWindow = 2 * time.Minute

// Source is the read side of the analytics database.
type Source interface {
	Events(ctx context.Context, rule channels.Rule, window *timeframe.Window) ([]store.Event, error)
	CountEvents(ctx context.Context, rule channels.Rule, window *timeframe.Window) (int64, error)
	ContentItems(ctx context.Context) ([]store.ContentItem, error)
	ContentLabels(ctx context.Context, source string) (map[string]string, error)
	SignupEvents(ctx context.Context, sessionIDs []string) ([]store.Event, error)
	EventAttributes(ctx context.Context, eventIDs []string, key string) ([]store.Attribute, error)
	Users(ctx context.Context, ids []string) ([]store.Account, error)
	CountUsers(ctx context.Context, window *timeframe.Window) (int64, error)
}

type Options struct {
	// SiteOrigin is prepended to tracked paths before prefix matching.
	SiteOrigin       string
	ConversionWindow time.Duration
}

type Engine struct {
	source   Source
	registry *channels.Registry
	opts     Options
	logger   *slog.Logger
}

func NewEngine(source Source, registry *channels.Registry, opts Options, logger *slog.Logger) *Engine {
	if opts.ConversionWindow <= 0 {
		opts.ConversionWindow = DefaultConversionWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		source:   source,
		registry: registry,
		opts:     opts,
		logger:   logger,
	}
}

func (e *Engine) Registry() *channels.Registry {
	return e.registry
}

// Channel computes the attribution rows of one channel. Windowed channels
// require a window; the others are computed over all time and ignore it.
func (e *Engine) Channel(ctx context.Context, name string, window *timeframe.Window) ([]Row, error) {
	ch, err := e.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	if !ch.Windowed {
		window = nil
	} else if window == nil {
		return nil, fmt.Errorf("%w: channel %s requires start and end", timeframe.ErrInvalidWindow, ch.Name)
	}

	start := time.Now()
	defer metrics.ObserveReport(ch.Name, start)

	events, err := e.source.Events(ctx, ch.Match, window)
	if err != nil {
		return nil, storeError("load events", err)
	}
	base := SelectBase(events, ch, window)

	resolver, err := e.resolver(ctx, ch)
	if err != nil {
		return nil, err
	}
	resolved := Resolve(base, resolver)
	if len(resolved) == 0 {
		e.logger.Debug("No attributed events", slog.String("channel", ch.Name), slog.String("window", window.String()))
		return []Row{}, nil
	}

	converted, err := e.convertedSessions(ctx, Sessions(resolved))
	if err != nil {
		return nil, err
	}

	rows := Rollup(resolved, CountRedirects(resolved), converted)

	e.logger.Debug("Computed channel attribution",
		slog.String("channel", ch.Name),
		slog.String("window", window.String()),
		slog.Int("events", len(base)),
		slog.Int("attributed", len(resolved)),
		slog.Int("rows", len(rows)),
		slog.Duration("duration", time.Since(start)))

	return rows, nil
}

func (e *Engine) resolver(ctx context.Context, ch channels.Channel) (Resolver, error) {
	if ch.Resolver == channels.ResolverPath {
		return PathResolver{}, nil
	}

	items, err := e.source.ContentItems(ctx)
	if err != nil {
		return nil, storeError("load content", err)
	}
	labels, err := e.source.ContentLabels(ctx, ch.Labels)
	if err != nil {
		return nil, storeError("load labels", err)
	}
	return NewPrefixResolver(e.opts.SiteOrigin, items, labels), nil
}

// convertedSessions walks session -> first signup event -> user_id attribute -> account.
func (e *Engine) convertedSessions(ctx context.Context, sessions []string) (map[string]bool, error) {
	signups, err := e.source.SignupEvents(ctx, sessions)
	if err != nil {
		return nil, storeError("load signup events", err)
	}
	firstSignup := FirstSignupBySession(signups)
	if len(firstSignup) == 0 {
		return map[string]bool{}, nil
	}

	eventIDs := make([]string, 0, len(firstSignup))
	for _, ev := range firstSignup {
		eventIDs = append(eventIDs, ev.EventID)
	}
	attrs, err := e.source.EventAttributes(ctx, eventIDs, store.AttributeUserID)
	if err != nil {
		return nil, storeError("load user attributes", err)
	}
	userAttr := EarliestAttributeByEvent(attrs)
	if len(userAttr) == 0 {
		return map[string]bool{}, nil
	}

	seen := make(map[string]struct{}, len(userAttr))
	userIDs := make([]string, 0, len(userAttr))
	for _, a := range userAttr {
		if _, dup := seen[a.Value]; dup {
			continue
		}
		seen[a.Value] = struct{}{}
		userIDs = append(userIDs, a.Value)
	}
	accounts, err := e.source.Users(ctx, userIDs)
	if err != nil {
		return nil, storeError("load users", err)
	}

	return ConvertedSessions(firstSignup, userAttr, accounts, e.opts.ConversionWindow), nil
}

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
