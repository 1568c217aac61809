package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"attribly/internal/attribution"
	"attribly/internal/cache"
	"attribly/internal/channels"
	"attribly/internal/metrics"
	"attribly/internal/timeframe"
)

// Overview is everything the dashboard's first tab shows.
type Overview struct {
	Window     *timeframe.Window   `json:"window"`
	TotalUsers int64               `json:"totalUsers"`
	Totals     *attribution.Totals `json:"totals"`
	Channels   []ChannelSummary    `json:"channels"`
}

// Service serves reports, going through the cache when one is configured.
// Cache failures are logged and treated as misses.
type Service struct {
	engine *attribution.Engine
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewService(engine *attribution.Engine, c cache.Cache, ttl time.Duration, logger *slog.Logger) *Service {
	if c == nil {
		c = cache.Nop{}
	}
	return &Service{engine: engine, cache: c, ttl: ttl, logger: logger}
}

// Channels lists the registered channels in display order.
func (s *Service) Channels() []channels.Channel {
	return s.engine.Registry().All()
}

// Channel looks up a registered channel by name.
func (s *Service) Channel(name string) (channels.Channel, error) {
	return s.engine.Registry().Lookup(name)
}

// Rows returns a channel's attribution rows.
func (s *Service) Rows(ctx context.Context, name string, window *timeframe.Window) ([]attribution.Row, error) {
	ch, err := s.engine.Registry().Lookup(name)
	if err != nil {
		return nil, err
	}
	if !ch.Windowed {
		window = nil
	}
	key := fmt.Sprintf("rows:%s:%s", ch.Name, window.Key())
	return cached(ctx, s, key, func() ([]attribution.Row, error) {
		return s.engine.Channel(ctx, ch.Name, window)
	})
}

// Summary returns a channel's rows with per-row rates and totals.
func (s *Service) Summary(ctx context.Context, name string, window *timeframe.Window) (*ChannelSummary, error) {
	ch, err := s.engine.Registry().Lookup(name)
	if err != nil {
		return nil, err
	}
	rows, err := s.Rows(ctx, ch.Name, window)
	if err != nil {
		return nil, err
	}
	summary := Summarize(ch, rows)
	return &summary, nil
}

func (s *Service) TotalUsers(ctx context.Context) (int64, error) {
	return cached(ctx, s, "total-users", func() (int64, error) {
		return s.engine.TotalUsers(ctx)
	})
}

func (s *Service) Totals(ctx context.Context, window *timeframe.Window) (*attribution.Totals, error) {
	if window == nil {
		return nil, fmt.Errorf("%w: totals require start and end", timeframe.ErrInvalidWindow)
	}
	return cached(ctx, s, "totals:"+window.Key(), func() (*attribution.Totals, error) {
		return s.engine.Totals(ctx, window)
	})
}

// Overview computes the totals, the all-time user count and every channel
// summary concurrently. Any failure fails the whole overview.
func (s *Service) Overview(ctx context.Context, window *timeframe.Window) (*Overview, error) {
	if window == nil {
		return nil, fmt.Errorf("%w: overview requires start and end", timeframe.ErrInvalidWindow)
	}

	list := s.Channels()
	overview := &Overview{
		Window:   window,
		Channels: make([]ChannelSummary, len(list)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		total, err := s.TotalUsers(gctx)
		if err != nil {
			return err
		}
		overview.TotalUsers = total
		return nil
	})
	g.Go(func() error {
		totals, err := s.Totals(gctx, window)
		if err != nil {
			return err
		}
		overview.Totals = totals
		return nil
	})
	for i, ch := range list {
		g.Go(func() error {
			summary, err := s.Summary(gctx, ch.Name, window)
			if err != nil {
				return err
			}
			overview.Channels[i] = *summary
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return overview, nil
}

func cached[T any](ctx context.Context, s *Service, key string, compute func() (T, error)) (T, error) {
	var value T
	if s.ttl > 0 {
		found, err := s.cache.Get(ctx, key, &value)
		switch {
		case err != nil:
			metrics.ObserveCache(metrics.CacheError)
			s.logger.Warn("Report cache read failed", slog.String("key", key), slog.Any("error", err))
		case found:
			metrics.ObserveCache(metrics.CacheHit)
			return value, nil
		default:
			metrics.ObserveCache(metrics.CacheMiss)
		}
	}

	value, err := compute()
	if err != nil {
		return value, err
	}

	if s.ttl > 0 {
		if err := s.cache.Set(ctx, key, value, s.ttl); err != nil {
			s.logger.Warn("Report cache write failed", slog.String("key", key), slog.Any("error", err))
		}
	}
	return value, nil
}
