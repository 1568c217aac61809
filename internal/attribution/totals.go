package attribution

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"attribly/internal/channels"
	"attribly/internal/timeframe"
)

// Totals is the coarse summary shown above the channel tabs. View counts are
// plain tagged-event counts with no content or session join.
type Totals struct {
	TotalUsers    int64 `json:"totalUsers"`
	LinkedInViews int64 `json:"linkedinViews"`
	YouTubeViews  int64 `json:"youtubeViews"`
	GoogleViews   int64 `json:"googleViews"`
	Other         int64 `json:"other"`
}

// OtherUsers is the part of the signups not explained by the tracked channels.
func OtherUsers(users, linkedin, youtube, google int64) int64 {
	return max(0, users-(linkedin+youtube+google))
}

// TotalUsers counts every account ever created.
func (e *Engine) TotalUsers(ctx context.Context) (int64, error) {
	count, err := e.source.CountUsers(ctx, nil)
	if err != nil {
		return 0, storeError("count users", err)
	}
	return count, nil
}

// Totals runs the four window counts concurrently. If any of them fails the
// whole result fails, since a partial result would skew Other.
func (e *Engine) Totals(ctx context.Context, window *timeframe.Window) (*Totals, error) {
	if window == nil {
		return nil, fmt.Errorf("%w: totals require start and end", timeframe.ErrInvalidWindow)
	}

	var t Totals
	views := []struct {
		channel string
		dst     *int64
	}{
		{"linkedin", &t.LinkedInViews},
		{"youtube", &t.YouTubeViews},
		{"google", &t.GoogleViews},
	}
	rules := make([]channels.Rule, len(views))
	for i, v := range views {
		ch, err := e.registry.Lookup(v.channel)
		if err != nil {
			return nil, err
		}
		rules[i] = ch.Match
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		count, err := e.source.CountUsers(gctx, window)
		if err != nil {
			return storeError("count users", err)
		}
		t.TotalUsers = count
		return nil
	})

	for i, v := range views {
		g.Go(func() error {
			count, err := e.source.CountEvents(gctx, rules[i], window)
			if err != nil {
				return storeError("count "+v.channel+" views", err)
			}
			*v.dst = count
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		e.logger.Error("Failed to compute totals", slog.String("window", window.String()), slog.Any("error", err))
		return nil, err
	}

	t.Other = OtherUsers(t.TotalUsers, t.LinkedInViews, t.YouTubeViews, t.GoogleViews)
	return &t, nil
}
