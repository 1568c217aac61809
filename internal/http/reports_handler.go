package http

import (
	"github.com/gofiber/fiber/v2"

	"attribly/internal/timeframe"
)

// TotalUsersAction returns the all-time account count.
func (h *Handler) TotalUsersAction(c *fiber.Ctx) error {
	total, err := h.reports.TotalUsers(requestContext(c))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{"totalUsers": total})
}

// TotalsAction returns the window's signups and tagged view counts.
func (h *Handler) TotalsAction(c *fiber.Ctx) error {
	window, err := h.window(c)
	if err != nil {
		return h.respondError(c, err)
	}

	totals, err := h.reports.Totals(requestContext(c), window)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(totals)
}

// ChannelAction serves the rows of a fixed channel, as the dashboard tabs request them.
func (h *Handler) ChannelAction(channel string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return h.rows(c, channel)
	}
}

// ChannelRowsAction serves the rows of the channel named in the path.
func (h *Handler) ChannelRowsAction(c *fiber.Ctx) error {
	return h.rows(c, c.Params("channel"))
}

func (h *Handler) rows(c *fiber.Ctx, channel string) error {
	window, err := h.channelWindow(c, channel)
	if err != nil {
		return h.respondError(c, err)
	}

	rows, err := h.reports.Rows(requestContext(c), channel, window)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(rows)
}

// ChannelSummaryAction serves a channel's rows with rates and totals.
func (h *Handler) ChannelSummaryAction(c *fiber.Ctx) error {
	channel := c.Params("channel")
	window, err := h.channelWindow(c, channel)
	if err != nil {
		return h.respondError(c, err)
	}

	summary, err := h.reports.Summary(requestContext(c), channel, window)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(summary)
}

// channelWindow parses the window for windowed channels. All-time channels
// ignore whatever bounds were sent.
func (h *Handler) channelWindow(c *fiber.Ctx, channel string) (*timeframe.Window, error) {
	ch, err := h.reports.Channel(channel)
	if err != nil {
		return nil, err
	}
	if !ch.Windowed {
		return nil, nil
	}
	return h.window(c)
}

// ChannelsIndexAction lists the registered channels.
func (h *Handler) ChannelsIndexAction(c *fiber.Ctx) error {
	return c.JSON(h.reports.Channels())
}

// OverviewAction serves every report of the first dashboard tab at once.
func (h *Handler) OverviewAction(c *fiber.Ctx) error {
	window, err := h.window(c)
	if err != nil {
		return h.respondError(c, err)
	}

	overview, err := h.reports.Overview(requestContext(c), window)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(overview)
}
