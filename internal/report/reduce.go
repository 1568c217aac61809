// Package report turns attribution rows into the channel summaries the
// dashboard renders, and caches computed reports.
package report

import (
	"fmt"
	"math"

	"attribly/internal/attribution"
	"attribly/internal/channels"
)

// NoDataRate is shown instead of a rate when there are no redirects.
const NoDataRate = "0%"

// ChannelTotals sums a channel's rows.
type ChannelTotals struct {
	Redirects   int     `json:"redirects"`
	Conversions int     `json:"conversions"`
	Rate        float64 `json:"rate"`
	RateLabel   string  `json:"rateLabel"`
}

// Reduce sums redirects and conversions over rows in any order.
func Reduce(rows []attribution.Row) ChannelTotals {
	var t ChannelTotals
	for _, r := range rows {
		t.Redirects += r.RedirectCount
		t.Conversions += r.UserConverted
	}
	t.Rate = Rate(t.Conversions, t.Redirects)
	t.RateLabel = FormatRate(t.Conversions, t.Redirects)
	return t
}

// Rate is conversions per hundred redirects rounded to one decimal, halves
// away from zero. Zero redirects give 0. Rates above 100 are possible since
// conversions are counted per session and redirects per event.
func Rate(conversions, redirects int) float64 {
	if redirects <= 0 {
		return 0
	}
	pct := float64(conversions) / float64(redirects) * 100
	return math.Round(pct*10) / 10
}

// FormatRate renders Rate with one decimal and a percent sign.
func FormatRate(conversions, redirects int) string {
	if redirects <= 0 {
		return NoDataRate
	}
	return fmt.Sprintf("%.1f%%", Rate(conversions, redirects))
}

// SummaryRow is a Row annotated with its own rate.
type SummaryRow struct {
	attribution.Row
	Rate string `json:"rate"`
}

type ChannelSummary struct {
	Channel   string        `json:"channel"`
	Title     string        `json:"title"`
	ItemLabel string        `json:"itemLabel"`
	Windowed  bool          `json:"windowed"`
	Items     int           `json:"items"`
	Rows      []SummaryRow  `json:"rows"`
	Totals    ChannelTotals `json:"totals"`
}

// Summarize annotates rows with rates and adds the channel totals. Row order is kept.
func Summarize(ch channels.Channel, rows []attribution.Row) ChannelSummary {
	out := make([]SummaryRow, len(rows))
	for i, r := range rows {
		out[i] = SummaryRow{Row: r, Rate: FormatRate(r.UserConverted, r.RedirectCount)}
	}
	return ChannelSummary{
		Channel:   ch.Name,
		Title:     ch.Title,
		ItemLabel: ch.ItemLabel,
		Windowed:  ch.Windowed,
		Items:     len(rows),
		Rows:      out,
		Totals:    Reduce(rows),
	}
}
