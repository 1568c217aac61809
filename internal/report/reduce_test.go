package report_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"attribly/internal/attribution"
	"attribly/internal/channels"
	"attribly/internal/report"
)

func TestRate(t *testing.T) {
	tests := []struct {
		conversions int
		redirects   int
		rate        float64
		label       string
	}{
		{0, 0, 0, "0%"},
		{5, 0, 0, "0%"},
		{0, 10, 0, "0.0%"},
		{1, 3, 33.3, "33.3%"},
		{2, 3, 66.7, "66.7%"},
		{1, 16, 6.3, "6.3%"},
		{3, 2, 150, "150.0%"},
		{7, 7, 100, "100.0%"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.rate, report.Rate(tt.conversions, tt.redirects), "%d/%d", tt.conversions, tt.redirects)
		assert.Equal(t, tt.label, report.FormatRate(tt.conversions, tt.redirects), "%d/%d", tt.conversions, tt.redirects)
	}
}

func TestReduceIsOrderIndependent(t *testing.T) {
	rows := []attribution.Row{
		{Post: "a", RedirectCount: 3, UserConverted: 1},
		{Post: "b", RedirectCount: 5, UserConverted: 0},
		{Post: "c", RedirectCount: 2, UserConverted: 2},
	}
	reversed := []attribution.Row{rows[2], rows[1], rows[0]}

	want := report.ChannelTotals{Redirects: 10, Conversions: 3, Rate: 30, RateLabel: "30.0%"}
	assert.Equal(t, want, report.Reduce(rows))
	assert.Equal(t, want, report.Reduce(reversed))
	assert.Equal(t, want, report.Reduce(append(append([]attribution.Row{}, rows[:1]...), rows[1:]...)))
}

func TestReduceEmpty(t *testing.T) {
	assert.Equal(t, report.ChannelTotals{RateLabel: "0%"}, report.Reduce(nil))
}

func TestSummarize(t *testing.T) {
	ch := channels.Channel{Name: "linkedin", Title: "LinkedIn", ItemLabel: "Post", Windowed: true}
	rows := []attribution.Row{
		{Post: "Post A", RedirectCount: 3, UserConverted: 1},
		{Post: "Post B", RedirectCount: 0, UserConverted: 0},
	}

	s := report.Summarize(ch, rows)
	assert.Equal(t, "linkedin", s.Channel)
	assert.Equal(t, 2, s.Items)
	assert.Equal(t, "33.3%", s.Rows[0].Rate)
	assert.Equal(t, "Post A", s.Rows[0].Post)
	assert.Equal(t, "0%", s.Rows[1].Rate)
	assert.Equal(t, "33.3%", s.Totals.RateLabel)
}
