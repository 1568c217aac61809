package timeframe

import (
	"fmt"
	"strings"
	"time"
)

// Accepted layouts for window bounds, tried in order. Values without a zone are UTC.
var boundLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

type WindowParserParams struct {
	Start string
	End   string
	Range string
}

type WindowParser struct {
	timeProvider TimeProvider
}

func NewWindowParser(timeProvider ...TimeProvider) *WindowParser {
	var provider TimeProvider = &DefaultTimeProvider{}
	if len(timeProvider) > 0 && timeProvider[0] != nil {
		provider = timeProvider[0]
	}

	return &WindowParser{
		timeProvider: provider,
	}
}

// ParseWindow turns request parameters into a window. Explicit bounds win over
// a range preset; with neither present the request is rejected.
func (p *WindowParser) ParseWindow(params WindowParserParams) (*Window, error) {
	startStr := strings.TrimSpace(params.Start)
	endStr := strings.TrimSpace(params.End)
	rangeStr := strings.TrimSpace(params.Range)

	if startStr == "" && endStr == "" && rangeStr != "" {
		return windowForRange(RangeLabel(rangeStr), p.timeProvider.Now(time.UTC))
	}

	if startStr == "" || endStr == "" {
		return nil, fmt.Errorf("%w: missing start or end", ErrInvalidWindow)
	}

	start, err := ParseBound(startStr)
	if err != nil {
		return nil, fmt.Errorf("invalid 'start': %w", err)
	}

	end, err := ParseBound(endStr)
	if err != nil {
		return nil, fmt.Errorf("invalid 'end': %w", err)
	}

	return NewWindow(start, end)
}

// ParseBound parses a single ISO-8601 timestamp or date.
func ParseBound(value string) (time.Time, error) {
	for _, layout := range boundLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse %q", ErrInvalidWindow, value)
}
