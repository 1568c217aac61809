// Package channels holds the registry of marketing channels and the tagging
// rules that decide which events belong to each of them.
package channels

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Event fields a rule can match against
const (
	FieldURLQuery       = "url_query"
	FieldReferrerDomain = "referrer_domain"
)

// Content resolution strategies
const (
	ResolverPath   = "path"
	ResolverPrefix = "prefix"
)

// Label sources, one per channel metadata table
const (
	LabelsLinkedIn = "linkedin"
	LabelsYouTube  = "youtube"
	LabelsBrevo    = "brevo"
)

// ErrUnknownChannel is returned by Lookup for names missing from the registry.
var ErrUnknownChannel = errors.New("unknown channel")

//go:embed channels.yml
var registryFile []byte

// Rule decides channel membership from a single event field. An event matches
// when any Include pattern occurs in the field and no Exclude group has all of
// its patterns present. Matching is a case-insensitive substring test.
type Rule struct {
	Field   string     `yaml:"field" json:"field"`
	Include []string   `yaml:"include" json:"include"`
	Exclude [][]string `yaml:"exclude" json:"exclude,omitempty"`
}

// Matches reports whether value satisfies the rule.
func (r Rule) Matches(value string) bool {
	value = strings.ToLower(value)

	included := false
	for _, pattern := range r.Include {
		if strings.Contains(value, strings.ToLower(pattern)) {
			included = true
			break
		}
	}
	if !included {
		return false
	}

	for _, group := range r.Exclude {
		if containsAll(value, group) {
			return false
		}
	}
	return true
}

func containsAll(value string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	for _, pattern := range patterns {
		if !strings.Contains(value, strings.ToLower(pattern)) {
			return false
		}
	}
	return true
}

func (r Rule) Validate() error {
	switch r.Field {
	case FieldURLQuery, FieldReferrerDomain:
	default:
		return fmt.Errorf("unsupported match field %q", r.Field)
	}
	if len(r.Include) == 0 {
		return fmt.Errorf("rule on %s has no include patterns", r.Field)
	}
	for _, p := range r.Include {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("rule on %s has an empty include pattern", r.Field)
		}
	}
	for _, group := range r.Exclude {
		if len(group) == 0 {
			return fmt.Errorf("rule on %s has an empty exclude group", r.Field)
		}
	}
	return nil
}

// Channel describes one marketing source.
type Channel struct {
	Name      string `yaml:"name" json:"name"`
	Title     string `yaml:"title" json:"title"`
	ItemLabel string `yaml:"item_label" json:"itemLabel"`
	// Windowed channels are restricted to the requested window; others are all-time.
	Windowed bool `yaml:"windowed" json:"windowed"`
	// Views marks channels counted in the totals summary.
	Views    bool   `yaml:"views" json:"views"`
	Resolver string `yaml:"resolver" json:"resolver"`
	Labels   string `yaml:"labels" json:"-"`
	Match    Rule   `yaml:"match" json:"match"`
}

func (c Channel) Validate() error {
	if c.Name == "" {
		return errors.New("channel without a name")
	}
	switch c.Resolver {
	case ResolverPath:
	case ResolverPrefix:
		switch c.Labels {
		case LabelsLinkedIn, LabelsYouTube, LabelsBrevo:
		default:
			return fmt.Errorf("channel %s: unknown label source %q", c.Name, c.Labels)
		}
	default:
		return fmt.Errorf("channel %s: unknown resolver %q", c.Name, c.Resolver)
	}
	if err := c.Match.Validate(); err != nil {
		return fmt.Errorf("channel %s: %w", c.Name, err)
	}
	return nil
}

// Registry is an ordered, read-only set of channels.
type Registry struct {
	channels []Channel
	byName   map[string]int
}

// NewRegistry validates the channels and indexes them by name.
func NewRegistry(list []Channel) (*Registry, error) {
	r := &Registry{byName: make(map[string]int, len(list))}
	for _, c := range list {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		key := strings.ToLower(c.Name)
		if _, dup := r.byName[key]; dup {
			return nil, fmt.Errorf("duplicate channel %q", c.Name)
		}
		r.byName[key] = len(r.channels)
		r.channels = append(r.channels, c)
	}
	return r, nil
}

// Parse builds a registry from YAML.
func Parse(data []byte) (*Registry, error) {
	var list []Channel
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse channels: %w", err)
	}
	return NewRegistry(list)
}

var (
	defaultRegistry *Registry
	defaultErr      error
	defaultOnce     sync.Once
)

// Default returns the registry embedded in the binary.
func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		defaultRegistry, defaultErr = Parse(registryFile)
	})
	return defaultRegistry, defaultErr
}

// Lookup finds a channel by case-insensitive name.
func (r *Registry) Lookup(name string) (Channel, error) {
	idx, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Channel{}, fmt.Errorf("%w: %q", ErrUnknownChannel, name)
	}
	return r.channels[idx], nil
}

// All returns the channels in registry order.
func (r *Registry) All() []Channel {
	out := make([]Channel, len(r.channels))
	copy(out, r.channels)
	return out
}
