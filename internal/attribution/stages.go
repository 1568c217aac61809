package attribution

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"attribly/internal/channels"
	"attribly/internal/store"
	"attribly/internal/timeframe"
)

// Row is the attribution result for one content item.
type Row struct {
	Post          string `json:"post"`
	RedirectCount int    `json:"redirect_count"`
	UserConverted int    `json:"user_converted"`
}

// Resolved is a base event attached to the item it was attributed to.
type Resolved struct {
	EventID   string
	SessionID string
	Label     string
}

// SelectBase keeps the events that belong to the channel. Channels that are
// not windowed ignore the window.
func SelectBase(events []store.Event, ch channels.Channel, window *timeframe.Window) []store.Event {
	if !ch.Windowed {
		window = nil
	}

	base := make([]store.Event, 0, len(events))
	for _, e := range events {
		if !window.Contains(e.CreatedAt) {
			continue
		}
		if !ch.Match.Matches(fieldValue(e, ch.Match.Field)) {
			continue
		}
		base = append(base, e)
	}
	return base
}

func fieldValue(e store.Event, field string) string {
	switch field {
	case channels.FieldURLQuery:
		return e.URLQuery
	case channels.FieldReferrerDomain:
		return e.ReferrerDomain
	default:
		return ""
	}
}

// Resolver attributes an event to a content item label.
type Resolver interface {
	Resolve(e store.Event) (label string, ok bool)
}

// PathResolver treats every URL path as its own item.
type PathResolver struct{}

func (PathResolver) Resolve(e store.Event) (string, bool) {
	return e.URLPath, true
}

type prefixItem struct {
	id        uint
	contentID string
	link      string
}

// PrefixResolver attributes an event to the content item with the longest
// full link that prefixes the event URL. Equal-length links are ordered by
// content id. Events whose best match has no label are dropped.
type PrefixResolver struct {
	origin string
	items  []prefixItem
	labels map[string]string
}

func NewPrefixResolver(origin string, items []store.ContentItem, labels map[string]string) *PrefixResolver {
	r := &PrefixResolver{origin: origin, labels: labels}
	for _, it := range items {
		if it.FullLink == "" {
			continue
		}
		r.items = append(r.items, prefixItem{id: it.ID, contentID: it.ContentID, link: it.FullLink})
	}
	slices.SortStableFunc(r.items, func(a, b prefixItem) int {
		if c := cmp.Compare(len(b.link), len(a.link)); c != 0 {
			return c
		}
		if c := cmp.Compare(a.contentID, b.contentID); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})
	return r
}

func (r *PrefixResolver) Resolve(e store.Event) (string, bool) {
	url := FullURL(r.origin, e.URLPath, e.URLQuery)
	for _, it := range r.items {
		if strings.HasPrefix(url, it.link) {
			label, ok := r.labels[it.contentID]
			return label, ok
		}
	}
	return "", false
}

// FullURL rebuilds the visited URL; the '?' is only added for a non-empty query.
func FullURL(origin, path, query string) string {
	if query == "" {
		return origin + path
	}
	return origin + path + "?" + query
}

// NormalizeLabel applies NFC, collapses whitespace runs to one space and trims.
func NormalizeLabel(label string) string {
	return strings.Join(strings.Fields(norm.NFC.String(label)), " ")
}

// Resolve attributes every base event, dropping the ones without an item.
func Resolve(base []store.Event, resolver Resolver) []Resolved {
	resolved := make([]Resolved, 0, len(base))
	for _, e := range base {
		label, ok := resolver.Resolve(e)
		if !ok {
			continue
		}
		resolved = append(resolved, Resolved{
			EventID:   e.EventID,
			SessionID: e.SessionID,
			Label:     NormalizeLabel(label),
		})
	}
	return resolved
}

// CountRedirects counts distinct events per item.
func CountRedirects(resolved []Resolved) map[string]int {
	seen := make(map[[2]string]struct{}, len(resolved))
	counts := make(map[string]int)
	for _, r := range resolved {
		key := [2]string{r.Label, r.EventID}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		counts[r.Label]++
	}
	return counts
}

// Sessions returns the distinct sessions of the resolved events in first-seen order.
func Sessions(resolved []Resolved) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range resolved {
		if _, dup := seen[r.SessionID]; dup {
			continue
		}
		seen[r.SessionID] = struct{}{}
		out = append(out, r.SessionID)
	}
	return out
}

// FirstSignupBySession picks each session's earliest custom event. Ties on the
// timestamp go to the smallest event id.
func FirstSignupBySession(signups []store.Event) map[string]store.Event {
	first := make(map[string]store.Event)
	for _, e := range signups {
		if e.EventType != store.EventTypeCustom {
			continue
		}
		cur, ok := first[e.SessionID]
		if !ok || e.CreatedAt.Before(cur.CreatedAt) ||
			(e.CreatedAt.Equal(cur.CreatedAt) && e.EventID < cur.EventID) {
			first[e.SessionID] = e
		}
	}
	return first
}

// EarliestAttributeByEvent picks each event's earliest attribute. Ties on the
// timestamp go to the smallest value.
func EarliestAttributeByEvent(attrs []store.Attribute) map[string]store.Attribute {
	earliest := make(map[string]store.Attribute)
	for _, a := range attrs {
		cur, ok := earliest[a.EventID]
		if !ok || a.CreatedAt.Before(cur.CreatedAt) ||
			(a.CreatedAt.Equal(cur.CreatedAt) && a.Value < cur.Value) {
			earliest[a.EventID] = a
		}
	}
	return earliest
}

// ConvertedSessions flags the sessions whose first signup-intent event carries
// a user id belonging to an account created within tolerance of the
// attribute's timestamp, bounds included.
func ConvertedSessions(
	firstSignup map[string]store.Event,
	userAttr map[string]store.Attribute,
	accounts []store.Account,
	tolerance time.Duration,
) map[string]bool {
	created := make(map[string][]time.Time, len(accounts))
	for _, a := range accounts {
		created[a.ID] = append(created[a.ID], a.DateCreated)
	}

	converted := make(map[string]bool, len(firstSignup))
	for session, signup := range firstSignup {
		attr, ok := userAttr[signup.EventID]
		if !ok {
			continue
		}
		lo := attr.CreatedAt.Add(-tolerance)
		hi := attr.CreatedAt.Add(tolerance)
		for _, at := range created[attr.Value] {
			if !at.Before(lo) && !at.After(hi) {
				converted[session] = true
				break
			}
		}
	}
	return converted
}

// Rollup sums the conversion flags over the distinct (item, session) pairs
// and attaches the redirect counts.
func Rollup(resolved []Resolved, redirects map[string]int, converted map[string]bool) []Row {
	conversions := make(map[string]int, len(redirects))
	seen := make(map[[2]string]struct{})
	for _, r := range resolved {
		key := [2]string{r.Label, r.SessionID}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if converted[r.SessionID] {
			conversions[r.Label]++
		}
	}

	rows := make([]Row, 0, len(redirects))
	for label, count := range redirects {
		rows = append(rows, Row{
			Post:          label,
			RedirectCount: count,
			UserConverted: conversions[label],
		})
	}
	SortRows(rows)
	return rows
}

// SortRows orders by conversions, then redirects, both descending, then by post.
func SortRows(rows []Row) {
	slices.SortFunc(rows, func(a, b Row) int {
		if c := cmp.Compare(b.UserConverted, a.UserConverted); c != 0 {
			return c
		}
		if c := cmp.Compare(b.RedirectCount, a.RedirectCount); c != 0 {
			return c
		}
		return strings.Compare(a.Post, b.Post)
	})
}
