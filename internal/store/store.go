package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"attribly/internal/channels"
	"attribly/internal/metrics"
	"attribly/internal/timeframe"
)

// inChunkSize bounds the number of bind parameters per IN list.
const inChunkSize = 500

// ruleColumns maps rule fields to the SQL expression they are matched against.
var ruleColumns = map[string]string{
	channels.FieldURLQuery:       "LOWER(COALESCE(url_query, ''))",
	channels.FieldReferrerDomain: "LOWER(COALESCE(referrer_domain, ''))",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Store runs read-only queries against the analytics database.
type Store struct {
	db               *gorm.DB
	youTubeFetchDate string
}

type Option func(*Store)

// WithYouTubeFetchDate selects the metadata snapshot titles are read from.
func WithYouTubeFetchDate(date string) Option {
	return func(s *Store) {
		s.youTubeFetchDate = date
	}
}

func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Events returns the events matching rule inside window. A nil window means all time.
func (s *Store) Events(ctx context.Context, rule channels.Rule, window *timeframe.Window) (events []Event, err error) {
	defer observe("events", time.Now(), &err)

	where, args, err := ruleClause(rule)
	if err != nil {
		return nil, err
	}
	windowSQL, windowArgs := windowClause("created_at", window)

	query := `SELECT event_id, COALESCE(session_id, '') AS session_id, created_at,
		COALESCE(url_path, '') AS url_path, COALESCE(url_query, '') AS url_query,
		COALESCE(referrer_domain, '') AS referrer_domain, COALESCE(event_type, 0) AS event_type
		FROM umami_website_event
		WHERE ` + windowSQL + ` AND ` + where + `
		ORDER BY created_at, event_id`

	if err := s.db.WithContext(ctx).Raw(query, append(windowArgs, args...)...).Scan(&events).Error; err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return events, nil
}

// CountEvents counts the events matching rule inside window.
func (s *Store) CountEvents(ctx context.Context, rule channels.Rule, window *timeframe.Window) (count int64, err error) {
	defer observe("count_events", time.Now(), &err)

	where, args, err := ruleClause(rule)
	if err != nil {
		return 0, err
	}
	windowSQL, windowArgs := windowClause("created_at", window)

	query := `SELECT COUNT(*) FROM umami_website_event WHERE ` + windowSQL + ` AND ` + where
	if err := s.db.WithContext(ctx).Raw(query, append(windowArgs, args...)...).Scan(&count).Error; err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// ContentItems returns every content row with a non-empty link.
func (s *Store) ContentItems(ctx context.Context) (items []ContentItem, err error) {
	defer observe("content_items", time.Now(), &err)

	query := `SELECT id, CAST(content_id AS TEXT) AS content_id, full_link
		FROM directus_content
		WHERE full_link IS NOT NULL AND full_link <> '' AND content_id IS NOT NULL
		ORDER BY id`
	if err := s.db.WithContext(ctx).Raw(query).Scan(&items).Error; err != nil {
		return nil, fmt.Errorf("query content: %w", err)
	}
	return items, nil
}

type labelRow struct {
	ContentID string `gorm:"column:content_id"`
	Label     string `gorm:"column:label"`
}

// ContentLabels maps content ids to the display label of the given channel
// metadata source. When a content id has several metadata rows the smallest
// label wins.
func (s *Store) ContentLabels(ctx context.Context, source string) (labels map[string]string, err error) {
	defer observe("content_labels_"+source, time.Now(), &err)

	var (
		query string
		args  []any
	)
	switch source {
	case channels.LabelsLinkedIn:
		query = `SELECT CAST(post_url_id AS TEXT) AS content_id, COALESCE(post, '') AS label
			FROM linkedin WHERE post_url_id IS NOT NULL`
	case channels.LabelsYouTube:
		query = `SELECT CAST(video_id AS TEXT) AS content_id, COALESCE(video_title, '') AS label
			FROM youtube WHERE video_id IS NOT NULL AND CAST(fetch_date AS TEXT) = ?`
		args = append(args, s.youTubeFetchDate)
	case channels.LabelsBrevo:
		query = `SELECT CAST(campaign_id AS TEXT) AS content_id, COALESCE(campaign_name, '') AS label
			FROM brevo_cumulative WHERE campaign_id IS NOT NULL`
	default:
		return nil, fmt.Errorf("unknown label source %q", source)
	}
	query += ` ORDER BY content_id, label`

	var rows []labelRow
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("query %s labels: %w", source, err)
	}

	labels = make(map[string]string, len(rows))
	for _, r := range rows {
		if _, seen := labels[r.ContentID]; !seen {
			labels[r.ContentID] = r.Label
		}
	}
	return labels, nil
}

// SignupEvents returns every custom event recorded for the given sessions, at any time.
func (s *Store) SignupEvents(ctx context.Context, sessionIDs []string) (events []Event, err error) {
	defer observe("signup_events", time.Now(), &err)

	err = chunked(sessionIDs, inChunkSize, func(chunk []string) error {
		var batch []Event
		query := `SELECT event_id, session_id, created_at, COALESCE(event_type, 0) AS event_type
			FROM umami_website_event
			WHERE event_type = ? AND created_at IS NOT NULL AND session_id IN ?`
		if err := s.db.WithContext(ctx).Raw(query, EventTypeCustom, chunk).Scan(&batch).Error; err != nil {
			return fmt.Errorf("query signup events: %w", err)
		}
		events = append(events, batch...)
		return nil
	})
	return events, err
}

// EventAttributes returns the attributes named key attached to the given events.
func (s *Store) EventAttributes(ctx context.Context, eventIDs []string, key string) (attrs []Attribute, err error) {
	defer observe("event_attributes", time.Now(), &err)

	err = chunked(eventIDs, inChunkSize, func(chunk []string) error {
		var batch []Attribute
		query := `SELECT website_event_id, data_key, COALESCE(string_value, '') AS string_value, created_at
			FROM umami_event_data
			WHERE data_key = ? AND created_at IS NOT NULL AND website_event_id IN ?`
		if err := s.db.WithContext(ctx).Raw(query, key, chunk).Scan(&batch).Error; err != nil {
			return fmt.Errorf("query event attributes: %w", err)
		}
		attrs = append(attrs, batch...)
		return nil
	})
	return attrs, err
}

// Users returns the accounts with the given ids.
func (s *Store) Users(ctx context.Context, ids []string) (users []Account, err error) {
	defer observe("users", time.Now(), &err)

	err = chunked(ids, inChunkSize, func(chunk []string) error {
		var batch []Account
		query := `SELECT CAST(id AS TEXT) AS id, date_created
			FROM directus_user
			WHERE date_created IS NOT NULL AND CAST(id AS TEXT) IN ?`
		if err := s.db.WithContext(ctx).Raw(query, chunk).Scan(&batch).Error; err != nil {
			return fmt.Errorf("query users: %w", err)
		}
		users = append(users, batch...)
		return nil
	})
	return users, err
}

// CountUsers counts accounts created inside window; a nil window counts all of them.
func (s *Store) CountUsers(ctx context.Context, window *timeframe.Window) (count int64, err error) {
	defer observe("count_users", time.Now(), &err)

	query := `SELECT COUNT(*) FROM directus_user`
	var args []any
	if window != nil {
		query += ` WHERE date_created >= ? AND date_created < ?`
		args = append(args, window.Start, window.End)
	}
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&count).Error; err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// ruleClause renders a channel rule as a SQL predicate over one whitelisted column.
func ruleClause(rule channels.Rule) (string, []any, error) {
	column, ok := ruleColumns[rule.Field]
	if !ok {
		return "", nil, fmt.Errorf("unsupported rule field %q", rule.Field)
	}
	if len(rule.Include) == 0 {
		return "", nil, fmt.Errorf("rule on %s has no include patterns", rule.Field)
	}

	var (
		includes []string
		args     []any
	)
	for _, p := range rule.Include {
		includes = append(includes, column+` LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(p))
	}
	clause := "(" + strings.Join(includes, " OR ") + ")"

	for _, group := range rule.Exclude {
		if len(group) == 0 {
			continue
		}
		var all []string
		for _, p := range group {
			all = append(all, column+` LIKE ? ESCAPE '\'`)
			args = append(args, likePattern(p))
		}
		clause += " AND NOT (" + strings.Join(all, " AND ") + ")"
	}
	return clause, args, nil
}

func likePattern(substr string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(substr)) + "%"
}

func windowClause(column string, window *timeframe.Window) (string, []any) {
	if window == nil {
		return column + " IS NOT NULL", nil
	}
	return column + " >= ? AND " + column + " < ?", []any{window.Start, window.End}
}

func chunked(ids []string, size int, fn func([]string) error) error {
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		if err := fn(ids[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func observe(query string, start time.Time, err *error) {
	metrics.ObserveQuery(query, start, *err)
}
