package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"strconv"
	"time"

	"gorm.io/gorm"

	"attribly/internal/store"
)

// ConnectionProvider hands out the database the seeder writes to.
type ConnectionProvider interface {
	GetConnection() *gorm.DB
}

// Seeder fills a development database with content metadata, tagged visits
// and signups so every dashboard tab has something to show.
type Seeder struct {
	DBManager  ConnectionProvider
	Logger     *slog.Logger
	EventCount int
	Origin     string
	FetchDate  string
	Days       int

	rng *rand.Rand
	seq int
}

// NewSeeder creates a new seeder instance. The same seed produces the same data.
func NewSeeder(dbManager ConnectionProvider, logger *slog.Logger, eventCount int, seed uint64) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		DBManager:  dbManager,
		Logger:     logger,
		EventCount: eventCount,
		Origin:     "https://medblocks.com",
		FetchDate:  "2025-09-08",
		Days:       30,
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

type contentTemplate struct {
	path  string
	query string
	label string
}

var linkedInPosts = []contentTemplate{
	{"/blog/openehr-in-practice", "utm_source=linkedin&utm_medium=social", "openEHR in practice: lessons from three hospitals"},
	{"/blog/fhir-vs-openehr", "utm_source=linkedin&utm_medium=social", "FHIR vs openEHR, and why you need both"},
	{"/courses/fhir-bootcamp", "utm_source=linkedin&utm_medium=social", "FHIR Bootcamp cohort 7 is open"},
	{"/webinars/snomed-ct", "utm_source=linkedin&utm_medium=social", "Live: SNOMED CT for developers"},
}

var youTubeVideos = []contentTemplate{
	{"/courses/fhir-bootcamp", "utm_source=youtube&utm_medium=video", "FHIR in 10 minutes"},
	{"/blog/openehr-in-practice", "utm_source=youtube&utm_medium=video", "openEHR archetypes explained"},
	{"/courses/terminology", "utm_source=youtube&utm_medium=video", "Terminology servers from scratch"},
}

var brevoCampaigns = []contentTemplate{
	{"/newsletter/september", "utm_source=brevo&utm_medium=email", "September digest"},
	{"/newsletter/october", "utm_source=brevo&utm_medium=email", "October digest"},
}

var organicPaths = []string{
	"/", "/blog/openehr-in-practice", "/blog/fhir-vs-openehr", "/courses/fhir-bootcamp", "/pricing",
}

// Run writes the whole data set inside one transaction.
func (s *Seeder) Run(ctx context.Context) error {
	start := time.Now()
	s.Logger.Info("Seeding attribution data...", slog.Int("eventCount", s.EventCount), slog.Int("days", s.Days))

	db := s.DBManager.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	var events, signups, users int
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.seedContent(tx); err != nil {
			return err
		}
		var err error
		events, signups, users, err = s.seedVisits(tx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to seed attribution data: %w", err)
	}

	s.Logger.Info("Seeding completed",
		slog.Int("events", events),
		slog.Int("signups", signups),
		slog.Int("users", users),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

func (s *Seeder) seedContent(tx *gorm.DB) error {
	id := 1000
	for i, p := range linkedInPosts {
		contentID := "li-" + strconv.Itoa(i+1)
		if err := s.createContent(tx, contentID, p); err != nil {
			return err
		}
		if err := tx.Create(&store.LinkedInPost{PostURLID: contentID, Post: p.label}).Error; err != nil {
			return fmt.Errorf("failed to create linkedin post: %w", err)
		}
	}
	for i, v := range youTubeVideos {
		contentID := "yt-" + strconv.Itoa(i+1)
		if err := s.createContent(tx, contentID, v); err != nil {
			return err
		}
		if err := tx.Create(&store.YouTubeVideo{VideoID: contentID, VideoTitle: v.label, FetchDate: s.FetchDate}).Error; err != nil {
			return fmt.Errorf("failed to create youtube video: %w", err)
		}
	}
	for _, c := range brevoCampaigns {
		id++
		contentID := strconv.Itoa(id)
		if err := s.createContent(tx, contentID, c); err != nil {
			return err
		}
		if err := tx.Create(&store.BrevoCampaign{CampaignID: int64(id), CampaignName: c.label}).Error; err != nil {
			return fmt.Errorf("failed to create brevo campaign: %w", err)
		}
	}
	return nil
}

func (s *Seeder) createContent(tx *gorm.DB, contentID string, t contentTemplate) error {
	link := s.Origin + t.path + "?" + t.query
	if err := tx.Create(&store.Content{ContentID: contentID, FullLink: link}).Error; err != nil {
		return fmt.Errorf("failed to create content %s: %w", contentID, err)
	}
	return nil
}

// seedVisits spreads sessions over the last Days days. Each session lands
// through one source and views one to four pages; some sign up.
func (s *Seeder) seedVisits(tx *gorm.DB) (events, signups, users int, err error) {
	now := time.Now().UTC()
	var (
		pageviews []store.WebsiteEvent
		data      []store.EventData
		accounts  []store.User
	)

	for events < s.EventCount {
		session := s.nextID("session")
		landing := now.Add(-time.Duration(s.rng.Int64N(int64(s.Days) * int64(24*time.Hour))))
		path, query, referrer := s.landing()

		views := 1 + s.rng.IntN(4)
		at := landing
		for v := 0; v < views && events < s.EventCount; v++ {
			pageviews = append(pageviews, store.WebsiteEvent{
				EventID:        s.nextID("evt"),
				SessionID:      session,
				CreatedAt:      at,
				URLPath:        path,
				URLQuery:       query,
				ReferrerDomain: referrer,
				EventType:      store.EventTypePageview,
			})
			events++
			at = at.Add(time.Duration(10+s.rng.IntN(300)) * time.Second)
			path, query, referrer = organicPaths[s.rng.IntN(len(organicPaths))], "", ""
		}

		if s.rng.Float64() >= 0.12 {
			continue
		}

		signupID := s.nextID("evt")
		userID := s.nextID("user")
		pageviews = append(pageviews, store.WebsiteEvent{
			EventID:   signupID,
			SessionID: session,
			CreatedAt: at,
			URLPath:   "/signup",
			EventType: store.EventTypeCustom,
		})
		data = append(data, store.EventData{
			EventDataID:    s.nextID("data"),
			WebsiteEventID: signupID,
			DataKey:        store.AttributeUserID,
			StringValue:    userID,
			CreatedAt:      at,
		})
		signups++

		// most accounts appear within seconds, a few never do
		if s.rng.Float64() < 0.85 {
			accounts = append(accounts, store.User{
				ID:          userID,
				DateCreated: at.Add(time.Duration(s.rng.IntN(30)) * time.Second),
			})
			users++
		}
	}

	if err := tx.CreateInBatches(pageviews, 500).Error; err != nil {
		return 0, 0, 0, fmt.Errorf("failed to insert events: %w", err)
	}
	if len(data) > 0 {
		if err := tx.CreateInBatches(data, 500).Error; err != nil {
			return 0, 0, 0, fmt.Errorf("failed to insert event data: %w", err)
		}
	}
	if len(accounts) > 0 {
		if err := tx.CreateInBatches(accounts, 500).Error; err != nil {
			return 0, 0, 0, fmt.Errorf("failed to insert users: %w", err)
		}
	}
	return events, signups, users, nil
}

// landing picks the entry page of a session and how it was tagged.
func (s *Seeder) landing() (path, query, referrer string) {
	switch roll := s.rng.Float64(); {
	case roll < 0.30:
		return s.tagged(linkedInPosts)
	case roll < 0.35:
		// bio link, excluded from the LinkedIn report
		return "/", "utm_source=linkedin&utm_medium=bio", ""
	case roll < 0.55:
		return s.tagged(youTubeVideos)
	case roll < 0.75:
		return organicPaths[s.rng.IntN(len(organicPaths))], "", "www.google.com"
	case roll < 0.85:
		return s.tagged(brevoCampaigns)
	default:
		return organicPaths[s.rng.IntN(len(organicPaths))], "", ""
	}
}

func (s *Seeder) tagged(templates []contentTemplate) (path, query, referrer string) {
	t := templates[s.rng.IntN(len(templates))]
	q := url.Values{}
	if s.rng.IntN(3) == 0 {
		// extra parameters after the tracked link still resolve by prefix
		q.Set("ref", strconv.Itoa(s.rng.IntN(100)))
		return t.path, t.query + "&" + q.Encode(), ""
	}
	return t.path, t.query, ""
}

func (s *Seeder) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%06d", prefix, s.seq)
}
