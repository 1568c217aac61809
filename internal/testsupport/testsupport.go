package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"attribly/internal/store"
)

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// SetupTestDB creates a test database with every store relation migrated.
// Uses a named in-memory database with cache=shared to allow multiple connections
// to share the same database within a test. Caches the database by test name
// so multiple calls within the same test return the same database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Use root test name for caching so subtests share their parent's database
	rootName := t.Name()
	if idx := strings.Index(rootName, "/"); idx > 0 {
		rootName = rootName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	if err := db.AutoMigrate(store.AllModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// Fixtures writes rows into a test database. IDs are generated so tests only
// spell out what matters to them.
type Fixtures struct {
	t   *testing.T
	db  *gorm.DB
	seq int
}

func NewFixtures(t *testing.T, db *gorm.DB) *Fixtures {
	return &Fixtures{t: t, db: db}
}

func (f *Fixtures) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%04d", prefix, f.seq)
}

// Content registers a content item and its canonical link.
func (f *Fixtures) Content(contentID, fullLink string) store.Content {
	f.t.Helper()
	c := store.Content{ContentID: contentID, FullLink: fullLink}
	require.NoError(f.t, f.db.Create(&c).Error)
	return c
}

func (f *Fixtures) LinkedInPost(postURLID, post string) {
	f.t.Helper()
	require.NoError(f.t, f.db.Create(&store.LinkedInPost{PostURLID: postURLID, Post: post}).Error)
}

func (f *Fixtures) YouTubeVideo(videoID, title, fetchDate string) {
	f.t.Helper()
	require.NoError(f.t, f.db.Create(&store.YouTubeVideo{VideoID: videoID, VideoTitle: title, FetchDate: fetchDate}).Error)
}

func (f *Fixtures) BrevoCampaign(campaignID int64, name string) {
	f.t.Helper()
	require.NoError(f.t, f.db.Create(&store.BrevoCampaign{CampaignID: campaignID, CampaignName: name}).Error)
}

// Pageview records a tracked pageview. The query string is given without the leading '?'.
func (f *Fixtures) Pageview(sessionID, path, query, referrer string, at time.Time) store.WebsiteEvent {
	f.t.Helper()
	e := store.WebsiteEvent{
		EventID:        f.nextID("evt"),
		SessionID:      sessionID,
		CreatedAt:      at.UTC(),
		URLPath:        path,
		URLQuery:       query,
		ReferrerDomain: referrer,
		EventType:      store.EventTypePageview,
	}
	require.NoError(f.t, f.db.Create(&e).Error)
	return e
}

// SignupIntent records a custom event carrying a user_id attribute.
func (f *Fixtures) SignupIntent(sessionID, userID string, at, attributeAt time.Time) store.WebsiteEvent {
	f.t.Helper()
	e := store.WebsiteEvent{
		EventID:   f.nextID("evt"),
		SessionID: sessionID,
		CreatedAt: at.UTC(),
		URLPath:   "/signup",
		EventType: store.EventTypeCustom,
	}
	require.NoError(f.t, f.db.Create(&e).Error)
	f.Attribute(e.EventID, store.AttributeUserID, userID, attributeAt)
	return e
}

func (f *Fixtures) Attribute(eventID, key, value string, at time.Time) {
	f.t.Helper()
	require.NoError(f.t, f.db.Create(&store.EventData{
		EventDataID:    f.nextID("data"),
		WebsiteEventID: eventID,
		DataKey:        key,
		StringValue:    value,
		CreatedAt:      at.UTC(),
	}).Error)
}

func (f *Fixtures) User(id string, created time.Time) {
	f.t.Helper()
	require.NoError(f.t, f.db.Create(&store.User{ID: id, DateCreated: created.UTC()}).Error)
}

// ConvertingSignup records a signup-intent event whose user was created at the
// same moment, so the session counts as converted.
func (f *Fixtures) ConvertingSignup(sessionID string, at time.Time) string {
	f.t.Helper()
	userID := f.nextID("user")
	f.SignupIntent(sessionID, userID, at, at)
	f.User(userID, at)
	return userID
}
