package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attribly/internal/channels"
	"attribly/internal/store"
	"attribly/internal/testsupport"
	"attribly/internal/timeframe"
)

func linkedInRule() channels.Rule {
	return channels.Rule{
		Field:   channels.FieldURLQuery,
		Include: []string{"utm_source=linkedin"},
		Exclude: [][]string{{"utm_medium=bio", "utm_source=linkedin"}},
	}
}

func TestEventsAppliesRuleAndWindow(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	fx := testsupport.NewFixtures(t, db)
	s := store.New(db)
	ctx := context.Background()

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC)
	window, err := timeframe.NewWindow(start, end)
	require.NoError(t, err)

	inStart := fx.Pageview("s1", "/a", "utm_source=linkedin", "", start)
	fx.Pageview("s1", "/a", "utm_source=LINKEDIN&x=1", "", start.Add(time.Hour))
	fx.Pageview("s2", "/a", "utm_medium=bio&utm_source=linkedin", "", start.Add(time.Hour))
	fx.Pageview("s3", "/a", "utm_source=youtube", "", start.Add(time.Hour))
	fx.Pageview("s4", "/a", "utm_source=linkedin", "", end)
	fx.Pageview("s5", "/a", "utm_source=linkedin", "", start.Add(-time.Second))
	// '_' must not act as a wildcard
	fx.Pageview("s6", "/a", "utmXsource=linkedin", "", start.Add(time.Hour))

	events, err := s.Events(ctx, linkedInRule(), window)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, inStart.EventID, events[0].EventID)
	assert.Equal(t, "s1", events[0].SessionID)
	assert.Equal(t, "/a", events[0].URLPath)
	assert.True(t, events[0].CreatedAt.Equal(start))

	count, err := s.CountEvents(ctx, linkedInRule(), window)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	all, err := s.Events(ctx, linkedInRule(), nil)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestEventsOnReferrerDomain(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	fx := testsupport.NewFixtures(t, db)
	s := store.New(db)

	at := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	fx.Pageview("s1", "/a", "", "www.google.com", at)
	fx.Pageview("s2", "/b", "", "bing.com", at)

	rule := channels.Rule{Field: channels.FieldReferrerDomain, Include: []string{"google"}}
	events, err := s.Events(context.Background(), rule, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "/a", events[0].URLPath)

	_, err = s.Events(context.Background(), channels.Rule{Field: "url_path", Include: []string{"x"}}, nil)
	assert.Error(t, err)
}

func TestContentLabels(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	fx := testsupport.NewFixtures(t, db)
	s := store.New(db, store.WithYouTubeFetchDate("2025-09-08"))
	ctx := context.Background()

	fx.LinkedInPost("li-1", "Second label")
	fx.LinkedInPost("li-1", "First label")
	fx.YouTubeVideo("yt-1", "Old title", "2025-08-01")
	fx.YouTubeVideo("yt-1", "Current title", "2025-09-08")
	fx.BrevoCampaign(42, "September newsletter")

	li, err := s.ContentLabels(ctx, channels.LabelsLinkedIn)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"li-1": "First label"}, li)

	yt, err := s.ContentLabels(ctx, channels.LabelsYouTube)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"yt-1": "Current title"}, yt)

	brevo, err := s.ContentLabels(ctx, channels.LabelsBrevo)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"42": "September newsletter"}, brevo)

	_, err = s.ContentLabels(ctx, "tiktok")
	assert.Error(t, err)
}

func TestContentItemsSkipsEmptyLinks(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	fx := testsupport.NewFixtures(t, db)
	s := store.New(db)

	fx.Content("a", "https://medblocks.com/a")
	fx.Content("b", "")

	items, err := s.ContentItems(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0].ContentID)
}

func TestSignupLookups(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	fx := testsupport.NewFixtures(t, db)
	s := store.New(db)
	ctx := context.Background()

	at := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	fx.Pageview("s1", "/a", "utm_source=linkedin", "", at)
	signup := fx.SignupIntent("s1", "user-1", at.Add(time.Minute), at.Add(time.Minute))
	fx.User("user-1", at.Add(time.Minute))
	fx.SignupIntent("s9", "user-9", at, at)

	signups, err := s.SignupEvents(ctx, []string{"s1", "s2"})
	require.NoError(t, err)
	require.Len(t, signups, 1)
	assert.Equal(t, signup.EventID, signups[0].EventID)

	attrs, err := s.EventAttributes(ctx, []string{signup.EventID}, store.AttributeUserID)
	require.NoError(t, err)
	require.Len(t, attrs, 1)
	assert.Equal(t, "user-1", attrs[0].Value)

	users, err := s.Users(ctx, []string{"user-1", "missing"})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.True(t, users[0].DateCreated.Equal(at.Add(time.Minute)))

	none, err := s.SignupEvents(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCountUsers(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	fx := testsupport.NewFixtures(t, db)
	s := store.New(db)
	ctx := context.Background()

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC)
	fx.User("u1", start)
	fx.User("u2", start.Add(48*time.Hour))
	fx.User("u3", end)

	window, err := timeframe.NewWindow(start, end)
	require.NoError(t, err)

	inWindow, err := s.CountUsers(ctx, window)
	require.NoError(t, err)
	assert.Equal(t, int64(2), inWindow)

	all, err := s.CountUsers(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), all)

	require.NoError(t, s.Ping(ctx))
}
