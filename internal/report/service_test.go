package report_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"attribly/internal/attribution"
	"attribly/internal/cache"
	"attribly/internal/channels"
	"attribly/internal/report"
	"attribly/internal/store"
	"attribly/internal/testsupport"
	"attribly/internal/timeframe"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newService(t *testing.T, db *gorm.DB, c cache.Cache, ttl time.Duration) *report.Service {
	t.Helper()
	reg, err := channels.Default()
	require.NoError(t, err)
	engine := attribution.NewEngine(store.New(db), reg, attribution.Options{SiteOrigin: "https://medblocks.com"}, testsupport.GetLogger())
	return report.NewService(engine, c, ttl, testsupport.GetLogger())
}

func week(t *testing.T) *timeframe.Window {
	t.Helper()
	w, err := timeframe.NewWindow(t0, t0.AddDate(0, 0, 7))
	require.NoError(t, err)
	return w
}

func seedLinkedIn(fx *testsupport.Fixtures) {
	fx.Content("li-1", "https://medblocks.com/a")
	fx.LinkedInPost("li-1", "Post A")
	fx.Pageview("s1", "/a", "utm_source=linkedin", "", t0.Add(time.Hour))
	fx.Pageview("s1", "/a", "utm_source=linkedin", "", t0.Add(2*time.Hour))
	fx.Pageview("s2", "/a", "utm_source=linkedin", "", t0.Add(3*time.Hour))
	fx.ConvertingSignup("s1", t0.Add(4*time.Hour))
}

func TestServiceSummary(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	seedLinkedIn(testsupport.NewFixtures(t, db))
	svc := newService(t, db, nil, 0)

	summary, err := svc.Summary(context.Background(), "LinkedIn", week(t))
	require.NoError(t, err)
	assert.Equal(t, "linkedin", summary.Channel)
	require.Len(t, summary.Rows, 1)
	assert.Equal(t, "33.3%", summary.Rows[0].Rate)
	assert.Equal(t, report.ChannelTotals{Redirects: 3, Conversions: 1, Rate: 33.3, RateLabel: "33.3%"}, summary.Totals)

	_, err = svc.Summary(context.Background(), "tiktok", week(t))
	assert.ErrorIs(t, err, channels.ErrUnknownChannel)
}

func TestServiceCachesRows(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	fx := testsupport.NewFixtures(t, db)
	seedLinkedIn(fx)

	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCache(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	defer c.Close()

	svc := newService(t, db, c, time.Minute)
	ctx := context.Background()

	first, err := svc.Rows(ctx, "linkedin", week(t))
	require.NoError(t, err)

	// new data is not visible until the entry expires
	fx.Pageview("s3", "/a", "utm_source=linkedin", "", t0.Add(5*time.Hour))
	second, err := svc.Rows(ctx, "linkedin", week(t))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	mr.FastForward(2 * time.Minute)
	third, err := svc.Rows(ctx, "linkedin", week(t))
	require.NoError(t, err)
	assert.Equal(t, 4, third[0].RedirectCount)
}

func TestServiceSurvivesCacheOutage(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	seedLinkedIn(testsupport.NewFixtures(t, db))

	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCache(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	defer c.Close()
	mr.Close()

	svc := newService(t, db, c, time.Minute)
	rows, err := svc.Rows(context.Background(), "linkedin", week(t))
	require.NoError(t, err)
	assert.Equal(t, 3, rows[0].RedirectCount)
}

func TestServiceOverview(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	fx := testsupport.NewFixtures(t, db)
	seedLinkedIn(fx)
	fx.User("early-bird", t0.AddDate(0, 0, -30))

	svc := newService(t, db, nil, 0)
	overview, err := svc.Overview(context.Background(), week(t))
	require.NoError(t, err)

	assert.Equal(t, int64(2), overview.TotalUsers)
	require.NotNil(t, overview.Totals)
	assert.Equal(t, int64(1), overview.Totals.TotalUsers)
	assert.Equal(t, int64(3), overview.Totals.LinkedInViews)
	assert.Equal(t, int64(0), overview.Totals.Other)

	var names []string
	for _, c := range overview.Channels {
		names = append(names, c.Channel)
	}
	assert.Equal(t, []string{"linkedin", "youtube", "google", "brevo"}, names)
	assert.Equal(t, 3, overview.Channels[0].Totals.Redirects)
	assert.Equal(t, "0%", overview.Channels[1].Totals.RateLabel)

	_, err = svc.Overview(context.Background(), nil)
	assert.ErrorIs(t, err, timeframe.ErrInvalidWindow)
}

func TestServiceOverviewFailsWhenAnyPartFails(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	svc := newService(t, db, nil, 0)
	require.NoError(t, db.Migrator().DropTable(&store.BrevoCampaign{}))

	_, err := svc.Overview(context.Background(), week(t))
	assert.ErrorIs(t, err, attribution.ErrStore)
}
