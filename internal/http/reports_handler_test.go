package http

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"attribly/internal/attribution"
	"attribly/internal/channels"
	"attribly/internal/http/middleware"
	"attribly/internal/report"
	"attribly/internal/store"
	"attribly/internal/testsupport"
)

const origin = "https://medblocks.com"

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now(loc *time.Location) time.Time { return c.now.In(loc) }

func newTestApp(t *testing.T, db *gorm.DB, mw ...fiber.Handler) *fiber.App {
	t.Helper()
	reg, err := channels.Default()
	require.NoError(t, err)

	s := store.New(db)
	engine := attribution.NewEngine(s, reg, attribution.Options{SiteOrigin: origin}, testsupport.GetLogger())
	reports := report.NewService(engine, nil, 0, testsupport.GetLogger())
	h := NewHandler(reports, s, testsupport.GetLogger(), fixedClock{now: t0.AddDate(0, 0, 3)})

	app := fiber.New()
	for _, m := range mw {
		app.Use(m)
	}
	app.Get("/_health", h.HealthIndexAction)
	app.Get("/total-users", h.TotalUsersAction)
	app.Get("/totals", h.TotalsAction)
	app.Get("/linkedin", h.ChannelAction("linkedin"))
	app.Get("/brevo", h.ChannelAction("brevo"))
	app.Get("/channels", h.ChannelsIndexAction)
	app.Get("/channels/:channel", h.ChannelRowsAction)
	app.Get("/channels/:channel/summary", h.ChannelSummaryAction)
	app.Get("/overview", h.OverviewAction)
	return app
}

func get(t *testing.T, app *fiber.App, target string, dst any) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, target, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if dst != nil {
		require.NoErrorf(t, json.Unmarshal(body, dst), "body: %s", body)
	}
	return resp.StatusCode
}

func seedLinkedIn(fx *testsupport.Fixtures) {
	fx.Content("li-1", origin+"/blog/post-a")
	fx.LinkedInPost("li-1", "Post A")
	fx.Pageview("s1", "/blog/post-a", "utm_source=linkedin", "", t0.Add(time.Hour))
	fx.Pageview("s1", "/blog/post-a", "utm_source=linkedin", "", t0.Add(2*time.Hour))
	fx.Pageview("s2", "/blog/post-a", "utm_source=linkedin", "", t0.Add(3*time.Hour))
	fx.ConvertingSignup("s1", t0.Add(4*time.Hour))
}

const weekQuery = "?start=2025-01-01&end=2025-01-08"

func TestChannelRowsResponse(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	seedLinkedIn(testsupport.NewFixtures(t, db))
	app := newTestApp(t, db)

	var rows []map[string]any
	status := get(t, app, "/linkedin"+weekQuery, &rows)
	require.Equal(t, fiber.StatusOK, status)
	require.Len(t, rows, 1)
	assert.Equal(t, "Post A", rows[0]["post"])
	assert.EqualValues(t, 3, rows[0]["redirect_count"])
	assert.EqualValues(t, 1, rows[0]["user_converted"])

	var byName []map[string]any
	status = get(t, app, "/channels/LinkedIn"+weekQuery, &byName)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, rows, byName)
}

func TestChannelRowsEmptyIsArray(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := newTestApp(t, db)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/linkedin"+weekQuery, nil), -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "[]", string(body))
}

func TestWindowErrors(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := newTestApp(t, db)

	tests := []struct {
		name   string
		target string
	}{
		{"missing end", "/linkedin?start=2025-01-01"},
		{"missing window", "/linkedin"},
		{"inverted window", "/linkedin?start=2025-01-08&end=2025-01-01"},
		{"unparseable start", "/totals?start=yesterday&end=2025-01-08"},
		{"unknown range", "/overview?range=fortnight"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]string
			status := get(t, app, tt.target, &body)
			assert.Equal(t, fiber.StatusBadRequest, status)
			assert.Contains(t, body["error"], "Invalid time window")
		})
	}
}

func TestUnknownChannel(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := newTestApp(t, db)

	var body map[string]string
	status := get(t, app, "/channels/tiktok"+weekQuery, &body)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "Unknown channel", body["error"])

	status = get(t, app, "/channels/tiktok/summary", &body)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestBrevoIgnoresWindow(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	fx := testsupport.NewFixtures(t, db)
	fx.Content("101", origin+"/newsletter")
	fx.BrevoCampaign(101, "September digest")
	fx.Pageview("s1", "/newsletter", "utm_source=brevo", "", t0.AddDate(-1, 0, 0))
	app := newTestApp(t, db)

	var withoutWindow, withBadWindow []map[string]any
	require.Equal(t, fiber.StatusOK, get(t, app, "/brevo", &withoutWindow))
	require.Equal(t, fiber.StatusOK, get(t, app, "/brevo?start=garbage", &withBadWindow))
	require.Len(t, withoutWindow, 1)
	assert.Equal(t, "September digest", withoutWindow[0]["post"])
	assert.Equal(t, withoutWindow, withBadWindow)
}

func TestTotalsAndTotalUsers(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	fx := testsupport.NewFixtures(t, db)
	seedLinkedIn(fx)
	fx.User("early-bird", t0.AddDate(0, 0, -30))
	app := newTestApp(t, db)

	var users map[string]int64
	require.Equal(t, fiber.StatusOK, get(t, app, "/total-users", &users))
	assert.Equal(t, int64(2), users["totalUsers"])

	var totals attribution.Totals
	require.Equal(t, fiber.StatusOK, get(t, app, "/totals"+weekQuery, &totals))
	assert.Equal(t, attribution.Totals{TotalUsers: 1, LinkedInViews: 3}, totals)

	// range presets resolve against the handler clock
	var ranged attribution.Totals
	require.Equal(t, fiber.StatusOK, get(t, app, "/totals?range=last_7_days", &ranged))
	assert.Equal(t, int64(3), ranged.LinkedInViews)
}

func TestChannelSummaryAndOverview(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	seedLinkedIn(testsupport.NewFixtures(t, db))
	app := newTestApp(t, db)

	var summary report.ChannelSummary
	require.Equal(t, fiber.StatusOK, get(t, app, "/channels/linkedin/summary"+weekQuery, &summary))
	assert.Equal(t, "33.3%", summary.Totals.RateLabel)
	require.Len(t, summary.Rows, 1)
	assert.Equal(t, "33.3%", summary.Rows[0].Rate)

	var overview report.Overview
	require.Equal(t, fiber.StatusOK, get(t, app, "/overview"+weekQuery, &overview))
	assert.Len(t, overview.Channels, 4)
	assert.Equal(t, int64(1), overview.TotalUsers)

	var list []channels.Channel
	require.Equal(t, fiber.StatusOK, get(t, app, "/channels", &list))
	assert.Len(t, list, 4)
	assert.Equal(t, "linkedin", list[0].Name)
}

func TestStoreFailureIsServiceUnavailable(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := newTestApp(t, db)
	require.NoError(t, db.Migrator().DropTable(&store.WebsiteEvent{}))

	var body map[string]string
	status := get(t, app, "/linkedin"+weekQuery, &body)
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, "Analytics database unavailable", body["error"])
}

func TestHealthIndexAction(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := newTestApp(t, db)

	var health HealthStatus
	require.Equal(t, fiber.StatusOK, get(t, app, "/_health", &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "ok", health.DBStatus)
}

func TestDashboardAuth(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	app := newTestApp(t, db, middleware.DashboardAuth("admin", string(hash), testsupport.GetLogger()))

	tests := []struct {
		name     string
		user     string
		password string
		want     int
	}{
		{"no credentials", "", "", fiber.StatusUnauthorized},
		{"wrong password", "admin", "guess", fiber.StatusUnauthorized},
		{"wrong user", "root", "s3cret", fiber.StatusUnauthorized},
		{"valid", "admin", "s3cret", fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/total-users", nil)
			if tt.user != "" {
				req.SetBasicAuth(tt.user, tt.password)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
