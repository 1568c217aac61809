// Package store reads the analytics and content relations owned by the
// website tracker and the CMS. Nothing in this package writes to them outside
// of development tooling.
package store

import "time"

// Event types recorded by the tracker
const (
	EventTypePageview = 1
	EventTypeCustom   = 2
)

// AttributeUserID is the event attribute carrying the signed-up account id.
const AttributeUserID = "user_id"

// WebsiteEvent is a tracked pageview or custom event.
type WebsiteEvent struct {
	EventID        string    `gorm:"column:event_id;primaryKey"`
	SessionID      string    `gorm:"column:session_id;index"`
	CreatedAt      time.Time `gorm:"column:created_at;index"`
	URLPath        string    `gorm:"column:url_path"`
	URLQuery       string    `gorm:"column:url_query"`
	ReferrerDomain string    `gorm:"column:referrer_domain"`
	EventType      int       `gorm:"column:event_type;default:1"`
}

func (WebsiteEvent) TableName() string { return "umami_website_event" }

// EventData is a key/value attribute attached to a WebsiteEvent.
type EventData struct {
	EventDataID    string    `gorm:"column:event_data_id;primaryKey"`
	WebsiteEventID string    `gorm:"column:website_event_id;index"`
	DataKey        string    `gorm:"column:data_key"`
	StringValue    string    `gorm:"column:string_value"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

func (EventData) TableName() string { return "umami_event_data" }

// User is a registered CMS account.
type User struct {
	ID          string    `gorm:"column:id;primaryKey"`
	DateCreated time.Time `gorm:"column:date_created"`
}

func (User) TableName() string { return "directus_user" }

// Content is a published item with its canonical tracking link.
type Content struct {
	ID        uint   `gorm:"column:id;primaryKey"`
	ContentID string `gorm:"column:content_id"`
	FullLink  string `gorm:"column:full_link"`
}

func (Content) TableName() string { return "directus_content" }

type LinkedInPost struct {
	ID        uint   `gorm:"column:id;primaryKey"`
	PostURLID string `gorm:"column:post_url_id"`
	Post      string `gorm:"column:post"`
}

func (LinkedInPost) TableName() string { return "linkedin" }

// YouTubeVideo is one snapshot of a video's metadata; titles are read from a
// single fetch date.
type YouTubeVideo struct {
	ID         uint   `gorm:"column:id;primaryKey"`
	VideoID    string `gorm:"column:video_id"`
	VideoTitle string `gorm:"column:video_title"`
	FetchDate  string `gorm:"column:fetch_date"`
}

func (YouTubeVideo) TableName() string { return "youtube" }

type BrevoCampaign struct {
	ID           uint   `gorm:"column:id;primaryKey"`
	CampaignID   int64  `gorm:"column:campaign_id"`
	CampaignName string `gorm:"column:campaign_name"`
}

func (BrevoCampaign) TableName() string { return "brevo_cumulative" }

// AllModels returns every relation the store reads, for migrations of
// development and test databases.
func AllModels() []any {
	return []any{
		&WebsiteEvent{},
		&EventData{},
		&User{},
		&Content{},
		&LinkedInPost{},
		&YouTubeVideo{},
		&BrevoCampaign{},
	}
}

// Event is the projection of WebsiteEvent used by the attribution stages.
type Event struct {
	EventID        string    `gorm:"column:event_id"`
	SessionID      string    `gorm:"column:session_id"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	URLPath        string    `gorm:"column:url_path"`
	URLQuery       string    `gorm:"column:url_query"`
	ReferrerDomain string    `gorm:"column:referrer_domain"`
	EventType      int       `gorm:"column:event_type"`
}

// Attribute is the projection of EventData.
type Attribute struct {
	EventID   string    `gorm:"column:website_event_id"`
	Key       string    `gorm:"column:data_key"`
	Value     string    `gorm:"column:string_value"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

type ContentItem struct {
	ID        uint   `gorm:"column:id"`
	ContentID string `gorm:"column:content_id"`
	FullLink  string `gorm:"column:full_link"`
}

type Account struct {
	ID          string    `gorm:"column:id"`
	DateCreated time.Time `gorm:"column:date_created"`
}
