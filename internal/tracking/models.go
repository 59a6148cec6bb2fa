// Package tracking stores the raw browser telemetry streams: page visits,
// page-session timing, section dwell durations and interaction events.
//
// The four tables are independent and append-only. They share only the
// visitor_id and session_id columns, which readers join on without any
// relational integrity.
package tracking

import (
	"time"

	"gorm.io/datatypes"
)

// Mode is the audience variant of the portfolio a record was produced under.
const (
	ModeXR        = "xr"
	ModeFullStack = "fullstack"
	// ModeLegacyPhD is an older name for ModeXR still present in stored rows.
	ModeLegacyPhD = "phd"
)

// NormalizeMode folds legacy mode values into their current name.
// Stored rows are never rewritten; readers call this instead.
func NormalizeMode(mode string) string {
	if mode == ModeLegacyPhD {
		return ModeXR
	}
	return mode
}

// Section ids in page order.
const (
	SectionCategoryHero = "category-hero"
	SectionAbout        = "about"
	SectionResume       = "resume"
	SectionProjects     = "projects"
	SectionPublications = "publications"
	SectionContact      = "contact"
)

// SectionOrder lists every tracked section in the order it appears on the page.
var SectionOrder = []string{
	SectionCategoryHero,
	SectionAbout,
	SectionResume,
	SectionProjects,
	SectionPublications,
	SectionContact,
}

// EventType is a discrete user action on the portfolio.
type EventType string

const (
	EventProjectVideoPlay   EventType = "project_video_play"
	EventProjectLinkClick   EventType = "project_link_click"
	EventContactEmailClick  EventType = "contact_email_click"
	EventContactPhoneClick  EventType = "contact_phone_click"
	EventSocialLinkClick    EventType = "social_link_click"
	EventResumeDownload     EventType = "resume_download"
	EventJourneyButtonClick EventType = "journey_button_click"
	EventModeSwitch         EventType = "mode_switch"
)

var allowedEventTypes = map[EventType]bool{
	EventProjectVideoPlay:   true,
	EventProjectLinkClick:   true,
	EventContactEmailClick:  true,
	EventContactPhoneClick:  true,
	EventSocialLinkClick:    true,
	EventResumeDownload:     true,
	EventJourneyButtonClick: true,
	EventModeSwitch:         true,
}

// IsValid reports whether t is on the event allow-list.
func (t EventType) IsValid() bool {
	return allowedEventTypes[t]
}

// IsContactEvent reports whether t is a contact or social outreach click.
func (t EventType) IsContactEvent() bool {
	return t == EventContactEmailClick || t == EventContactPhoneClick || t == EventSocialLinkClick
}

// Visit is one page load, geolocated from the caller's IP.
// Latitude and Longitude stay null until a lookup or precise update succeeds.
type Visit struct {
	ID               uint     `gorm:"primaryKey;autoIncrement"`
	VisitorID        string   `gorm:"index:idx_visitors_identity;size:64"`
	SessionID        string   `gorm:"index:idx_visitors_identity;index;size:64"`
	IP               string   `gorm:"size:64"`
	City             string   `gorm:"not null;default:Unknown"`
	Country          string   `gorm:"not null;default:Unknown"`
	Region           string   `gorm:"not null;default:Unknown"`
	Latitude         *float64
	Longitude        *float64
	PreciseLocation  bool      `gorm:"not null;default:false"`
	Mode             *string   `gorm:"size:16"`
	Pathname         *string
	UserAgent        *string
	Referrer         *string
	ScreenResolution *string   `gorm:"size:32"`
	Timestamp        time.Time `gorm:"index:idx_visitors_timestamp,sort:desc;not null"`
}

// TableName keeps the collection name used by existing deployments.
func (Visit) TableName() string { return "visitors" }

// PageSession is the single timing summary sent when a page view ends.
type PageSession struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	VisitorID     string    `gorm:"index;size:64;not null"`
	SessionID     string    `gorm:"index;size:64;not null"`
	Pathname      string    `gorm:"index"`
	Mode          string    `gorm:"size:16"`
	VisibleTimeMs int64     `gorm:"not null;default:0"`
	TotalTimeMs   int64     `gorm:"not null;default:0"`
	ScrollDepth   int       `gorm:"not null;default:0"`
	Timestamp     time.Time `gorm:"index:idx_page_sessions_timestamp,sort:desc;not null"`
}

func (PageSession) TableName() string { return "page_sessions" }

// SectionDuration is one continuous interval during which a section was visible.
type SectionDuration struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	VisitorID  string    `gorm:"index;size:64;not null"`
	SessionID  string    `gorm:"index;size:64;not null"`
	SectionID  string    `gorm:"index;size:64;not null"`
	DurationMs int64     `gorm:"not null"`
	Mode       string    `gorm:"size:16"`
	Pathname   string
	Timestamp  time.Time `gorm:"index:idx_section_durations_timestamp,sort:desc;not null"`
}

func (SectionDuration) TableName() string { return "section_durations" }

// InteractionEvent is one discrete, allow-listed user action.
type InteractionEvent struct {
	ID          uint                                  `gorm:"primaryKey;autoIncrement"`
	VisitorID   string                                `gorm:"index;size:64;not null"`
	SessionID   string                                `gorm:"index;size:64;not null"`
	EventType   EventType                             `gorm:"index;size:64;not null"`
	EventTarget string
	Metadata    datatypes.JSONType[map[string]string] `gorm:"type:text"`
	Pathname    string
	Mode        string    `gorm:"size:16"`
	Timestamp   time.Time `gorm:"index:idx_interaction_events_timestamp,sort:desc;not null"`
	CreatedAt   time.Time
}

func (InteractionEvent) TableName() string { return "interaction_events" }

// Models returns every tracking model for migrations.
func Models() []any {
	return []any{
		&Visit{},
		&PageSession{},
		&SectionDuration{},
		&InteractionEvent{},
	}
}
