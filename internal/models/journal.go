package models

import (
	"time"

	"github.com/google/uuid"
)

// Journal limits.
const (
	MaxJournalTitleLength = 30
	MaxJournalTextLength  = 300
	MaxJournalPhotos      = 10
	MinDayQuality         = 1
	MaxDayQuality         = 5
)

// Blob buckets for journal media.
const (
	BucketJournalPhotos = "journal-photos"
	BucketJournalVideos = "journal-videos"
)

// JournalEntry is the single journal record of a user's day. Photo and video
// fields hold blob paths, not URLs.
type JournalEntry struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	EntryDate    Date      `json:"entry_date"`
	Title        *string   `json:"title,omitempty"`
	TextContent  *string   `json:"text_content,omitempty"`
	DayQuality   *int      `json:"day_quality,omitempty"`
	DayEmoji     *string   `json:"day_emoji,omitempty"`
	IsBookmarked bool      `json:"is_bookmarked"`
	PhotoURLs    []string  `json:"photo_urls"`
	VideoURL     *string   `json:"video_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// JournalFilter narrows a journal listing. Nil fields do not filter.
type JournalFilter struct {
	Text       string
	Quality    *int
	Bookmarked *bool
	HasPhotos  *bool
	HasVideo   *bool
	From       *Date
	To         *Date
	Limit      int
}
