package models

import (
	"time"

	"github.com/google/uuid"
)

// Pattern is the visual fill of an activity's cells.
type Pattern string

const (
	PatternSolid     Pattern = "solid"
	PatternStriped   Pattern = "striped"
	PatternDotted    Pattern = "dotted"
	PatternCheckered Pattern = "checkered"
)

// Valid reports whether p is a known fill pattern.
func (p Pattern) Valid() bool {
	switch p {
	case PatternSolid, PatternStriped, PatternDotted, PatternCheckered:
		return true
	}
	return false
}

// ActivityGroup groups activities for display and bulk archiving.
type ActivityGroup struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	Name       string    `json:"name"`
	Color      string    `json:"color"`
	Emoji      *string   `json:"emoji,omitempty"`
	IsArchived bool      `json:"is_archived"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Activity is a recurring habit inside a group.
type Activity struct {
	ID               uuid.UUID `json:"id"`
	UserID           uuid.UUID `json:"user_id"`
	GroupID          uuid.UUID `json:"group_id"`
	Name             string    `json:"name"`
	Pattern          Pattern   `json:"pattern"`
	Routine          string    `json:"routine"`
	CompletionTarget int       `json:"completion_target"`
	IsArchived       bool      `json:"is_archived"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ArchivedActivity is an archived activity listed with its group's name.
type ArchivedActivity struct {
	Activity
	GroupName string `json:"group_name"`
}
