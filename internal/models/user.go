package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account mirrored from the identity provider, plus tracking preferences.
type User struct {
	ID                     uuid.UUID `json:"id"`
	Email                  string    `json:"email"`
	ProviderID             *string   `json:"provider_id,omitempty"`
	Name                   *string   `json:"name,omitempty"`
	EmailVerified          bool      `json:"email_verified"`
	Timezone               *string   `json:"timezone,omitempty"`
	TypicalWakeTime        *string   `json:"typical_wake_time,omitempty"`  // HH:MM
	TypicalSleepTime       *string   `json:"typical_sleep_time,omitempty"` // HH:MM
	CountAvoidInCompletion bool      `json:"count_avoid_in_completion"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// Location resolves the user's timezone, falling back when unset or unknown.
func (u *User) Location(fallback *time.Location) *time.Location {
	if fallback == nil {
		fallback = time.UTC
	}
	if u == nil || u.Timezone == nil || *u.Timezone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(*u.Timezone)
	if err != nil {
		return fallback
	}
	return loc
}
