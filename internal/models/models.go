// Package models defines the core data structures for tg-twitter-sync.
//
// It includes the credential bundle, X direct-message event shapes, and the
// normalized notification payload shared across modules.
package models

import (
	"errors"
	"strings"
	"time"
)

// Validation constants for outbound posts and media.
const (
	// MaxPostLength is the X character limit for a single post.
	MaxPostLength = 280
	// MaxMediaPerPost is the X limit on attached images per post.
	MaxMediaPerPost = 4
	// MaxInboxBatch is the X API cap on dm_events page size.
	MaxInboxBatch = 100
)

// Error variables for better error handling and testability.
var (
	ErrEmptyPost       = errors.New("post text cannot be empty")
	ErrPostTooLong     = errors.New("post text exceeds maximum length")
	ErrTooManyMedia    = errors.New("too many media attachments")
	ErrMissingEventID  = errors.New("inbox event is missing an id")
	ErrEmptyMediaBytes = errors.New("media payload is empty")
)

// Credentials is the opaque bundle of secrets for the X API. Immutable once
// loaded; never logged in full.
type Credentials struct {
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string
	BearerToken       string
	OAuth2ClientID    string
	OAuth2Secret      string
	UserAccessToken   string
	UserRefreshToken  string
	RedirectURI       string
}

// Redacted returns a loggable fingerprint of which credential slots are set.
func (c Credentials) Redacted() map[string]bool {
	return map[string]bool{
		"api_key":           c.APIKey != "",
		"access_token":      c.AccessToken != "",
		"bearer_token":      c.BearerToken != "",
		"oauth2_client":     c.OAuth2ClientID != "",
		"user_access_token": c.UserAccessToken != "",
		"user_refresh":      c.UserRefreshToken != "",
	}
}

// MediaRef describes one media attachment on an inbound DM event.
type MediaRef struct {
	MediaKey   string `json:"media_key"`
	Type       string `json:"type"` // photo, video, animated_gif
	URL        string `json:"url,omitempty"`
	PreviewURL string `json:"preview_image_url,omitempty"`
}

// BestURL returns the direct URL when present, falling back to the preview.
func (m MediaRef) BestURL() string {
	if m.URL != "" {
		return m.URL
	}
	return m.PreviewURL
}

// DMEvent is one inbound direct-message event as fetched from the X API.
// Identity is ID; immutable once fetched.
type DMEvent struct {
	ID             string     `json:"id"`
	Text           string     `json:"text"`
	SenderID       string     `json:"sender_id"`
	SenderUsername string     `json:"sender_username,omitempty"`
	SenderName     string     `json:"sender_name,omitempty"`
	ConversationID string     `json:"dm_conversation_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	Media          []MediaRef `json:"media,omitempty"`
}

// Validate checks the minimal identity requirement for an inbound event.
func (e DMEvent) Validate() error {
	if e.ID == "" {
		return ErrMissingEventID
	}
	return nil
}

// InboxPage is one page of DM events plus pagination metadata.
type InboxPage struct {
	Events    []DMEvent `json:"events"`
	NextToken string    `json:"next_token,omitempty"`
	Newest    string    `json:"newest_id,omitempty"`
}

// Notification is the normalized, ephemeral payload derived from one DMEvent.
// It is built by the processor and consumed by the notifier; never persisted.
type Notification struct {
	EventID        string
	SenderID       string
	SenderUsername string
	SenderName     string
	ConversationID string
	Text           string
	CreatedAt      time.Time
	Media          []MediaRef
}

// Post is the result of a successful create-post call.
type Post struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	URL  string `json:"url"`
}

// AccountIdentity is the authenticated account returned by verify_identity.
type AccountIdentity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// TokenPair is the result of an OAuth2 refresh-token exchange.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// ValidatePost validates outbound post text against the X limits. Empty
// text is allowed when media is attached.
func ValidatePost(text string, mediaIDs []string) error {
	if strings.TrimSpace(text) == "" && len(mediaIDs) == 0 {
		return ErrEmptyPost
	}
	if len([]rune(text)) > MaxPostLength {
		return ErrPostTooLong
	}
	if len(mediaIDs) > MaxMediaPerPost {
		return ErrTooManyMedia
	}
	return nil
}
