package scanning

import (
	"time"

	"github.com/google/uuid"
)

// Credential is an opaque, time-bounded access token for a social account.
type Credential struct {
	accessToken string
	expiresAt   time.Time
}

// NewCredential creates a credential value object.
func NewCredential(accessToken string, expiresAt time.Time) Credential {
	return Credential{accessToken: accessToken, expiresAt: expiresAt}
}

// AccessToken returns the opaque token.
func (c Credential) AccessToken() string { return c.accessToken }

// ExpiresAt returns when the token stops being usable.
func (c Credential) ExpiresAt() time.Time { return c.expiresAt }

// IsValid reports whether the credential is present and unexpired at the given time.
func (c Credential) IsValid(now time.Time) bool {
	return c.accessToken != "" && now.Before(c.expiresAt)
}

// SocialAccount is a connected social media account. The pipeline consumes
// accounts read-only; an expired or revoked credential causes that single
// account's scan to be skipped without aborting the job.
type SocialAccount struct {
	id         uuid.UUID
	userID     uuid.UUID
	provider   string
	isActive   bool
	credential Credential
}

// NewSocialAccount creates a social account value object.
func NewSocialAccount(id, userID uuid.UUID, provider string, isActive bool, credential Credential) SocialAccount {
	return SocialAccount{
		id:         id,
		userID:     userID,
		provider:   provider,
		isActive:   isActive,
		credential: credential,
	}
}

// ID returns the account identifier.
func (a SocialAccount) ID() uuid.UUID { return a.id }

// UserID returns the owning user identifier.
func (a SocialAccount) UserID() uuid.UUID { return a.userID }

// Provider returns the social media provider name.
func (a SocialAccount) Provider() string { return a.provider }

// IsActive reports whether this account participates in scans.
func (a SocialAccount) IsActive() bool { return a.isActive }

// Credential returns the account's access credential.
func (a SocialAccount) Credential() Credential { return a.credential }

// MediaItem is one previously synced media entry for a social account. Syncing
// happens outside job execution; scanners consume whatever is already cached.
type MediaItem struct {
	id            uuid.UUID
	accountID     uuid.UUID
	mediaURL      string
	permalinkURL  string
	caption       string
	postedAt      time.Time
	isOwnedByUser bool
}

// NewMediaItem creates a media item value object.
func NewMediaItem(
	id, accountID uuid.UUID,
	mediaURL, permalinkURL, caption string,
	postedAt time.Time,
	isOwnedByUser bool,
) MediaItem {
	return MediaItem{
		id:            id,
		accountID:     accountID,
		mediaURL:      mediaURL,
		permalinkURL:  permalinkURL,
		caption:       caption,
		postedAt:      postedAt,
		isOwnedByUser: isOwnedByUser,
	}
}

// ID returns the media item identifier.
func (m MediaItem) ID() uuid.UUID { return m.id }

// AccountID returns the owning social account identifier.
func (m MediaItem) AccountID() uuid.UUID { return m.accountID }

// MediaURL returns the direct media location.
func (m MediaItem) MediaURL() string { return m.mediaURL }

// PermalinkURL returns the public page for the media item.
func (m MediaItem) PermalinkURL() string { return m.permalinkURL }

// Caption returns the text attached to the media item.
func (m MediaItem) Caption() string { return m.caption }

// PostedAt returns when the media was posted.
func (m MediaItem) PostedAt() time.Time { return m.postedAt }

// IsOwnedByUser distinguishes the user's own posts from posts they are tagged in.
func (m MediaItem) IsOwnedByUser() bool { return m.isOwnedByUser }
