package core

import "time"

// User represents a user account in the system
//
// This is the "identity" - who someone is
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"emailVerified"`
	Name          string    `json:"name"`
	Image         *string   `json:"image,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Account represents an authentication method
//
// This is the "credential" - how someone proves who they are
type Account struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	ProviderID string     `json:"providerId"` // only "credential" today
	AccountID  string     `json:"accountId"`
	Password   *string    `json:"-"` // Never expose in JSON
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

const CredentialProvider = "credential"

// Session represents an active login session
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	TokenHash string    `json:"-"` // Never expose in JSON (security!)
	IPAddress string    `json:"ipAddress"`
	UserAgent string    `json:"userAgent"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SessionData combines user and session info.
// It is what clients receive and what auth events carry.
type SessionData struct {
	User    *User    `json:"user"`
	Session *Session `json:"session"`
}

// Profile is the marketplace record attached 1:1 to a user.
//
// Role holds the raw stored value. Use ParseRole before trusting it.
type Profile struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullName"`
	Role          string    `json:"role"`
	CommunityName *string   `json:"communityName,omitempty"`
	Phone         *string   `json:"phone,omitempty"`
	AvatarURL     *string   `json:"avatarUrl,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ProfileUpdate lists the fields a user may edit on their own profile.
// Nil fields are left untouched. Role is intentionally absent.
type ProfileUpdate struct {
	FullName      *string `json:"fullName,omitempty"`
	Phone         *string `json:"phone,omitempty"`
	CommunityName *string `json:"communityName,omitempty"`
	AvatarURL     *string `json:"avatarUrl,omitempty"`
}

// SignUpInput contains the data needed to register a new user
type SignUpInput struct {
	Email         string  `json:"email"`
	Password      string  `json:"password"`
	FullName      string  `json:"fullName"`
	Role          string  `json:"role"`
	CommunityName *string `json:"communityName,omitempty"`
	Phone         *string `json:"phone,omitempty"`
}

// SignInInput contains the credentials for authentication
type SignInInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is returned by sign-up and sign-in.
type AuthResult struct {
	User        *User    `json:"user"`
	Profile     *Profile `json:"profile,omitempty"`
	Session     *Session `json:"session"`
	Token       string   `json:"token"` // The raw token (not the hash)
	AccessToken string   `json:"accessToken,omitempty"`
}

type (
	SignUpResult = AuthResult
	SignInResult = AuthResult
)

// RefreshResult carries the rotated token for an existing session.
type RefreshResult struct {
	Session     *Session `json:"session"`
	Token       string   `json:"token"`
	AccessToken string   `json:"accessToken,omitempty"`
}

// CreateSessionResult is the raw token plus the stored session row.
type CreateSessionResult struct {
	Session *Session
	Token   string
}

// ChangePasswordInput is the body of a password change.
type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}
