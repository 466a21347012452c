package entity

import "time"

// OAuthState is a one-time value correlating an authorization redirect with
// its callback. Usable exactly once and only before ExpiresAt.
type OAuthState struct {
	Base

	StateValue string `gorm:"unique"`

	UserID string
	User   User `gorm:"foreignKey:UserID"`

	EncryptedPKCEVerifier string
	PKCEVerifierIV        string

	ExpiresAt time.Time
	Consumed  bool
}

func (OAuthState) TableName() string {
	return "oauth_states"
}
