package entity

import (
	"database/sql"
	"time"
)

type ConnectionStatus string

const (
	ConnectionActive       ConnectionStatus = "active"
	ConnectionDisconnected ConnectionStatus = "disconnected"
)

// Connection is the single Pagehub connection of one user. When Status is
// disconnected, every token field is null.
type Connection struct {
	Base

	UserID string `gorm:"unique"`
	User   User   `gorm:"foreignKey:UserID"`

	EncryptedAccessToken  sql.NullString
	AccessTokenIV         sql.NullString
	EncryptedRefreshToken sql.NullString
	RefreshTokenIV        sql.NullString

	ExpiresAt time.Time
	Scope     string

	WorkspaceID   string
	WorkspaceName string

	Status ConnectionStatus

	RefreshCount   uint64
	LastUsedAt     sql.NullTime
	RefreshedAt    sql.NullTime
	DisconnectedAt sql.NullTime
}

func (Connection) TableName() string {
	return "connections"
}

// HasTokens reports whether the row still carries credentials.
func (c *Connection) HasTokens() bool {
	return c.EncryptedAccessToken.Valid && c.AccessTokenIV.Valid
}

func (c *Connection) HasRefreshToken() bool {
	return c.EncryptedRefreshToken.Valid && c.RefreshTokenIV.Valid
}
