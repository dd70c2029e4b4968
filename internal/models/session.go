package models

import "time"

// Session identifies one authenticated browser context. Rows are flipped
// to inactive on logout, eviction or idle timeout; the retention purge is
// the only thing that physically deletes them.
type Session struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID         uint      `gorm:"index:idx_sessions_user_active,priority:1" json:"user_id"`
	Token          string    `gorm:"type:varchar(100);uniqueIndex" json:"-"`
	IPAddress      string    `gorm:"type:varchar(64)" json:"ip_address"`
	UserAgent      string    `gorm:"type:varchar(512)" json:"user_agent"`
	Active         bool      `gorm:"default:true;index:idx_sessions_user_active,priority:2" json:"active"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// SessionInfo is the user-facing view of an active session
type SessionInfo struct {
	ID             uint      `json:"id"`
	IPAddress      string    `json:"ip_address"`
	UserAgent      string    `json:"user_agent"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	Current        bool      `json:"current"`
}
