package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"edumarket_echo/internal/models"
)

var (
	// ErrSessionNotFound covers unknown tokens and cross-user termination
	// attempts alike; callers never learn which it was.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNoLocker means the governor was built without an admission lock
	ErrNoLocker = errors.New("session governor has no locker configured")
)

// SessionGovernor enforces the per-plan cap on concurrently active
// sessions. All state lives in the backing store; the only in-process
// coordination is the per-user admission lock, so any number of request
// workers can share one governor.
type SessionGovernor struct {
	db          *gorm.DB
	locker      UserLocker
	idleTimeout time.Duration
	retention   time.Duration
}

// NewSessionGovernor creates a governor. locker may be nil for callers
// that never admit sessions (maintenance tasks).
func NewSessionGovernor(db *gorm.DB, locker UserLocker, idleTimeout time.Duration) *SessionGovernor {
	return &SessionGovernor{
		db:          db,
		locker:      locker,
		idleTimeout: idleTimeout,
		retention:   30 * 24 * time.Hour,
	}
}

// StartSession creates a new live session for the user. When the user is
// at capacity it first makes room: a single-seat plan drops every existing
// session (a new login always wins), larger plans drop only the oldest
// session by creation time. Eviction by creation time rather than last
// activity keeps admission O(1); long-idle sessions are retired separately
// by the idle sweep.
func (g *SessionGovernor) StartSession(ctx context.Context, userID uint, planCapacity int, ip, userAgent string) (*models.Session, error) {
	if g.locker == nil {
		return nil, ErrNoLocker
	}
	if planCapacity < 1 {
		planCapacity = 1
	}

	release, err := g.locker.Acquire(ctx, fmt.Sprintf("session-admission:%d", userID))
	if err != nil {
		return nil, fmt.Errorf("session admission for user %d: %w", userID, err)
	}
	defer release()

	// Retire idle sessions first so they don't count against the cap
	if _, err := g.SweepIdle(); err != nil {
		return nil, err
	}

	var liveCount int64
	if err := g.db.Model(&models.Session{}).
		Where("user_id = ? AND active = ?", userID, true).
		Count(&liveCount).Error; err != nil {
		return nil, err
	}

	if liveCount >= int64(planCapacity) {
		if planCapacity == 1 {
			if err := g.endAllForUser(userID); err != nil {
				return nil, err
			}
		} else {
			if err := g.endOldestForUser(userID); err != nil {
				return nil, err
			}
		}
	}

	session := models.Session{
		UserID:         userID,
		Token:          uuid.NewString(),
		IPAddress:      ip,
		UserAgent:      userAgent,
		Active:         true,
		LastActivityAt: time.Now(),
	}
	if err := g.db.Create(&session).Error; err != nil {
		return nil, err
	}

	return &session, nil
}

// Touch validates that the token belongs to a live session and bumps its
// last-activity timestamp. A false return means the caller must force a
// logout. The idle sweep piggybacks on this call; the governor has no
// scheduler of its own.
func (g *SessionGovernor) Touch(token string) (*models.Session, bool) {
	if _, err := g.SweepIdle(); err != nil {
		// A failed sweep must not lock everyone out; the session lookup
		// below still applies the idle cutoff itself.
		log.Printf("session sweep failed: %v", err)
	}

	var session models.Session
	err := g.db.
		Where("token = ? AND active = ? AND last_activity_at > ?", token, true, time.Now().Add(-g.idleTimeout)).
		First(&session).Error
	if err != nil {
		return nil, false
	}

	// The session already validated; a failed bump must not force a
	// logout, but left silent it would age the session toward the sweep.
	if err := g.db.Model(&session).Update("last_activity_at", time.Now()).Error; err != nil {
		log.Printf("session activity bump failed: %v", err)
	}
	return &session, true
}

// EndSession marks the session inactive. Ending an already-ended or
// unknown session is a no-op, not an error.
func (g *SessionGovernor) EndSession(token string) error {
	return g.db.Model(&models.Session{}).
		Where("token = ?", token).
		Update("active", false).Error
}

// EndByID lets a user terminate one of their own sessions. The user id is
// part of the WHERE clause so cross-user termination can never match.
func (g *SessionGovernor) EndByID(userID, sessionID uint) error {
	res := g.db.Model(&models.Session{}).
		Where("id = ? AND user_id = ? AND active = ?", sessionID, userID, true).
		Update("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ListLive returns the user's active sessions for the "active sessions"
// view, flagging the entry matching currentToken.
func (g *SessionGovernor) ListLive(userID uint, currentToken string) ([]models.SessionInfo, error) {
	var sessions []models.Session
	err := g.db.
		Where("user_id = ? AND active = ?", userID, true).
		Order("last_activity_at desc").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}

	infos := make([]models.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, models.SessionInfo{
			ID:             s.ID,
			IPAddress:      s.IPAddress,
			UserAgent:      s.UserAgent,
			CreatedAt:      s.CreatedAt,
			LastActivityAt: s.LastActivityAt,
			Current:        s.Token == currentToken,
		})
	}
	return infos, nil
}

// CountLive returns the number of live sessions for a user
func (g *SessionGovernor) CountLive(userID uint) (int64, error) {
	var count int64
	err := g.db.Model(&models.Session{}).
		Where("user_id = ? AND active = ?", userID, true).
		Count(&count).Error
	return count, err
}

// SweepIdle flips to inactive every session whose idle time exceeds the
// configured timeout. Returns the number of sessions retired.
func (g *SessionGovernor) SweepIdle() (int64, error) {
	res := g.db.Model(&models.Session{}).
		Where("active = ? AND last_activity_at < ?", true, time.Now().Add(-g.idleTimeout)).
		Update("active", false)
	return res.RowsAffected, res.Error
}

// PurgeExpired hard-deletes sessions past the retention window. This is
// the only path that physically removes session rows.
func (g *SessionGovernor) PurgeExpired() (int64, error) {
	res := g.db.
		Where("created_at < ?", time.Now().Add(-g.retention)).
		Delete(&models.Session{})
	return res.RowsAffected, res.Error
}

func (g *SessionGovernor) endAllForUser(userID uint) error {
	return g.db.Model(&models.Session{}).
		Where("user_id = ? AND active = ?", userID, true).
		Update("active", false).Error
}

func (g *SessionGovernor) endOldestForUser(userID uint) error {
	var oldest models.Session
	err := g.db.
		Where("user_id = ? AND active = ?", userID, true).
		Order("created_at asc, id asc").
		First(&oldest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	return g.db.Model(&oldest).Update("active", false).Error
}
