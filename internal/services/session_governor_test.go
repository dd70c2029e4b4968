package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"edumarket_echo/internal/models"
)

func newTestGovernor(t *testing.T) (*SessionGovernor, *models.User) {
	t.Helper()

	db := newTestDB(t)
	governor := NewSessionGovernor(db, NewLocalLocker(), 30*time.Minute)
	user := seedUser(t, db, "sessions@example.com")
	return governor, user
}

func TestStartSessionSingleSeatEvictsAll(t *testing.T) {
	governor, user := newTestGovernor(t)
	ctx := context.Background()

	first, err := governor.StartSession(ctx, user.ID, 1, "10.0.0.1", "device-a")
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	second, err := governor.StartSession(ctx, user.ID, 1, "10.0.0.2", "device-b")
	if err != nil {
		t.Fatalf("second login: %v", err)
	}

	if _, ok := governor.Touch(first.Token); ok {
		t.Error("first session should have been evicted by the second login")
	}
	if _, ok := governor.Touch(second.Token); !ok {
		t.Error("second session should be live")
	}

	count, err := governor.CountLive(user.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("live sessions = %d; want 1", count)
	}
}

func TestStartSessionEvictsOldestByCreation(t *testing.T) {
	governor, user := newTestGovernor(t)
	ctx := context.Background()

	var sessions []*models.Session
	for i := 0; i < 3; i++ {
		s, err := governor.StartSession(ctx, user.ID, 3, "10.0.0.1", "device")
		if err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
		sessions = append(sessions, s)
		// Creation order must be distinguishable
		time.Sleep(5 * time.Millisecond)
	}

	// Recent activity on the oldest session must not save it; eviction
	// is by creation time.
	if _, ok := governor.Touch(sessions[0].Token); !ok {
		t.Fatal("oldest session should still be live before the cap is hit")
	}

	fourth, err := governor.StartSession(ctx, user.ID, 3, "10.0.0.4", "device-d")
	if err != nil {
		t.Fatalf("fourth login: %v", err)
	}

	if _, ok := governor.Touch(sessions[0].Token); ok {
		t.Error("oldest session should have been evicted")
	}
	for i, s := range []*models.Session{sessions[1], sessions[2], fourth} {
		if _, ok := governor.Touch(s.Token); !ok {
			t.Errorf("session %d should still be live", i+1)
		}
	}

	count, _ := governor.CountLive(user.ID)
	if count != 3 {
		t.Errorf("live sessions = %d; want 3", count)
	}
}

func TestConcurrentLoginsNeverExceedCap(t *testing.T) {
	governor, user := newTestGovernor(t)

	const logins = 8
	const seatCap = 2

	var wg sync.WaitGroup
	errs := make(chan error, logins)
	for i := 0; i < logins; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := governor.StartSession(context.Background(), user.ID, seatCap, "10.0.0.1", fmt.Sprintf("device-%d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent login: %v", err)
		}
	}

	count, err := governor.CountLive(user.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count > seatCap {
		t.Errorf("live sessions after %d concurrent logins = %d; cap is %d", logins, count, seatCap)
	}
	if count == 0 {
		t.Error("at least the last admitted session should be live")
	}
}

func TestStartSessionBelowCapKeepsExisting(t *testing.T) {
	governor, user := newTestGovernor(t)
	ctx := context.Background()

	first, err := governor.StartSession(ctx, user.ID, 2, "10.0.0.1", "device-a")
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	if _, err := governor.StartSession(ctx, user.ID, 2, "10.0.0.2", "device-b"); err != nil {
		t.Fatalf("second login: %v", err)
	}

	if _, ok := governor.Touch(first.Token); !ok {
		t.Error("first session should survive a login below the cap")
	}
}

func TestTouchExpiresIdleSessions(t *testing.T) {
	db := newTestDB(t)
	governor := NewSessionGovernor(db, NewLocalLocker(), 30*time.Minute)
	user := seedUser(t, db, "idle@example.com")

	session, err := governor.StartSession(context.Background(), user.ID, 1, "10.0.0.1", "device")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	// Backdate the activity clock past the idle timeout
	stale := time.Now().Add(-31 * time.Minute)
	if err := db.Model(&models.Session{}).Where("id = ?", session.ID).
		Update("last_activity_at", stale).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}

	if _, ok := governor.Touch(session.Token); ok {
		t.Error("idle session should not validate")
	}

	var stored models.Session
	if err := db.First(&stored, session.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Active {
		t.Error("idle session should have been swept inactive")
	}
}

func TestTouchBumpsActivity(t *testing.T) {
	db := newTestDB(t)
	governor := NewSessionGovernor(db, NewLocalLocker(), 30*time.Minute)
	user := seedUser(t, db, "touch@example.com")

	session, err := governor.StartSession(context.Background(), user.ID, 1, "10.0.0.1", "device")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	earlier := time.Now().Add(-10 * time.Minute)
	db.Model(&models.Session{}).Where("id = ?", session.ID).Update("last_activity_at", earlier)

	if _, ok := governor.Touch(session.Token); !ok {
		t.Fatal("session should validate")
	}

	var stored models.Session
	db.First(&stored, session.ID)
	if !stored.LastActivityAt.After(earlier.Add(time.Minute)) {
		t.Error("Touch should have bumped last_activity_at")
	}
}

func TestTouchSurvivesActivityBumpFailure(t *testing.T) {
	db := newTestDB(t)
	governor := NewSessionGovernor(db, NewLocalLocker(), 30*time.Minute)
	user := seedUser(t, db, "bump-failure@example.com")

	session, err := governor.StartSession(context.Background(), user.ID, 1, "10.0.0.1", "device")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	// Refuse every UPDATE from here on; the lookup itself still works
	err = db.Callback().Update().Before("gorm:update").Register("refuse_writes", func(tx *gorm.DB) {
		tx.AddError(errors.New("write refused"))
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	got, ok := governor.Touch(session.Token)
	if !ok {
		t.Fatal("a failed activity bump must not force a logout")
	}
	if got.ID != session.ID {
		t.Errorf("Touch returned session %d; want %d", got.ID, session.ID)
	}
}

func TestEndByIDRejectsOtherUsers(t *testing.T) {
	db := newTestDB(t)
	governor := NewSessionGovernor(db, NewLocalLocker(), 30*time.Minute)
	owner := seedUser(t, db, "owner@example.com")
	other := seedUser(t, db, "other@example.com")

	session, err := governor.StartSession(context.Background(), owner.ID, 1, "10.0.0.1", "device")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	err = governor.EndByID(other.ID, session.ID)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("cross-user termination = %v; want ErrSessionNotFound", err)
	}
	if _, ok := governor.Touch(session.Token); !ok {
		t.Error("session should survive a cross-user termination attempt")
	}

	if err := governor.EndByID(owner.ID, session.ID); err != nil {
		t.Fatalf("owner termination: %v", err)
	}
	if _, ok := governor.Touch(session.Token); ok {
		t.Error("session should be gone after owner termination")
	}
}

func TestEndSessionIsIdempotent(t *testing.T) {
	governor, user := newTestGovernor(t)

	session, err := governor.StartSession(context.Background(), user.ID, 1, "10.0.0.1", "device")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := governor.EndSession(session.Token); err != nil {
		t.Fatalf("first logout: %v", err)
	}
	if err := governor.EndSession(session.Token); err != nil {
		t.Errorf("repeated logout should be a no-op, got %v", err)
	}
	if err := governor.EndSession("no-such-token"); err != nil {
		t.Errorf("logout of unknown token should be a no-op, got %v", err)
	}
}

func TestListLiveFlagsCurrent(t *testing.T) {
	governor, user := newTestGovernor(t)
	ctx := context.Background()

	first, _ := governor.StartSession(ctx, user.ID, 2, "10.0.0.1", "device-a")
	second, _ := governor.StartSession(ctx, user.ID, 2, "10.0.0.2", "device-b")

	infos, err := governor.ListLive(user.ID, second.Token)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("live sessions = %d; want 2", len(infos))
	}

	for _, info := range infos {
		wantCurrent := info.ID == second.ID
		if info.Current != wantCurrent {
			t.Errorf("session %d current = %v; want %v", info.ID, info.Current, wantCurrent)
		}
	}
	_ = first
}

func TestPurgeExpiredHardDeletes(t *testing.T) {
	db := newTestDB(t)
	governor := NewSessionGovernor(db, NewLocalLocker(), 30*time.Minute)
	user := seedUser(t, db, "purge@example.com")

	old := models.Session{
		UserID:         user.ID,
		Token:          "ancient-token",
		Active:         false,
		LastActivityAt: time.Now().Add(-40 * 24 * time.Hour),
	}
	if err := db.Create(&old).Error; err != nil {
		t.Fatalf("seed old session: %v", err)
	}
	db.Model(&models.Session{}).Where("id = ?", old.ID).
		Update("created_at", time.Now().Add(-40*24*time.Hour))

	recent, err := governor.StartSession(context.Background(), user.ID, 2, "10.0.0.1", "device")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	purged, err := governor.PurgeExpired()
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d; want 1", purged)
	}

	var count int64
	db.Model(&models.Session{}).Count(&count)
	if count != 1 {
		t.Errorf("remaining sessions = %d; want 1", count)
	}

	var kept models.Session
	if err := db.First(&kept, recent.ID).Error; err != nil {
		t.Errorf("recent session should survive the purge: %v", err)
	}
}
