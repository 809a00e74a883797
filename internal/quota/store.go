// Package quota is the single source of truth for per-user usage counters.
//
// Every operation loads the record, applies pending window resets, mutates,
// and saves while holding that user's lock, so concurrent calls for one user
// are linearizable. Callers must not cache counters.
package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/artur/peaktube/internal/database/models"
	"github.com/artur/peaktube/internal/entitlement"
	"github.com/artur/peaktube/internal/logging"
)

const (
	// DownloadWindow is the rolling period for the daily download counter.
	DownloadWindow = 24 * time.Hour
	// AiAssistWindow is the rolling period for AI-assist calls.
	AiAssistWindow = 5 * time.Hour
	// FreeAiAssistLimit is the number of AI-assist calls per window on the free plan.
	FreeAiAssistLimit = 10
)

var log = logging.For("quota")

// Repository persists quota records. Load returns (nil, nil) for unknown users.
type Repository interface {
	Load(ctx context.Context, userID int64) (*models.QuotaRecord, error)
	Save(ctx context.Context, rec *models.QuotaRecord) error
}

// AiAssistDecision is the result of TryConsumeAiAssist.
type AiAssistDecision struct {
	Allowed bool
	Used    int
	Limit   int
	// ResetAt is nil for plans without an AI-assist cap.
	ResetAt *time.Time
}

// Store implements the quota operations on top of a Repository.
type Store struct {
	repo Repository
	now  func() time.Time

	mu       sync.Mutex
	locks    map[int64]*sync.Mutex
	inFlight map[int64]int
}

// NewStore creates a Store backed by repo.
func NewStore(repo Repository) *Store {
	return &Store{
		repo:     repo,
		now:      time.Now,
		locks:    make(map[int64]*sync.Mutex),
		inFlight: make(map[int64]int),
	}
}

// SetClock overrides the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Store) userLock(userID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// GetSnapshot returns the user's record after applying pending resets.
// Storage problems are logged and answered with a fresh default record.
func (s *Store) GetSnapshot(ctx context.Context, userID int64) models.QuotaRecord {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	rec, changed := s.loadLocked(ctx, userID)
	if changed {
		if err := s.repo.Save(ctx, rec); err != nil {
			log.WithError(err).WithField("user_id", userID).Warn("Failed to persist quota reset")
		}
	}
	return *rec
}

// TryConsumeDownload takes one unit of the daily download quota if the
// plan limit allows it. It returns false without mutating otherwise.
func (s *Store) TryConsumeDownload(ctx context.Context, userID int64) (bool, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	return s.consumeDownloadLocked(ctx, userID)
}

func (s *Store) consumeDownloadLocked(ctx context.Context, userID int64) (bool, error) {
	rec, changed := s.loadLocked(ctx, userID)
	plan, _ := entitlement.ParsePlan(rec.Plan)

	if rec.DownloadsToday >= entitlement.DailyLimit(plan) {
		if changed {
			if err := s.repo.Save(ctx, rec); err != nil {
				return false, err
			}
		}
		return false, nil
	}

	rec.DownloadsToday++
	rec.DownloadsTotal++
	if err := s.repo.Save(ctx, rec); err != nil {
		return false, fmt.Errorf("consume download for user %d: %w", userID, err)
	}
	return true, nil
}

// TryConsumeAiAssist takes one AI-assist call from the free plan's 5-hour
// window. Other plans are unlimited and nothing is recorded for them.
func (s *Store) TryConsumeAiAssist(ctx context.Context, userID int64) (AiAssistDecision, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	rec, changed := s.loadLocked(ctx, userID)
	plan, _ := entitlement.ParsePlan(rec.Plan)

	if plan != entitlement.PlanFree {
		if changed {
			if err := s.repo.Save(ctx, rec); err != nil {
				return AiAssistDecision{}, err
			}
		}
		return AiAssistDecision{Allowed: true, Used: 0, Limit: entitlement.Unbounded}, nil
	}

	resetAt := rec.AiAssistWindowStart.Add(AiAssistWindow)
	if rec.AiAssistUsed >= FreeAiAssistLimit {
		if changed {
			if err := s.repo.Save(ctx, rec); err != nil {
				return AiAssistDecision{}, err
			}
		}
		return AiAssistDecision{Allowed: false, Used: rec.AiAssistUsed, Limit: FreeAiAssistLimit, ResetAt: &resetAt}, nil
	}

	rec.AiAssistUsed++
	if err := s.repo.Save(ctx, rec); err != nil {
		return AiAssistDecision{}, fmt.Errorf("consume ai assist for user %d: %w", userID, err)
	}
	return AiAssistDecision{Allowed: true, Used: rec.AiAssistUsed, Limit: FreeAiAssistLimit, ResetAt: &resetAt}, nil
}

// SetPlan records an external plan change.
func (s *Store) SetPlan(ctx context.Context, userID int64, plan entitlement.Plan) error {
	if _, ok := entitlement.ParsePlan(string(plan)); !ok {
		return fmt.Errorf("unknown plan %q", plan)
	}

	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	rec, _ := s.loadLocked(ctx, userID)
	rec.Plan = string(plan)
	// A lower plan must not leave the user above its cap.
	if limit := entitlement.DailyLimit(plan); rec.DownloadsToday > limit {
		rec.DownloadsToday = limit
	}
	return s.repo.Save(ctx, rec)
}

// loadLocked reads the record, falling back to a default on missing or
// corrupt state, then applies pending resets. changed reports whether the
// in-memory record differs from what is stored.
func (s *Store) loadLocked(ctx context.Context, userID int64) (*models.QuotaRecord, bool) {
	now := s.now()

	rec, err := s.repo.Load(ctx, userID)
	changed := false
	switch {
	case err != nil:
		log.WithError(err).WithField("user_id", userID).Warn("Quota record unreadable, starting from default")
		rec = defaultRecord(userID, now)
		changed = true
	case rec == nil:
		rec = defaultRecord(userID, now)
		changed = true
	}

	if applyPendingResets(rec, now) {
		changed = true
	}
	return rec, changed
}

func defaultRecord(userID int64, now time.Time) *models.QuotaRecord {
	return &models.QuotaRecord{
		UserID:              userID,
		Plan:                string(entitlement.PlanFree),
		LastResetAt:         now,
		AiAssistWindowStart: now,
	}
}

// applyPendingResets rolls every expired usage window forward to now.
func applyPendingResets(rec *models.QuotaRecord, now time.Time) bool {
	changed := false
	if rollWindow(&rec.DownloadsToday, &rec.LastResetAt, DownloadWindow, now) {
		changed = true
	}
	if rollWindow(&rec.AiAssistUsed, &rec.AiAssistWindowStart, AiAssistWindow, now) {
		changed = true
	}
	return changed
}

func rollWindow(counter *int, start *time.Time, window time.Duration, now time.Time) bool {
	if start.IsZero() || now.Sub(*start) >= window {
		*counter = 0
		*start = now
		return true
	}
	return false
}
