package quota

import (
	"context"
	"errors"
	"sync"
)

// ErrReservationClosed is returned when a reservation was already committed or released.
var ErrReservationClosed = errors.New("reservation already closed")

// Reservation holds one in-flight download slot. Exactly one of Commit or
// Release must be called; further calls are no-ops.
type Reservation struct {
	store  *Store
	userID int64

	once sync.Once
}

// ReserveDownload claims a slot if the user's committed downloads plus the
// ones still in flight stay below limit. Concurrent runs for one user can
// therefore never jointly pass the cap.
func (s *Store) ReserveDownload(ctx context.Context, userID int64, limit int) (*Reservation, bool) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	rec, changed := s.loadLocked(ctx, userID)
	if changed {
		if err := s.repo.Save(ctx, rec); err != nil {
			log.WithError(err).WithField("user_id", userID).Warn("Failed to persist quota reset")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.DownloadsToday+s.inFlight[userID] >= limit {
		return nil, false
	}
	s.inFlight[userID]++
	return &Reservation{store: s, userID: userID}, true
}

// Commit consumes the reserved unit from the persisted counters.
func (r *Reservation) Commit(ctx context.Context) (bool, error) {
	if r == nil {
		return false, nil
	}
	var (
		ok  bool
		err error
		ran bool
	)
	r.once.Do(func() {
		ran = true
		l := r.store.userLock(r.userID)
		l.Lock()
		defer l.Unlock()

		r.store.releaseSlot(r.userID)
		ok, err = r.store.consumeDownloadLocked(ctx, r.userID)
	})
	if !ran {
		return false, ErrReservationClosed
	}
	return ok, err
}

// Release gives the slot back without touching the counters.
func (r *Reservation) Release() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		r.store.releaseSlot(r.userID)
	})
}

func (s *Store) releaseSlot(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[userID] > 1 {
		s.inFlight[userID]--
		return
	}
	delete(s.inFlight, userID)
}

// InFlight reports how many reservations the user currently holds.
func (s *Store) InFlight(userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight[userID]
}
