// Package links mints, resolves and expires direct download links handed out
// when a video could not be fetched on the primary path.
package links

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/artur/peaktube/internal/database/models"
	"github.com/artur/peaktube/internal/logging"
)

const (
	DefaultTTL = 24 * time.Hour
	tokenBytes = 18
)

var (
	ErrNotFound = errors.New("link not found")
	ErrExpired  = errors.New("link expired")
)

var log = logging.For("links")

// Store persists link records. GetByToken returns (nil, nil) when missing.
type Store interface {
	Create(ctx context.Context, link *models.DirectLink) error
	GetByToken(ctx context.Context, token string) (*models.DirectLink, error)
	List(ctx context.Context) ([]*models.DirectLink, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type Service struct {
	store   Store
	ttl     time.Duration
	baseURL string
	now     func() time.Time
}

// NewService creates a link service. With a non-empty baseURL links are
// exposed through the redirect endpoint instead of the raw upstream URL.
func NewService(store Store, ttl time.Duration, baseURL string) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		store:   store,
		ttl:     ttl,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Mint records a new link valid for the configured TTL.
func (s *Service) Mint(ctx context.Context, sourceURL, directURL, title string) (*models.DirectLink, error) {
	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	now := s.now()
	link := &models.DirectLink{
		ID:        uuid.NewString(),
		Token:     token,
		SourceURL: sourceURL,
		DirectURL: directURL,
		Title:     title,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.Create(ctx, link); err != nil {
		return nil, err
	}

	log.WithField("link_id", link.ID).WithField("expires_at", link.ExpiresAt).Info("Direct link minted")
	return link, nil
}

// Resolve returns the unexpired link for token.
func (s *Service) Resolve(ctx context.Context, token string) (*models.DirectLink, error) {
	link, err := s.store.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, ErrNotFound
	}
	if link.Expired(s.now()) {
		return nil, ErrExpired
	}
	return link, nil
}

// List returns every stored link, expired ones included.
func (s *Service) List(ctx context.Context) ([]*models.DirectLink, error) {
	return s.store.List(ctx)
}

// SweepExpiredLinks deletes every link whose expiry has passed.
func (s *Service) SweepExpiredLinks(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("sweep expired links: %w", err)
	}
	if n > 0 {
		log.WithField("removed", n).Info("Expired links swept")
	}
	return n, nil
}

// StartSweeper sweeps once right away and then every interval until ctx ends.
func (s *Service) StartSweeper(ctx context.Context, interval time.Duration) {
	if _, err := s.SweepExpiredLinks(ctx); err != nil {
		log.WithError(err).Error("Link sweep failed")
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.SweepExpiredLinks(ctx); err != nil {
					log.WithError(err).Error("Link sweep failed")
				}
			}
		}
	}()
}

// PublicURL is the URL handed to the user for link.
func (s *Service) PublicURL(link *models.DirectLink) string {
	if s.baseURL == "" {
		return link.DirectURL
	}
	return s.baseURL + "/d/" + link.Token
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
