package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/artur/peaktube/internal/database/models"
	"github.com/artur/peaktube/internal/links"
)

type stubResolver map[string]error

func (s stubResolver) Resolve(ctx context.Context, token string) (*models.DirectLink, error) {
	if err, ok := s[token]; ok {
		return nil, err
	}
	return &models.DirectLink{Token: token, DirectURL: "https://cdn.example/" + token}, nil
}

type stubPinger struct{ err error }

func (p stubPinger) PingContext(ctx context.Context) error { return p.err }

func TestRedirect(t *testing.T) {
	resolver := stubResolver{
		"gone":    links.ErrExpired,
		"missing": links.ErrNotFound,
		"broken":  errors.New("disk I/O error"),
	}
	router := NewRouter(resolver, stubPinger{}, false)

	tests := []struct {
		token        string
		wantStatus   int
		wantLocation string
	}{
		{"ok", http.StatusFound, "https://cdn.example/ok"},
		{"gone", http.StatusGone, ""},
		{"missing", http.StatusNotFound, ""},
		{"broken", http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/d/"+tt.token, nil)
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if loc := w.Header().Get("Location"); loc != tt.wantLocation {
				t.Errorf("Location = %q, want %q", loc, tt.wantLocation)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
	}{
		{"healthy", nil, http.StatusOK},
		{"db down", errors.New("closed"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(stubResolver{}, stubPinger{err: tt.pingErr}, false)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
