package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/artur/peaktube/internal/database/models"
	"github.com/artur/peaktube/internal/database/repository"
)

func TestLinkRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	repo := repository.NewLinkRepository(db)
	now := time.Now()

	link := &models.DirectLink{
		ID:        "id-1",
		Token:     "tok-1",
		SourceURL: "https://youtube.com/watch?v=dQw4w9WgXcQ",
		DirectURL: "https://cdn.example.com/video.mp4",
		Title:     "Test Video",
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
	if err := repo.Create(ctx, link); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := repo.GetByToken(ctx, "tok-1")
	if err != nil {
		t.Fatalf("GetByToken failed: %v", err)
	}
	if got == nil || got.DirectURL != link.DirectURL || got.Title != "Test Video" {
		t.Fatalf("Unexpected link %+v", got)
	}

	missing, err := repo.GetByToken(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("Expected (nil, nil) for unknown token, got (%v, %v)", missing, err)
	}

	// Same id must not overwrite the existing row.
	dup := *link
	dup.Token = "tok-2"
	if err := repo.Create(ctx, &dup); err == nil {
		t.Error("Expected error when reusing an id")
	}
}

func TestLinkRepository_DeleteExpired(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	repo := repository.NewLinkRepository(db)
	now := time.Now()

	seed := []struct {
		id      string
		expires time.Time
	}{
		{"past", now.Add(-time.Minute)},
		{"boundary", now},
		{"future", now.Add(time.Hour)},
	}
	for _, s := range seed {
		err := repo.Create(ctx, &models.DirectLink{
			ID: s.id, Token: "t-" + s.id, SourceURL: "src", DirectURL: "dst",
			CreatedAt: now.Add(-time.Hour), ExpiresAt: s.expires,
		})
		if err != nil {
			t.Fatalf("Create %s failed: %v", s.id, err)
		}
	}

	removed, err := repo.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 removed, got %d", removed)
	}

	removed, err = repo.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("Second DeleteExpired failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("Second sweep should remove nothing, removed %d", removed)
	}

	links, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(links) != 2 || links[0].ID != "boundary" || links[1].ID != "future" {
		t.Errorf("Unexpected remaining links: %+v", links)
	}
}
