package cache

import (
	"testing"

	"github.com/desertthunder/amx/internal/shared"
	"github.com/desertthunder/amx/internal/transfer"
)

func newTestRepository(t *testing.T) *MatchRepository {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("NewDatabase() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := NewMatchRepository(db)
	if err := repo.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	return repo
}

func TestMatchRepositoryRoundTrip(t *testing.T) {
	repo := newTestRepository(t)

	if _, ok := repo.Lookup("Spotify", "t1", "Apple Music"); ok {
		t.Error("Lookup() hit on empty cache")
	}

	if err := repo.Store("Spotify", "t1", "Apple Music", "am1"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	destID, ok := repo.Lookup("Spotify", "t1", "Apple Music")
	if !ok || destID != "am1" {
		t.Errorf("Lookup() = %q, %v, want am1, true", destID, ok)
	}

	// same source track toward a different destination is a separate match
	if _, ok := repo.Lookup("Spotify", "t1", "Tidal"); ok {
		t.Error("Lookup() hit for a destination that was never stored")
	}
}

func TestMatchRepositoryDuplicateIgnored(t *testing.T) {
	repo := newTestRepository(t)

	if err := repo.Store("Spotify", "t1", "Apple Music", "am1"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if err := repo.Store("Spotify", "t1", "Apple Music", "am2"); err != nil {
		t.Errorf("Store() duplicate error = %v, want nil", err)
	}

	// first write wins
	destID, _ := repo.Lookup("Spotify", "t1", "Apple Music")
	if destID != "am1" {
		t.Errorf("Lookup() = %q, want am1", destID)
	}
}

func TestMatchRepositoryStats(t *testing.T) {
	repo := newTestRepository(t)

	pairs := []struct{ source, id, dest, destID string }{
		{"Spotify", "t1", "Apple Music", "am1"},
		{"Spotify", "t2", "Apple Music", "am2"},
		{"Apple Music", "am9", "Spotify", "t9"},
	}
	for _, p := range pairs {
		if err := repo.Store(p.source, p.id, p.dest, p.destID); err != nil {
			t.Fatalf("Store() error = %v", err)
		}
	}

	stats, err := repo.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}

	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	if stats.Pairs["Spotify -> Apple Music"] != 2 {
		t.Errorf("Spotify -> Apple Music = %d, want 2", stats.Pairs["Spotify -> Apple Music"])
	}
	if stats.Pairs["Apple Music -> Spotify"] != 1 {
		t.Errorf("Apple Music -> Spotify = %d, want 1", stats.Pairs["Apple Music -> Spotify"])
	}
}

func TestMatchRepositoryClear(t *testing.T) {
	repo := newTestRepository(t)

	if err := repo.Store("Spotify", "t1", "Apple Music", "am1"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	removed, err := repo.Clear()
	if err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Clear() = %d, want 1", removed)
	}

	if _, ok := repo.Lookup("Spotify", "t1", "Apple Music"); ok {
		t.Error("Lookup() hit after Clear()")
	}
}

// The repository must satisfy the matcher's cache contract.
var _ transfer.MatchCache = (*MatchRepository)(nil)
