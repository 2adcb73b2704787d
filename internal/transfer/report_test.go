package transfer

import (
	"errors"
	"strings"
	"testing"

	"github.com/desertthunder/amx/internal/catalog"
)

func TestReportRenderDeterministic(t *testing.T) {
	build := func() *Report {
		r := NewReport("Spotify", "Apple Music", false)
		r.Add(Outcome{
			Category:  LikedSongs,
			Attempted: 3,
			Succeeded: 1,
			Skipped:   1,
			Unmatched: []UnmatchedTrack{
				{Track: catalog.TrackRef{Title: "Ghost Song", Artist: "Nobody"}, Reason: NoIsrcCandidate},
			},
		})
		return r
	}

	first := build().Render()
	second := build().Render()
	if first != second {
		t.Error("Render() output differs across identical reports")
	}

	if !strings.Contains(first, "Transfer report: Spotify -> Apple Music") {
		t.Errorf("missing header in:\n%s", first)
	}
	if !strings.Contains(first, "liked songs: 1/3 transferred, 1 already present, 1 unmatched") {
		t.Errorf("missing category line in:\n%s", first)
	}
	if !strings.Contains(first, "  - Ghost Song by Nobody (no ISRC match)") {
		t.Errorf("missing unmatched line in:\n%s", first)
	}
	if !strings.Contains(first, unmatchedTip) {
		t.Errorf("missing tip in:\n%s", first)
	}
}

func TestReportUnmatchedOrderPreserved(t *testing.T) {
	r := NewReport("Spotify", "Apple Music", false)
	r.Add(Outcome{
		Category:  LikedSongs,
		Attempted: 3,
		Unmatched: []UnmatchedTrack{
			{Track: catalog.TrackRef{Title: "First Miss", Artist: "A"}, Reason: NoIsrcCandidate},
			{Track: catalog.TrackRef{Title: "Second Miss", Artist: "B"}, Reason: NoTitleArtistCandidate},
			{Track: catalog.TrackRef{Title: "Third Miss", Artist: "C"}, Reason: WriteRejected},
		},
	})

	out := r.Render()
	first := strings.Index(out, "First Miss")
	second := strings.Index(out, "Second Miss")
	third := strings.Index(out, "Third Miss")
	if first < 0 || second < 0 || third < 0 || first > second || second > third {
		t.Errorf("unmatched lines out of enumeration order:\n%s", out)
	}
}

func TestReportNoTipWhenEverythingMatched(t *testing.T) {
	r := NewReport("Apple Music", "Spotify", false)
	r.Add(Outcome{Category: LikedSongs, Attempted: 2, Succeeded: 2})

	out := r.Render()
	if strings.Contains(out, "Tip:") {
		t.Errorf("tip present with zero unmatched:\n%s", out)
	}
	if !strings.Contains(out, "Totals: 2 transferred, 0 already present, 0 unmatched") {
		t.Errorf("missing totals line in:\n%s", out)
	}
}

func TestReportBanners(t *testing.T) {
	r := NewReport("Spotify", "Apple Music", true)
	r.MarkPartial()
	r.Add(Outcome{Category: LikedSongs, Attempted: 1, Succeeded: 1})

	out := r.Render()
	if !strings.Contains(out, "(dry run: no changes were written)") {
		t.Errorf("missing dry-run banner in:\n%s", out)
	}
	if !strings.Contains(out, "(partial: the transfer was cancelled before finishing)") {
		t.Errorf("missing partial banner in:\n%s", out)
	}
}

func TestReportHasUnmatched(t *testing.T) {
	clean := NewReport("Spotify", "Apple Music", false)
	clean.Add(Outcome{Category: LikedSongs, Attempted: 2, Succeeded: 2})
	if clean.HasUnmatched() {
		t.Error("HasUnmatched() = true for a fully matched report")
	}

	missed := NewReport("Spotify", "Apple Music", false)
	missed.Add(Outcome{Category: LikedSongs, Attempted: 2, Succeeded: 2})
	missed.Add(Outcome{
		Category:  Albums,
		Attempted: 1,
		Unmatched: []UnmatchedTrack{
			{Track: catalog.TrackRef{Title: "Ghost", Artist: "Nobody"}, Reason: NoIsrcCandidate},
		},
	})
	if !missed.HasUnmatched() {
		t.Error("HasUnmatched() = false with an unmatched track recorded")
	}
}

func TestReportFailedCategory(t *testing.T) {
	r := NewReport("Spotify", "Apple Music", false)
	r.Add(Outcome{Category: Playlists, Err: errors.New("enumeration failed")})
	r.Add(Outcome{Category: Albums, Attempted: 1, Succeeded: 1})

	out := r.Render()
	if !strings.Contains(out, "playlists: failed (enumeration failed)") {
		t.Errorf("missing failure line in:\n%s", out)
	}
	if !strings.Contains(out, "saved albums: 1/1 transferred") {
		t.Errorf("healthy category missing after failed one:\n%s", out)
	}
}
