package transfer

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/desertthunder/amx/internal/catalog"
	"github.com/desertthunder/amx/internal/shared"
	testutil "github.com/desertthunder/amx/internal/testing"
)

func testEngine(source, dest catalog.Provider, dryRun bool) *Engine {
	return NewEngine(EngineOpts{
		Source:          source,
		Dest:            dest,
		WritesPerSecond: 1000,
		DryRun:          dryRun,
	})
}

func runOne(t *testing.T, e *Engine, cat Category) Outcome {
	t.Helper()
	outcomes, err := e.Run(context.Background(), []Category{cat}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("got %d outcomes, want 1", len(outcomes))
	}
	return outcomes[0]
}

func TestLikedSongsTransfer(t *testing.T) {
	source := &testutil.FakeProvider{
		ProviderName: "src",
		Liked: []catalog.TrackRef{
			{ID: "s1", Title: "One", Artist: "A", ISRC: "US001", Provider: "src"},
			{ID: "s2", Title: "Two", Artist: "B", ISRC: "US002", Provider: "src"},
			{ID: "s3", Title: "Three", Artist: "C", Provider: "src"},
		},
	}
	dest := &testutil.FakeProvider{
		ProviderName: "dst",
		// "One" is already liked on the destination, keyed by ISRC
		Liked:  []catalog.TrackRef{{ID: "d1", Title: "One (Remastered)", Artist: "A", ISRC: "US001"}},
		ByISRC: map[string]string{"US002": "d2"},
	}

	outcome := runOne(t, testEngine(source, dest, false), LikedSongs)

	if outcome.Attempted != 3 || outcome.Succeeded != 1 || outcome.Skipped != 1 {
		t.Errorf("attempted/succeeded/skipped = %d/%d/%d, want 3/1/1",
			outcome.Attempted, outcome.Succeeded, outcome.Skipped)
	}
	if len(outcome.Unmatched) != 1 || outcome.Unmatched[0].Reason != NoTitleArtistCandidate {
		t.Errorf("unmatched = %+v, want one NoTitleArtistCandidate for Three", outcome.Unmatched)
	}

	calls := dest.MutatingCalls()
	if len(calls) != 1 || calls[0] != "Like(d2)" {
		t.Errorf("mutating calls = %v, want [Like(d2)]", calls)
	}
}

func TestLikedSongsRerunIsIdempotent(t *testing.T) {
	source := &testutil.FakeProvider{
		Liked: []catalog.TrackRef{{ID: "s1", Title: "One", Artist: "A", ISRC: "US001"}},
	}
	dest := &testutil.FakeProvider{
		Liked:  []catalog.TrackRef{{ID: "d1", Title: "One", Artist: "A", ISRC: "US001"}},
		ByISRC: map[string]string{"US001": "d1"},
	}

	outcome := runOne(t, testEngine(source, dest, false), LikedSongs)

	if outcome.Skipped != 1 || outcome.Succeeded != 0 {
		t.Errorf("skipped/succeeded = %d/%d, want 1/0", outcome.Skipped, outcome.Succeeded)
	}
	if calls := dest.MutatingCalls(); len(calls) != 0 {
		t.Errorf("mutating calls = %v, want none on rerun", calls)
	}
}

func TestDryRunWritesNothing(t *testing.T) {
	source := &testutil.FakeProvider{
		Liked:     []catalog.TrackRef{{ID: "s1", Title: "One", Artist: "A", ISRC: "US001"}},
		Playlists: []catalog.PlaylistRef{{ID: "p1", Name: "Mix", OwnerIsSelf: true}},
		PlaylistTracks: map[string][]catalog.TrackRef{
			"p1": {{ID: "s2", Title: "Two", Artist: "B", ISRC: "US002"}},
		},
		SavedAlbums: []catalog.AlbumRef{{
			Title: "Album", Artist: "A",
			Tracks: []catalog.TrackRef{{ID: "s3", Title: "Three", Artist: "A", ISRC: "US003"}},
		}},
	}
	dest := &testutil.FakeProvider{
		AlbumSave: true,
		ByISRC:    map[string]string{"US001": "d1", "US002": "d2", "US003": "d3"},
		AlbumsByKey: map[string]string{
			shared.NormalizeAlbumKey("Album", "A"): "alb1",
		},
	}

	engine := testEngine(source, dest, true)
	outcomes, err := engine.Run(context.Background(), AllCategories, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for _, outcome := range outcomes {
		if outcome.Err != nil {
			t.Errorf("%s: unexpected error %v", outcome.Category, outcome.Err)
		}
		if outcome.Succeeded == 0 {
			t.Errorf("%s: succeeded = 0, want resolved items counted in dry run", outcome.Category)
		}
	}

	if calls := dest.MutatingCalls(); len(calls) != 0 {
		t.Errorf("mutating calls = %v, want none in dry run", calls)
	}
}

// libraryFixture builds a fresh source/destination pair covering every
// category with a mix of new, already-present, and unmatchable items.
func libraryFixture() (*testutil.FakeProvider, *testutil.FakeProvider) {
	source := &testutil.FakeProvider{
		Liked: []catalog.TrackRef{
			{ID: "s1", Title: "One", Artist: "A", ISRC: "US001"},
			{ID: "s2", Title: "Two", Artist: "B", ISRC: "US002"},
			{ID: "s3", Title: "Ghost", Artist: "C"},
		},
		Playlists: []catalog.PlaylistRef{{ID: "p1", Name: "Mix", OwnerIsSelf: true}},
		PlaylistTracks: map[string][]catalog.TrackRef{
			"p1": {
				{ID: "s4", Title: "Four", Artist: "D", ISRC: "US004"},
				{ID: "s5", Title: "Five", Artist: "E", ISRC: "US005"},
			},
		},
		SavedAlbums: []catalog.AlbumRef{
			{Title: "Kept", Artist: "A"},
			{Title: "Fresh", Artist: "B"},
		},
	}
	dest := &testutil.FakeProvider{
		AlbumSave: true,
		Liked:     []catalog.TrackRef{{ID: "d1", Title: "One", Artist: "A", ISRC: "US001"}},
		Playlists: []catalog.PlaylistRef{{ID: "dp1", Name: "Mix", OwnerIsSelf: true}},
		PlaylistTracks: map[string][]catalog.TrackRef{
			"dp1": {{ID: "d4", Title: "Four", Artist: "D", ISRC: "US004"}},
		},
		SavedAlbums: []catalog.AlbumRef{{Title: "Kept", Artist: "A"}},
		ByISRC:      map[string]string{"US002": "d2", "US005": "d5"},
		AlbumsByKey: map[string]string{shared.NormalizeAlbumKey("Fresh", "B"): "alb2"},
	}
	return source, dest
}

func TestDryRunReportMatchesLiveRun(t *testing.T) {
	srcDry, dstDry := libraryFixture()
	dry, err := testEngine(srcDry, dstDry, true).Run(context.Background(), AllCategories, nil)
	if err != nil {
		t.Fatalf("dry Run() error = %v", err)
	}

	srcLive, dstLive := libraryFixture()
	live, err := testEngine(srcLive, dstLive, false).Run(context.Background(), AllCategories, nil)
	if err != nil {
		t.Fatalf("live Run() error = %v", err)
	}

	if len(dry) != len(live) {
		t.Fatalf("outcome counts differ: dry %d, live %d", len(dry), len(live))
	}
	for i := range dry {
		d, l := dry[i], live[i]
		if d.Attempted != l.Attempted || d.Succeeded != l.Succeeded || d.Skipped != l.Skipped {
			t.Errorf("%s: dry %d/%d/%d, live %d/%d/%d (attempted/succeeded/skipped)",
				d.Category, d.Attempted, d.Succeeded, d.Skipped, l.Attempted, l.Succeeded, l.Skipped)
		}
		if len(d.Unmatched) != len(l.Unmatched) {
			t.Errorf("%s: unmatched differ: dry %+v, live %+v", d.Category, d.Unmatched, l.Unmatched)
			continue
		}
		for j := range d.Unmatched {
			if d.Unmatched[j] != l.Unmatched[j] {
				t.Errorf("%s: unmatched[%d] = %+v (dry), %+v (live)", d.Category, j, d.Unmatched[j], l.Unmatched[j])
			}
		}
	}

	if calls := dstDry.MutatingCalls(); len(calls) != 0 {
		t.Errorf("dry run issued writes: %v", calls)
	}
}

func TestPlaylistReusedByName(t *testing.T) {
	source := &testutil.FakeProvider{
		Playlists: []catalog.PlaylistRef{{ID: "p1", Name: "Mix", OwnerIsSelf: true}},
		PlaylistTracks: map[string][]catalog.TrackRef{
			"p1": {
				{ID: "s1", Title: "One", Artist: "A", ISRC: "US001"},
				{ID: "s2", Title: "Two", Artist: "B", ISRC: "US002"},
			},
		},
	}
	dest := &testutil.FakeProvider{
		Playlists: []catalog.PlaylistRef{{ID: "dp1", Name: "Mix", OwnerIsSelf: true}},
		PlaylistTracks: map[string][]catalog.TrackRef{
			"dp1": {{ID: "d1", Title: "One", Artist: "A", ISRC: "US001"}},
		},
		ByISRC: map[string]string{"US002": "d2"},
	}

	outcome := runOne(t, testEngine(source, dest, false), Playlists)

	if outcome.Skipped != 1 || outcome.Succeeded != 1 {
		t.Errorf("skipped/succeeded = %d/%d, want 1/1", outcome.Skipped, outcome.Succeeded)
	}

	calls := dest.MutatingCalls()
	if len(calls) != 1 || calls[0] != "AddTracks(dp1,1)" {
		t.Errorf("mutating calls = %v, want [AddTracks(dp1,1)] with no CreatePlaylist", calls)
	}
}

func TestPlaylistCreatedWhenMissing(t *testing.T) {
	source := &testutil.FakeProvider{
		Playlists: []catalog.PlaylistRef{{ID: "p1", Name: "New Mix", OwnerIsSelf: true}},
		PlaylistTracks: map[string][]catalog.TrackRef{
			"p1": {{ID: "s1", Title: "One", Artist: "A", ISRC: "US001"}},
		},
	}
	dest := &testutil.FakeProvider{
		ByISRC: map[string]string{"US001": "d1"},
	}

	outcome := runOne(t, testEngine(source, dest, false), Playlists)

	if outcome.Succeeded != 1 {
		t.Errorf("succeeded = %d, want 1", outcome.Succeeded)
	}

	calls := dest.MutatingCalls()
	want := []string{"CreatePlaylist(New Mix)", "AddTracks(fake-pl-1,1)"}
	if len(calls) != len(want) || calls[0] != want[0] || calls[1] != want[1] {
		t.Errorf("mutating calls = %v, want %v", calls, want)
	}
}

func TestPlaylistReadFailureMarksCatalogUnavailable(t *testing.T) {
	source := &testutil.FakeProvider{
		Playlists: []catalog.PlaylistRef{{ID: "p1", Name: "Mix", OwnerIsSelf: true}},
		PlaylistTracks: map[string][]catalog.TrackRef{
			"p1": {{ID: "s1", Title: "One", Artist: "A", ISRC: "US001"}},
		},
	}
	dest := &testutil.FakeProvider{
		Playlists:         []catalog.PlaylistRef{{ID: "dp1", Name: "Mix", OwnerIsSelf: true}},
		PlaylistTracksErr: shared.ErrAPIRequest,
		ByISRC:            map[string]string{"US001": "d1"},
	}

	outcome := runOne(t, testEngine(source, dest, false), Playlists)

	if outcome.Succeeded != 0 {
		t.Errorf("succeeded = %d, want 0", outcome.Succeeded)
	}
	if len(outcome.Unmatched) != 1 || outcome.Unmatched[0].Reason != CatalogUnavailable {
		t.Errorf("unmatched = %+v, want one CatalogUnavailable (read failure is not a rejected write)", outcome.Unmatched)
	}
	if calls := dest.MutatingCalls(); len(calls) != 0 {
		t.Errorf("mutating calls = %v, want none when the destination playlist is unreadable", calls)
	}
}

func TestPlaylistBatchFailureKeepsEnumerationOrder(t *testing.T) {
	source := &testutil.FakeProvider{
		Playlists: []catalog.PlaylistRef{{ID: "p1", Name: "Mix", OwnerIsSelf: true}},
		PlaylistTracks: map[string][]catalog.TrackRef{
			"p1": {
				{ID: "s1", Title: "One", Artist: "A"},
				{ID: "s2", Title: "Two", Artist: "B", ISRC: "US002"},
				{ID: "s3", Title: "Three", Artist: "C"},
				{ID: "s4", Title: "Four", Artist: "D", ISRC: "US004"},
			},
		},
	}
	dest := &testutil.FakeProvider{
		Playlists: []catalog.PlaylistRef{{ID: "dp1", Name: "Mix", OwnerIsSelf: true}},
		ByISRC:    map[string]string{"US002": "d2", "US004": "d4"},
		WriteErr:  errors.New("forbidden"),
	}

	outcome := runOne(t, testEngine(source, dest, false), Playlists)

	want := []UnmatchedTrack{
		{Track: source.PlaylistTracks["p1"][0], Reason: NoTitleArtistCandidate},
		{Track: source.PlaylistTracks["p1"][1], Reason: WriteRejected},
		{Track: source.PlaylistTracks["p1"][2], Reason: NoTitleArtistCandidate},
		{Track: source.PlaylistTracks["p1"][3], Reason: WriteRejected},
	}
	if len(outcome.Unmatched) != len(want) {
		t.Fatalf("unmatched = %+v, want %d entries", outcome.Unmatched, len(want))
	}
	for i := range want {
		if outcome.Unmatched[i] != want[i] {
			t.Errorf("unmatched[%d] = %+v, want %+v (enumeration order)", i, outcome.Unmatched[i], want[i])
		}
	}
}

func TestAlbumNativeSave(t *testing.T) {
	source := &testutil.FakeProvider{
		SavedAlbums: []catalog.AlbumRef{
			{Title: "Saved", Artist: "A"},
			{Title: "Fresh", Artist: "B"},
		},
	}
	dest := &testutil.FakeProvider{
		AlbumSave:   true,
		SavedAlbums: []catalog.AlbumRef{{Title: "Saved", Artist: "A"}},
		AlbumsByKey: map[string]string{shared.NormalizeAlbumKey("Fresh", "B"): "alb2"},
	}

	outcome := runOne(t, testEngine(source, dest, false), Albums)

	if outcome.Skipped != 1 || outcome.Succeeded != 1 {
		t.Errorf("skipped/succeeded = %d/%d, want 1/1", outcome.Skipped, outcome.Succeeded)
	}
	calls := dest.MutatingCalls()
	if len(calls) != 1 || calls[0] != "SaveAlbum(alb2)" {
		t.Errorf("mutating calls = %v, want [SaveAlbum(alb2)]", calls)
	}
}

func TestAlbumFallbackLikesTracks(t *testing.T) {
	source := &testutil.FakeProvider{
		SavedAlbums: []catalog.AlbumRef{{
			Title: "Obscure", Artist: "A",
			Tracks: []catalog.TrackRef{
				{ID: "s1", Title: "One", Artist: "A", ISRC: "US001"},
				{ID: "s2", Title: "Two", Artist: "A", ISRC: "US002"},
			},
		}},
	}
	// album save supported but the album itself is not in the catalog
	dest := &testutil.FakeProvider{
		AlbumSave: true,
		ByISRC:    map[string]string{"US001": "d1", "US002": "d2"},
	}

	outcome := runOne(t, testEngine(source, dest, false), Albums)

	if outcome.Succeeded != 1 {
		t.Errorf("succeeded = %d, want 1 (whole album via per-track likes)", outcome.Succeeded)
	}
	calls := dest.MutatingCalls()
	if len(calls) != 2 || calls[0] != "Like(d1)" || calls[1] != "Like(d2)" {
		t.Errorf("mutating calls = %v, want [Like(d1) Like(d2)]", calls)
	}
}

func TestAlbumFallbackPartialFailure(t *testing.T) {
	source := &testutil.FakeProvider{
		SavedAlbums: []catalog.AlbumRef{{
			Title: "Obscure", Artist: "A",
			Tracks: []catalog.TrackRef{
				{ID: "s1", Title: "One", Artist: "A", ISRC: "US001"},
				{ID: "s2", Title: "Two", Artist: "A"},
			},
		}},
	}
	dest := &testutil.FakeProvider{
		ByISRC: map[string]string{"US001": "d1"},
	}

	outcome := runOne(t, testEngine(source, dest, false), Albums)

	if outcome.Succeeded != 0 {
		t.Errorf("succeeded = %d, want 0 (album with an unmatched track is not complete)", outcome.Succeeded)
	}
	if len(outcome.Unmatched) != 1 || outcome.Unmatched[0].Track.Title != "Two" {
		t.Errorf("unmatched = %+v, want the missing track Two", outcome.Unmatched)
	}
}

func TestWriteFailureRecordsRejection(t *testing.T) {
	source := &testutil.FakeProvider{
		Liked: []catalog.TrackRef{{ID: "s1", Title: "One", Artist: "A", ISRC: "US001"}},
	}
	dest := &testutil.FakeProvider{
		ByISRC:   map[string]string{"US001": "d1"},
		WriteErr: errors.New("forbidden"),
	}

	outcome := runOne(t, testEngine(source, dest, false), LikedSongs)

	if outcome.Succeeded != 0 {
		t.Errorf("succeeded = %d, want 0", outcome.Succeeded)
	}
	if len(outcome.Unmatched) != 1 || outcome.Unmatched[0].Reason != WriteRejected {
		t.Errorf("unmatched = %+v, want one WriteRejected", outcome.Unmatched)
	}
}

func TestWriteRateLimitRetried(t *testing.T) {
	source := &testutil.FakeProvider{
		Liked: []catalog.TrackRef{{ID: "s1", Title: "One", Artist: "A", ISRC: "US001"}},
	}
	dest := &testutil.FakeProvider{
		ByISRC:        map[string]string{"US001": "d1"},
		WriteErr:      shared.ErrRateLimited,
		WriteErrCount: 2,
	}

	matcher := NewMatcher(MatcherOpts{Attempts: 3, Backoff: 1})
	matcher.sleep = func(d time.Duration) {}

	engine := NewEngine(EngineOpts{Source: source, Dest: dest, Matcher: matcher, WritesPerSecond: 1000})
	outcomes, err := engine.Run(context.Background(), []Category{LikedSongs}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if outcomes[0].Succeeded != 1 {
		t.Errorf("succeeded = %d, want 1 (write lands on third attempt)", outcomes[0].Succeeded)
	}
	if calls := dest.MutatingCalls(); len(calls) != 3 {
		t.Errorf("write attempts = %d, want 3", len(calls))
	}
}

func TestCategoryFailureIsolated(t *testing.T) {
	source := &testutil.FakeProvider{
		LikedErr: shared.ErrCatalogUnavailable,
		SavedAlbums: []catalog.AlbumRef{{
			Title: "Album", Artist: "A",
			Tracks: []catalog.TrackRef{{ID: "s1", Title: "One", Artist: "A", ISRC: "US001"}},
		}},
	}
	dest := &testutil.FakeProvider{
		AlbumSave:   true,
		AlbumsByKey: map[string]string{shared.NormalizeAlbumKey("Album", "A"): "alb1"},
	}

	engine := testEngine(source, dest, false)
	outcomes, err := engine.Run(context.Background(), []Category{LikedSongs, Albums}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(outcomes))
	}
	if !errors.Is(outcomes[0].Err, shared.ErrCatalogUnavailable) {
		t.Errorf("liked songs Err = %v, want ErrCatalogUnavailable", outcomes[0].Err)
	}
	if outcomes[1].Err != nil || outcomes[1].Succeeded != 1 {
		t.Errorf("albums outcome = %+v, want success despite earlier category failure", outcomes[1])
	}
}

// cancellingSource cancels the run's context after yielding its first track.
type cancellingSource struct {
	testutil.FakeProvider
	cancel context.CancelFunc
}

func (c *cancellingSource) ListLiked(ctx context.Context) iter.Seq2[catalog.TrackRef, error] {
	return func(yield func(catalog.TrackRef, error) bool) {
		if !yield(catalog.TrackRef{ID: "s1", Title: "One", Artist: "A", ISRC: "US001"}, nil) {
			return
		}
		c.cancel()
		yield(catalog.TrackRef{ID: "s2", Title: "Two", Artist: "B", ISRC: "US002"}, nil)
	}
}

func TestCancellationBetweenItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := &cancellingSource{cancel: cancel}
	dest := &testutil.FakeProvider{
		ByISRC: map[string]string{"US001": "d1", "US002": "d2"},
	}

	engine := NewEngine(EngineOpts{Source: source, Dest: dest, WritesPerSecond: 1000})
	outcomes, err := engine.Run(ctx, []Category{LikedSongs, Playlists}, nil)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("got %d outcomes, want 1 (second category never starts)", len(outcomes))
	}
	if outcomes[0].Succeeded != 1 {
		t.Errorf("succeeded = %d, want 1 (first item completed before cancel)", outcomes[0].Succeeded)
	}
	if calls := dest.MutatingCalls(); len(calls) != 1 {
		t.Errorf("mutating calls = %v, want the single pre-cancel write", calls)
	}
}

func TestProgressStatesMonotonic(t *testing.T) {
	source := &testutil.FakeProvider{
		Liked: []catalog.TrackRef{{ID: "s1", Title: "One", Artist: "A", ISRC: "US001"}},
	}
	dest := &testutil.FakeProvider{ByISRC: map[string]string{"US001": "d1"}}

	progress := make(chan ProgressUpdate, 64)
	engine := testEngine(source, dest, false)
	if _, err := engine.Run(context.Background(), []Category{LikedSongs}, progress); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	close(progress)

	last := Pending
	var count int
	for update := range progress {
		count++
		if update.State < last {
			t.Errorf("state went backwards: %v after %v", update.State, last)
		}
		last = update.State
	}
	if count == 0 {
		t.Fatal("no progress updates received")
	}
	if last != Reported {
		t.Errorf("final state = %v, want Reported", last)
	}
}
