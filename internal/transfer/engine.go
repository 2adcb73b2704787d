package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/amx/internal/catalog"
	"github.com/desertthunder/amx/internal/shared"
)

// Category is a transferable slice of a music library.
type Category int

const (
	LikedSongs Category = iota
	Playlists
	Albums
)

func (c Category) String() string {
	switch c {
	case LikedSongs:
		return "liked songs"
	case Playlists:
		return "playlists"
	case Albums:
		return "saved albums"
	default:
		return "unknown"
	}
}

// AllCategories is the fixed processing order for a full transfer.
var AllCategories = []Category{LikedSongs, Playlists, Albums}

// State is a category's position in its transfer lifecycle. Transitions are
// monotonic: Pending, Enumerating, Matching, Writing, Reported.
type State int

const (
	Pending State = iota
	Enumerating
	Matching
	Writing
	Reported
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Enumerating:
		return "enumerating"
	case Matching:
		return "matching"
	case Writing:
		return "writing"
	case Reported:
		return "reported"
	default:
		return "unknown"
	}
}

// UnmatchedTrack is a source track that did not land in the destination,
// paired with the reason it failed.
type UnmatchedTrack struct {
	Track  catalog.TrackRef
	Reason FailureReason
}

// Outcome summarizes one category after its run.
//
// Skipped counts items already present in the destination; they are never
// double-counted as Succeeded. Err is set only when the category could not
// run at all, typically because enumeration failed.
type Outcome struct {
	Category  Category
	Attempted int
	Succeeded int
	Skipped   int
	Unmatched []UnmatchedTrack
	Err       error
}

// Engine moves library categories from one catalog provider to another.
//
// Writes are throttled through a rate limiter and retried on rate limits
// with the matcher's backoff budget. In dry-run mode the engine resolves
// every item but issues no mutating calls.
type Engine struct {
	source  catalog.Provider
	dest    catalog.Provider
	matcher *Matcher
	limiter *rate.Limiter
	dryRun  bool
	logger  *log.Logger

	// destination liked tracks, loaded once per run on first use
	liked     *presenceSet
	likedErr  error
	likedDone bool
}

// EngineOpts configures an Engine. WritesPerSecond defaults to 5.
type EngineOpts struct {
	Source          catalog.Provider
	Dest            catalog.Provider
	Matcher         *Matcher
	WritesPerSecond float64
	DryRun          bool
	Logger          *log.Logger
}

// NewEngine creates an Engine for a source/destination provider pair.
func NewEngine(opts EngineOpts) *Engine {
	if opts.Matcher == nil {
		opts.Matcher = NewMatcher(MatcherOpts{})
	}
	if opts.WritesPerSecond <= 0 {
		opts.WritesPerSecond = 5
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &Engine{
		source:  opts.Source,
		dest:    opts.Dest,
		matcher: opts.Matcher,
		limiter: rate.NewLimiter(rate.Limit(opts.WritesPerSecond), 1),
		dryRun:  opts.DryRun,
		logger:  opts.Logger,
	}
}

// Run transfers the requested categories in library order and returns one
// Outcome per category. Cancellation between items stops the run; completed
// outcomes are returned alongside the context error so a partial report can
// still be produced.
func (e *Engine) Run(ctx context.Context, categories []Category, progress chan<- ProgressUpdate) ([]Outcome, error) {
	requested := make(map[Category]bool, len(categories))
	for _, cat := range categories {
		requested[cat] = true
	}

	e.logger.Info("starting transfer", "source", e.source.Name(), "destination", e.dest.Name(), "dry_run", e.dryRun)

	var outcomes []Outcome
	for _, cat := range AllCategories {
		if !requested[cat] {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		sendProgress(progress, stateUpdate(cat, Pending))

		var outcome Outcome
		switch cat {
		case LikedSongs:
			outcome = e.runLiked(ctx, progress)
		case Playlists:
			outcome = e.runPlaylists(ctx, progress)
		case Albums:
			outcome = e.runAlbums(ctx, progress)
		}

		if outcome.Err != nil {
			e.logger.Error("category failed", "category", cat.String(), "error", outcome.Err)
		} else {
			e.logger.Info("category complete", "category", cat.String(),
				"attempted", outcome.Attempted, "succeeded", outcome.Succeeded,
				"skipped", outcome.Skipped, "unmatched", len(outcome.Unmatched))
		}

		sendProgress(progress, reportedUpdate(cat, outcome))
		outcomes = append(outcomes, outcome)
	}

	return outcomes, ctx.Err()
}

func (e *Engine) runLiked(ctx context.Context, progress chan<- ProgressUpdate) Outcome {
	outcome := Outcome{Category: LikedSongs}

	sendProgress(progress, enumeratingUpdate(LikedSongs, e.dest.Name()))
	present, err := e.destLiked(ctx)
	if err != nil {
		outcome.Err = fmt.Errorf("enumerating destination liked songs: %w", err)
		return outcome
	}

	sendProgress(progress, stateUpdate(LikedSongs, Matching))
	for track, err := range e.source.ListLiked(ctx) {
		if err != nil {
			outcome.Err = fmt.Errorf("enumerating source liked songs: %w", err)
			return outcome
		}
		if ctx.Err() != nil {
			return outcome
		}

		outcome.Attempted++
		sendProgress(progress, resolveUpdate(LikedSongs, outcome.Attempted, track))

		if present.has(track) {
			outcome.Skipped++
			continue
		}

		result := e.matcher.Resolve(ctx, e.dest, track)
		if !result.Matched() {
			outcome.Unmatched = append(outcome.Unmatched, UnmatchedTrack{Track: track, Reason: result.Reason})
			continue
		}

		if !e.dryRun {
			if werr := e.write(ctx, func() error {
				return e.dest.Like(ctx, result.DestID)
			}); werr != nil {
				outcome.Unmatched = append(outcome.Unmatched, UnmatchedTrack{Track: track, Reason: writeFailure(werr)})
				continue
			}
		}

		outcome.Succeeded++
		present.add(track)
	}

	return outcome
}

func (e *Engine) runPlaylists(ctx context.Context, progress chan<- ProgressUpdate) Outcome {
	outcome := Outcome{Category: Playlists}

	sendProgress(progress, enumeratingUpdate(Playlists, e.dest.Name()))
	existing := make(map[string]catalog.PlaylistRef)
	for pl, err := range e.dest.ListPlaylists(ctx) {
		if err != nil {
			outcome.Err = fmt.Errorf("enumerating destination playlists: %w", err)
			return outcome
		}
		existing[pl.Name] = pl
	}

	sendProgress(progress, stateUpdate(Playlists, Matching))
	for pl, err := range e.source.ListPlaylists(ctx) {
		if err != nil {
			outcome.Err = fmt.Errorf("enumerating source playlists: %w", err)
			return outcome
		}
		if ctx.Err() != nil {
			return outcome
		}

		e.transferPlaylist(ctx, progress, pl, existing, &outcome)
	}

	return outcome
}

// playlistItem is one enumerated playlist track awaiting its final fate:
// already failed with a reason, or resolved and pending the batch add.
type playlistItem struct {
	track  catalog.TrackRef
	destID string
	reason FailureReason
}

// transferPlaylist moves one playlist's tracks, reusing an existing
// destination playlist with the same name when one exists. Items are
// buffered so the unmatched list stays in enumeration order even when the
// batch add fails after per-track resolution misses.
func (e *Engine) transferPlaylist(ctx context.Context, progress chan<- ProgressUpdate, pl catalog.PlaylistRef, existing map[string]catalog.PlaylistRef, outcome *Outcome) {
	membership := newPresenceSet()
	destID := ""
	destReason := ReasonNone

	if found, ok := existing[pl.Name]; ok {
		destID = found.ID
		sendProgress(progress, playlistUpdate(pl.Name, false))
		for track, err := range e.dest.ListPlaylistTracks(ctx, found.ID) {
			if err != nil {
				// a failed read, not a rejected write
				destReason = CatalogUnavailable
				break
			}
			membership.add(track)
		}
	} else if !e.dryRun {
		sendProgress(progress, playlistUpdate(pl.Name, true))
		werr := e.write(ctx, func() error {
			var cerr error
			destID, cerr = e.dest.CreatePlaylist(ctx, pl.Name, pl.Description)
			return cerr
		})
		if werr != nil {
			destReason = writeFailure(werr)
		}
	}

	var items []playlistItem

	for track, err := range e.source.ListPlaylistTracks(ctx, pl.ID) {
		if err != nil {
			outcome.Err = fmt.Errorf("playlist %q: %w", pl.Name, err)
			return
		}
		if ctx.Err() != nil {
			return
		}

		outcome.Attempted++
		sendProgress(progress, resolveUpdate(Playlists, outcome.Attempted, track))

		if destReason != ReasonNone {
			items = append(items, playlistItem{track: track, reason: destReason})
			continue
		}
		if membership.has(track) {
			outcome.Skipped++
			continue
		}

		result := e.matcher.Resolve(ctx, e.dest, track)
		if !result.Matched() {
			items = append(items, playlistItem{track: track, reason: result.Reason})
			continue
		}

		membership.add(track)
		if e.dryRun {
			outcome.Succeeded++
			continue
		}
		items = append(items, playlistItem{track: track, destID: result.DestID})
	}

	var pendingIDs []string
	for _, item := range items {
		if item.reason == ReasonNone {
			pendingIDs = append(pendingIDs, item.destID)
		}
	}

	batchReason := ReasonNone
	if len(pendingIDs) > 0 {
		if werr := e.write(ctx, func() error {
			return e.dest.AddTracks(ctx, destID, pendingIDs)
		}); werr != nil {
			batchReason = writeFailure(werr)
		} else {
			outcome.Succeeded += len(pendingIDs)
		}
	}

	for _, item := range items {
		reason := item.reason
		if reason == ReasonNone {
			if batchReason == ReasonNone {
				continue
			}
			reason = batchReason
		}
		outcome.Unmatched = append(outcome.Unmatched, UnmatchedTrack{Track: item.track, Reason: reason})
	}
}

func (e *Engine) runAlbums(ctx context.Context, progress chan<- ProgressUpdate) Outcome {
	outcome := Outcome{Category: Albums}

	sendProgress(progress, enumeratingUpdate(Albums, e.dest.Name()))
	saved := make(map[string]bool)
	for album, err := range e.dest.ListSavedAlbums(ctx) {
		if err != nil {
			outcome.Err = fmt.Errorf("enumerating destination albums: %w", err)
			return outcome
		}
		saved[album.Key()] = true
	}

	sendProgress(progress, stateUpdate(Albums, Matching))
	for album, err := range e.source.ListSavedAlbums(ctx) {
		if err != nil {
			outcome.Err = fmt.Errorf("enumerating source albums: %w", err)
			return outcome
		}
		if ctx.Err() != nil {
			return outcome
		}

		outcome.Attempted++
		if saved[album.Key()] {
			outcome.Skipped++
			continue
		}

		e.transferAlbum(ctx, progress, album, &outcome)
	}

	return outcome
}

// transferAlbum saves one album in the destination. Providers with native
// album saves get a single catalog lookup and save; when the album itself
// cannot be found, or the provider has no album save, each track is liked
// individually instead.
func (e *Engine) transferAlbum(ctx context.Context, progress chan<- ProgressUpdate, album catalog.AlbumRef, outcome *Outcome) {
	ref := catalog.TrackRef{Title: album.Title, Artist: album.Artist, Provider: e.source.Name()}

	if e.dest.SupportsAlbumSave() {
		destID, err := e.matcher.find(ctx, func() (string, error) {
			return e.dest.FindAlbum(ctx, album.Title, album.Artist)
		})
		if err != nil {
			outcome.Unmatched = append(outcome.Unmatched, UnmatchedTrack{Track: ref, Reason: CatalogUnavailable})
			return
		}
		if destID != "" {
			sendProgress(progress, albumUpdate(album, true))
			if e.dryRun {
				outcome.Succeeded++
				return
			}
			if werr := e.write(ctx, func() error {
				return e.dest.SaveAlbum(ctx, destID)
			}); werr != nil {
				outcome.Unmatched = append(outcome.Unmatched, UnmatchedTrack{Track: ref, Reason: writeFailure(werr)})
				return
			}
			outcome.Succeeded++
			return
		}
	}

	// Track-by-track fallback: the album counts as transferred only when
	// every track lands or was already there.
	sendProgress(progress, albumUpdate(album, false))
	present, err := e.destLiked(ctx)
	if err != nil {
		outcome.Unmatched = append(outcome.Unmatched, UnmatchedTrack{Track: ref, Reason: CatalogUnavailable})
		return
	}

	failed := false
	for _, track := range album.Tracks {
		if ctx.Err() != nil {
			return
		}
		if present.has(track) {
			continue
		}

		result := e.matcher.Resolve(ctx, e.dest, track)
		if !result.Matched() {
			outcome.Unmatched = append(outcome.Unmatched, UnmatchedTrack{Track: track, Reason: result.Reason})
			failed = true
			continue
		}

		if !e.dryRun {
			if werr := e.write(ctx, func() error {
				return e.dest.Like(ctx, result.DestID)
			}); werr != nil {
				outcome.Unmatched = append(outcome.Unmatched, UnmatchedTrack{Track: track, Reason: writeFailure(werr)})
				failed = true
				continue
			}
		}
		present.add(track)
	}

	if !failed {
		outcome.Succeeded++
	}
}

// destLiked loads the destination's liked tracks once and memoizes the set
// for presence checks across categories.
func (e *Engine) destLiked(ctx context.Context) (*presenceSet, error) {
	if e.likedDone {
		return e.liked, e.likedErr
	}

	set := newPresenceSet()
	for track, err := range e.dest.ListLiked(ctx) {
		if err != nil {
			e.likedErr = err
			break
		}
		set.add(track)
	}

	e.liked = set
	e.likedDone = true
	return e.liked, e.likedErr
}

// write throttles a mutating call and retries it on rate limits.
func (e *Engine) write(ctx context.Context, op func() error) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	return e.matcher.retry(ctx, op)
}

// writeFailure classifies a failed write: rate limits that exhausted the
// retry budget mean the catalog is unavailable, anything else is a rejection.
func writeFailure(err error) FailureReason {
	if errors.Is(err, shared.ErrRateLimited) {
		return CatalogUnavailable
	}
	return WriteRejected
}

// presenceSet answers "is this track already in the destination" by ISRC
// when both sides carry one, by normalized title/artist key otherwise.
// Provider identifiers are useless here since they differ across catalogs.
type presenceSet struct {
	isrcs map[string]bool
	keys  map[string]bool
}

func newPresenceSet() *presenceSet {
	return &presenceSet{isrcs: make(map[string]bool), keys: make(map[string]bool)}
}

func (p *presenceSet) add(track catalog.TrackRef) {
	if track.ISRC != "" {
		p.isrcs[track.ISRC] = true
	}
	p.keys[track.Key()] = true
}

func (p *presenceSet) has(track catalog.TrackRef) bool {
	if track.ISRC != "" && p.isrcs[track.ISRC] {
		return true
	}
	return p.keys[track.Key()]
}

// sendProgress delivers an update without blocking; slow consumers drop
// updates rather than stalling the transfer.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
