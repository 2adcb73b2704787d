package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/desertthunder/amx/internal/catalog"
	"github.com/desertthunder/amx/internal/shared"
)

// FailureReason explains why a track did not make it to the destination.
type FailureReason int

const (
	ReasonNone FailureReason = iota
	// NoIsrcCandidate: the track carried an ISRC but neither the ISRC nor the
	// title/artist fallback resolved.
	NoIsrcCandidate
	// NoTitleArtistCandidate: the track had no ISRC and the title/artist
	// search found nothing.
	NoTitleArtistCandidate
	// CatalogUnavailable: the destination catalog could not be queried,
	// including rate limits that survived the retry budget.
	CatalogUnavailable
	// WriteRejected: the track resolved but the destination refused the write.
	WriteRejected
)

func (r FailureReason) String() string {
	switch r {
	case NoIsrcCandidate:
		return "no ISRC match"
	case NoTitleArtistCandidate:
		return "no title/artist match"
	case CatalogUnavailable:
		return "catalog unavailable"
	case WriteRejected:
		return "rejected by destination"
	default:
		return ""
	}
}

// MatchResult is the outcome of resolving one source track against the
// destination catalog. A track either resolves to exactly one destination
// identifier or it does not; there is no partial match.
type MatchResult struct {
	DestID string
	Reason FailureReason // set only when DestID is empty
}

// Matched reports whether resolution produced a destination identifier.
func (m MatchResult) Matched() bool {
	return m.DestID != ""
}

// MatchCache is an optional cross-run cache of resolved track identities.
// Lookup misses on storage errors; Store failures are the caller's to ignore.
type MatchCache interface {
	Lookup(sourceProvider, sourceID, destProvider string) (destID string, ok bool)
	Store(sourceProvider, sourceID, destProvider, destID string) error
}

// Matcher resolves source tracks against a destination provider.
//
// Resolution is strict precedence with no scoring: an ISRC hit is
// authoritative and never second-guessed against title/artist; the
// title/artist fallback runs only when no ISRC hit exists. ISRC is stable
// across catalogs while titles drift with punctuation and localization, and
// ISRC coverage is incomplete, so both paths are needed.
type Matcher struct {
	cache    MatchCache
	attempts int
	backoff  time.Duration
	sleep    func(time.Duration)
}

// MatcherOpts configures a Matcher. Zero values fall back to defaults:
// 3 attempts, 500ms initial backoff.
type MatcherOpts struct {
	Cache    MatchCache
	Attempts int
	Backoff  time.Duration
}

// NewMatcher creates a Matcher with the given options.
func NewMatcher(opts MatcherOpts) *Matcher {
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}

	return &Matcher{
		cache:    opts.Cache,
		attempts: opts.Attempts,
		backoff:  opts.Backoff,
		sleep:    time.Sleep,
	}
}

// Resolve maps a source track to a destination track identifier.
//
// Transport and catalog errors surface as CatalogUnavailable, never as a
// failed run; rate limits are retried with bounded exponential backoff first.
func (m *Matcher) Resolve(ctx context.Context, dest catalog.Provider, track catalog.TrackRef) MatchResult {
	if m.cache != nil && track.ID != "" {
		if destID, ok := m.cache.Lookup(track.Provider, track.ID, dest.Name()); ok {
			return MatchResult{DestID: destID}
		}
	}

	if track.ISRC != "" {
		destID, err := m.find(ctx, func() (string, error) {
			return dest.FindByISRC(ctx, track.ISRC)
		})
		if err != nil {
			return MatchResult{Reason: CatalogUnavailable}
		}
		if destID != "" {
			m.remember(dest, track, destID)
			return MatchResult{DestID: destID}
		}
	}

	destID, err := m.find(ctx, func() (string, error) {
		return dest.FindByTitleArtist(ctx, track.Title, track.Artist)
	})
	if err != nil {
		return MatchResult{Reason: CatalogUnavailable}
	}
	if destID != "" {
		m.remember(dest, track, destID)
		return MatchResult{DestID: destID}
	}

	if track.ISRC != "" {
		return MatchResult{Reason: NoIsrcCandidate}
	}
	return MatchResult{Reason: NoTitleArtistCandidate}
}

// remember stores a resolved identity; cache failures never disrupt a run.
func (m *Matcher) remember(dest catalog.Provider, track catalog.TrackRef, destID string) {
	if m.cache == nil || track.ID == "" {
		return
	}
	_ = m.cache.Store(track.Provider, track.ID, dest.Name(), destID)
}

// find runs a lookup with the matcher's retry budget for rate limits.
func (m *Matcher) find(ctx context.Context, lookup func() (string, error)) (string, error) {
	var destID string
	err := m.retry(ctx, func() error {
		var lerr error
		destID, lerr = lookup()
		return lerr
	})
	return destID, err
}

// retry runs op, backing off and retrying only on [shared.ErrRateLimited].
// The backoff doubles per attempt; other errors return immediately.
func (m *Matcher) retry(ctx context.Context, op func() error) error {
	delay := m.backoff

	var err error
	for attempt := 0; attempt < m.attempts; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}

		err = op()
		if err == nil || !errors.Is(err, shared.ErrRateLimited) {
			return err
		}

		if attempt < m.attempts-1 {
			m.sleep(delay)
			delay *= 2
		}
	}
	return err
}
