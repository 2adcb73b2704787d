// package catalog defines interface Provider for interacting with streaming
// music catalogs
//
// Spotify, Apple Music
package catalog

import (
	"context"
	"iter"

	"github.com/desertthunder/amx/internal/shared"
)

// Provider names as reported by [Provider.Name].
const (
	Spotify    = "Spotify"
	AppleMusic = "Apple Music"
)

// TrackRef identifies a track on one provider. Values are constructed from
// provider reads and never mutated. Identity for matching is the ISRC when
// present, else the normalized (title, artist) pair.
type TrackRef struct {
	ID       string // provider-specific identifier
	Title    string
	Artist   string
	Album    string // empty when the provider omits it
	ISRC     string // empty when the provider omits it
	Provider string
}

// Key returns the normalized title/artist identity key.
func (t TrackRef) Key() string {
	return shared.NormalizeTrackKey(t.Title, t.Artist)
}

// String renders the track for human-readable output.
func (t TrackRef) String() string {
	if t.Artist == "" {
		return t.Title
	}
	return t.Title + " by " + t.Artist
}

// PlaylistRef is a playlist on one provider. Tracks are fetched separately via
// [Provider.ListPlaylistTracks]. Only playlists with OwnerIsSelf are eligible
// for transfer; [Provider.ListPlaylists] filters before yielding.
type PlaylistRef struct {
	ID          string
	Name        string
	Description string
	OwnerIsSelf bool
	TrackCount  int
}

// AlbumRef is a saved album. ID is empty for derived albums (providers without
// a native saved-album concept group their liked tracks instead). Tracks is
// never empty.
type AlbumRef struct {
	ID     string
	Title  string
	Artist string
	Tracks []TrackRef
}

// Key returns the album identity key used for presence checks.
func (a AlbumRef) Key() string {
	return shared.NormalizeAlbumKey(a.Title, a.Artist)
}

// Provider is the capability set of one music service. Enumerations are
// restartable lazy sequences wrapping the provider's pagination; callers
// consume them incrementally and treat exhaustion as loop termination.
//
// Write operations do not deduplicate; the caller checks presence before
// writing. Rate limiting surfaces as [shared.ErrRateLimited].
type Provider interface {
	// Name returns the provider name (e.g. "Spotify", "Apple Music")
	Name() string

	// ListLiked enumerates the user's liked/loved tracks.
	ListLiked(ctx context.Context) iter.Seq2[TrackRef, error]

	// ListPlaylists enumerates the user's own playlists, filtering out
	// playlists the user does not own.
	ListPlaylists(ctx context.Context) iter.Seq2[PlaylistRef, error]

	// ListPlaylistTracks enumerates the tracks of one playlist in order.
	ListPlaylistTracks(ctx context.Context, playlistID string) iter.Seq2[TrackRef, error]

	// ListSavedAlbums enumerates saved albums. Providers lacking a native
	// saved-album concept derive albums by grouping liked tracks; callers
	// cannot tell the difference.
	ListSavedAlbums(ctx context.Context) iter.Seq2[AlbumRef, error]

	// FindByISRC looks up a catalog track by ISRC. Returns "" when the
	// catalog has no entry for it.
	FindByISRC(ctx context.Context, isrc string) (string, error)

	// FindByTitleArtist searches the catalog by normalized title and artist.
	// Normalization is fixed policy applied by the provider, not the caller.
	FindByTitleArtist(ctx context.Context, title, artist string) (string, error)

	// FindAlbum searches the catalog for an album by title and artist.
	FindAlbum(ctx context.Context, title, artist string) (string, error)

	// Like adds a catalog track to the user's liked collection.
	Like(ctx context.Context, trackID string) error

	// CreatePlaylist creates an empty playlist and returns its identifier.
	CreatePlaylist(ctx context.Context, name, description string) (string, error)

	// AddTracks appends catalog tracks to a playlist.
	AddTracks(ctx context.Context, playlistID string, trackIDs []string) error

	// SaveAlbum adds a catalog album to the user's saved albums.
	SaveAlbum(ctx context.Context, albumID string) error

	// SupportsAlbumSave reports whether the provider has a native saved-album
	// write; when false the caller falls back to per-track likes.
	SupportsAlbumSave() bool
}

// paginate adapts an offset-based page fetcher into a restartable lazy
// sequence. fetch returns one page starting at offset and whether more pages
// remain. A fetch error ends the sequence after being yielded once.
func paginate[T any](fetch func(offset int) ([]T, bool, error)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		offset := 0
		for {
			items, more, err := fetch(offset)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}
			if !more || len(items) == 0 {
				return
			}
			offset += len(items)
		}
	}
}
