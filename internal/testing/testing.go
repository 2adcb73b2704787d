// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/amx/internal/catalog"
	"github.com/desertthunder/amx/internal/shared"
)

// FakeProvider is an in-memory test double for [catalog.Provider].
//
// Read state is configured through the exported slice and map fields; every
// mutating call is appended to Calls so tests can assert on exactly what was
// written (or, for dry runs, that nothing was).
type FakeProvider struct {
	ProviderName string

	Liked          []catalog.TrackRef
	Playlists      []catalog.PlaylistRef
	PlaylistTracks map[string][]catalog.TrackRef
	SavedAlbums    []catalog.AlbumRef

	// lookup tables keyed the way providers search: ISRC verbatim,
	// title/artist and album through the shared normalization
	ByISRC        map[string]string
	ByTitleArtist map[string]string
	AlbumsByKey   map[string]string

	AlbumSave bool

	LikedErr          error // yielded after the configured liked tracks
	PlaylistsErr      error // yielded after the configured playlists
	PlaylistTracksErr error // yielded after each playlist's tracks
	FindErr           error // returned from every Find call

	WriteErr      error // returned from mutating calls
	WriteErrCount int   // if > 0, WriteErr is returned only this many times

	mu         sync.Mutex
	Calls      []string
	writeFails int
	created    int
}

var _ catalog.Provider = (*FakeProvider)(nil)

func (f *FakeProvider) Name() string {
	if f.ProviderName == "" {
		return "fake"
	}
	return f.ProviderName
}

func (f *FakeProvider) ListLiked(ctx context.Context) iter.Seq2[catalog.TrackRef, error] {
	return seqWithErr(f.Liked, f.LikedErr)
}

func (f *FakeProvider) ListPlaylists(ctx context.Context) iter.Seq2[catalog.PlaylistRef, error] {
	return seqWithErr(f.Playlists, f.PlaylistsErr)
}

func (f *FakeProvider) ListPlaylistTracks(ctx context.Context, playlistID string) iter.Seq2[catalog.TrackRef, error] {
	return seqWithErr(f.PlaylistTracks[playlistID], f.PlaylistTracksErr)
}

func (f *FakeProvider) ListSavedAlbums(ctx context.Context) iter.Seq2[catalog.AlbumRef, error] {
	return seqWithErr(f.SavedAlbums, nil)
}

func (f *FakeProvider) FindByISRC(ctx context.Context, isrc string) (string, error) {
	if f.FindErr != nil {
		return "", f.FindErr
	}
	return f.ByISRC[isrc], nil
}

func (f *FakeProvider) FindByTitleArtist(ctx context.Context, title, artist string) (string, error) {
	if f.FindErr != nil {
		return "", f.FindErr
	}
	return f.ByTitleArtist[shared.NormalizeTrackKey(title, artist)], nil
}

func (f *FakeProvider) FindAlbum(ctx context.Context, title, artist string) (string, error) {
	if f.FindErr != nil {
		return "", f.FindErr
	}
	return f.AlbumsByKey[shared.NormalizeAlbumKey(title, artist)], nil
}

func (f *FakeProvider) Like(ctx context.Context, trackID string) error {
	return f.record(fmt.Sprintf("Like(%s)", trackID))
}

func (f *FakeProvider) CreatePlaylist(ctx context.Context, name, description string) (string, error) {
	if err := f.record(fmt.Sprintf("CreatePlaylist(%s)", name)); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return fmt.Sprintf("fake-pl-%d", f.created), nil
}

func (f *FakeProvider) AddTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	return f.record(fmt.Sprintf("AddTracks(%s,%d)", playlistID, len(trackIDs)))
}

func (f *FakeProvider) SaveAlbum(ctx context.Context, albumID string) error {
	return f.record(fmt.Sprintf("SaveAlbum(%s)", albumID))
}

func (f *FakeProvider) SupportsAlbumSave() bool { return f.AlbumSave }

// MutatingCalls returns a copy of the recorded write calls.
func (f *FakeProvider) MutatingCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := make([]string, len(f.Calls))
	copy(calls, f.Calls)
	return calls
}

func (f *FakeProvider) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, call)

	if f.WriteErr == nil {
		return nil
	}
	if f.WriteErrCount > 0 {
		if f.writeFails >= f.WriteErrCount {
			return nil
		}
		f.writeFails++
	}
	return f.WriteErr
}

func seqWithErr[T any](items []T, trailing error) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for _, item := range items {
			if !yield(item, nil) {
				return
			}
		}
		if trailing != nil {
			var zero T
			yield(zero, trailing)
		}
	}
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
