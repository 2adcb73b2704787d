package catalog

import (
	"iter"

	"github.com/desertthunder/amx/internal/shared"
)

// DeriveAlbums groups a liked-track sequence into album refs keyed by
// (album title, normalized artist). Tracks without album metadata are
// excluded; any non-empty group counts as an album. Albums are yielded in
// first-appearance order, tracks within an album in enumeration order.
//
// Used by providers without a native saved-album concept to implement
// [Provider.ListSavedAlbums].
func DeriveAlbums(liked iter.Seq2[TrackRef, error]) iter.Seq2[AlbumRef, error] {
	return func(yield func(AlbumRef, error) bool) {
		groups := make(map[string]*AlbumRef)
		var order []string

		for track, err := range liked {
			if err != nil {
				yield(AlbumRef{}, err)
				return
			}
			if track.Album == "" {
				continue
			}

			key := shared.NormalizeAlbumKey(track.Album, track.Artist)
			group, ok := groups[key]
			if !ok {
				groups[key] = &AlbumRef{
					Title:  track.Album,
					Artist: track.Artist,
					Tracks: []TrackRef{track},
				}
				order = append(order, key)
				continue
			}
			group.Tracks = append(group.Tracks, track)
		}

		for _, key := range order {
			if !yield(*groups[key], nil) {
				return
			}
		}
	}
}
