// Package catalog defines the [Provider] interface for streaming-music
// services and implements it for Spotify and Apple Music.
//
// # Provider Interface
//
// Both backends expose the same capability set: library enumeration (liked
// tracks, own playlists, saved albums), catalog search (by ISRC or by
// normalized title/artist), and library writes (like, create playlist, add
// tracks, save album). The transfer engine and matcher depend only on the
// interface, never on a backend's transport.
//
// # Lazy Enumeration
//
// Listing operations return [iter.Seq2] sequences that page through the
// provider's API on demand. Sequences are restartable (each call builds a
// fresh cursor) and finite; exhaustion is the natural end of iteration, not
// an error. Callers never hold an entire library in memory.
//
// # Spotify Implementation
//
// [SpotifyProvider] authenticates with OAuth2 ([golang.org/x/oauth2]); the
// client refreshes expired tokens automatically. Playlist ownership is
// checked against the authenticated user's profile. Catalog search is scoped
// to a configured market.
//
// # Apple Music Implementation
//
// [AppleMusicProvider] talks to the MusicKit REST API with a developer token
// (ES256 JWT minted via [github.com/golang-jwt/jwt/v5]) plus a user token.
// Catalog lookups are scoped to a configured storefront. Apple has no
// meaningful saved-album read for this tool's purposes, so saved albums are
// derived by grouping the loved-track library (see [DeriveAlbums]).
//
// # Error Handling
//
// Providers map transport failures to sentinel errors from the shared
// package: [shared.ErrRateLimited] for HTTP 429, [shared.ErrNotAuthenticated]
// for missing tokens, [shared.ErrAPIRequest] for other HTTP failures.
package catalog
