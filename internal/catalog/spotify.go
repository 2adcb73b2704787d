// Spotify API implementation of [Provider]
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/url"

	"github.com/desertthunder/amx/internal/shared"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	spotifyPageLimit = 50
	// Maximum track URIs per playlist-add request.
	spotifyAddBatch = 100
)

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Country     string `json:"country"`
}

type externalIDs struct {
	ISRC string `json:"isrc"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Artists []SpotifyArtist `json:"artists"`
	Tracks  struct {
		Items []SpotifyTrack `json:"items"`
	} `json:"tracks"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	Album       SpotifyAlbum    `json:"album"`
	DurationMS  int             `json:"duration_ms"`
	ExternalIDs externalIDs     `json:"external_ids"`
	URI         string          `json:"uri"`
}

type spotifyOwner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// SpotifySimplePlaylist represents a simplified playlist object (used in lists).
type SpotifySimplePlaylist struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Owner       spotifyOwner `json:"owner"`
	Public      bool         `json:"public"`
	Tracks      struct {
		Total int `json:"total"`
	} `json:"tracks"`
}

type spotifyPage[T any] struct {
	Items  []T     `json:"items"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
	Next   *string `json:"next"`
}

// SpotifySavedTrack represents a track saved in the user's library.
type SpotifySavedTrack struct {
	AddedAt string       `json:"added_at"`
	Track   SpotifyTrack `json:"track"`
}

// SpotifySavedAlbum represents an album saved in the user's library.
type SpotifySavedAlbum struct {
	AddedAt string       `json:"added_at"`
	Album   SpotifyAlbum `json:"album"`
}

type spotifySearchResponse struct {
	Tracks struct {
		Items []SpotifyTrack `json:"items"`
	} `json:"tracks"`
	Albums struct {
		Items []SpotifyAlbum `json:"items"`
	} `json:"albums"`
}

// SpotifyProvider implements the [Provider] interface for the Spotify API.
// Uses [oauth2] for authentication with automatic token refresh.
type SpotifyProvider struct {
	config     *oauth2.Config
	token      *oauth2.Token
	httpClient *http.Client
	baseURL    string
	market     string
	userID     string
}

// NewSpotifyProvider creates a Spotify provider from credentials and a
// catalog market code (e.g. "US"). The market is supplied by the caller,
// never hardcoded.
func NewSpotifyProvider(creds shared.SpotifyConfig, market string) (*SpotifyProvider, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_id and client_secret are required", shared.ErrMissingCredentials)
	}

	redirectURI := creds.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://localhost:8888/callback"
	}

	config := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"user-library-read",
			"user-library-modify",
			"playlist-read-private",
			"playlist-read-collaborative",
			"playlist-modify-public",
			"playlist-modify-private",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	return &SpotifyProvider{
		config:     config,
		httpClient: http.DefaultClient,
		baseURL:    spotifyBaseURL,
		market:     market,
	}, nil
}

func (s *SpotifyProvider) Name() string {
	return Spotify
}

// AuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyProvider) AuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token.
func (s *SpotifyProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: code exchange: %v", shared.ErrAuthFailed, err)
	}
	return token, nil
}

// Authenticate installs the token and an auto-refreshing HTTP client.
func (s *SpotifyProvider) Authenticate(ctx context.Context, token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: empty token", shared.ErrInvalidCredentials)
	}
	s.token = token
	s.httpClient = s.config.Client(ctx, token)
	return nil
}

// doRequest performs an authenticated HTTP request against the Spotify API.
// A non-nil body is JSON-encoded. HTTP 429 maps to [shared.ErrRateLimited].
func (s *SpotifyProvider) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	if s.token == nil {
		return fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}

	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.token.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: spotify API (retry-after %s)", shared.ErrRateLimited, resp.Header.Get("Retry-After"))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: spotify API status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// currentUserID fetches and caches the authenticated user's ID, used for
// playlist ownership checks and playlist creation.
func (s *SpotifyProvider) currentUserID(ctx context.Context) (string, error) {
	if s.userID != "" {
		return s.userID, nil
	}

	var user SpotifyUser
	if err := s.doRequest(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return "", err
	}

	s.userID = user.ID
	return s.userID, nil
}

func (s *SpotifyProvider) trackRef(t SpotifyTrack) TrackRef {
	ref := TrackRef{
		ID:       t.ID,
		Title:    t.Name,
		Album:    t.Album.Name,
		ISRC:     t.ExternalIDs.ISRC,
		Provider: Spotify,
	}
	if len(t.Artists) > 0 {
		ref.Artist = t.Artists[0].Name
	}
	return ref
}

// ListLiked enumerates the user's saved tracks via GET /me/tracks.
func (s *SpotifyProvider) ListLiked(ctx context.Context) iter.Seq2[TrackRef, error] {
	return paginate(func(offset int) ([]TrackRef, bool, error) {
		endpoint := fmt.Sprintf("/me/tracks?limit=%d&offset=%d", spotifyPageLimit, offset)

		var page spotifyPage[SpotifySavedTrack]
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, false, err
		}

		refs := make([]TrackRef, 0, len(page.Items))
		for _, item := range page.Items {
			refs = append(refs, s.trackRef(item.Track))
		}
		return refs, page.Next != nil, nil
	})
}

// ListPlaylists enumerates the user's playlists via GET /me/playlists,
// yielding only playlists owned by the authenticated user.
func (s *SpotifyProvider) ListPlaylists(ctx context.Context) iter.Seq2[PlaylistRef, error] {
	return paginate(func(offset int) ([]PlaylistRef, bool, error) {
		userID, err := s.currentUserID(ctx)
		if err != nil {
			return nil, false, err
		}

		endpoint := fmt.Sprintf("/me/playlists?limit=%d&offset=%d", spotifyPageLimit, offset)

		var page spotifyPage[SpotifySimplePlaylist]
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, false, err
		}

		refs := make([]PlaylistRef, 0, len(page.Items))
		for _, pl := range page.Items {
			if pl.Owner.ID != userID {
				continue
			}
			refs = append(refs, PlaylistRef{
				ID:          pl.ID,
				Name:        pl.Name,
				Description: pl.Description,
				OwnerIsSelf: true,
				TrackCount:  pl.Tracks.Total,
			})
		}
		return refs, page.Next != nil, nil
	})
}

// ListPlaylistTracks enumerates a playlist's tracks via GET /playlists/{id}/tracks.
func (s *SpotifyProvider) ListPlaylistTracks(ctx context.Context, playlistID string) iter.Seq2[TrackRef, error] {
	return paginate(func(offset int) ([]TrackRef, bool, error) {
		endpoint := fmt.Sprintf("/playlists/%s/tracks?limit=%d&offset=%d", playlistID, spotifyAddBatch, offset)

		var page spotifyPage[SpotifySavedTrack]
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, false, err
		}

		refs := make([]TrackRef, 0, len(page.Items))
		for _, item := range page.Items {
			// Local files and removed tracks come back with an empty ID
			if item.Track.ID == "" {
				continue
			}
			refs = append(refs, s.trackRef(item.Track))
		}
		return refs, page.Next != nil, nil
	})
}

// ListSavedAlbums enumerates the user's saved albums via GET /me/albums.
func (s *SpotifyProvider) ListSavedAlbums(ctx context.Context) iter.Seq2[AlbumRef, error] {
	return paginate(func(offset int) ([]AlbumRef, bool, error) {
		endpoint := fmt.Sprintf("/me/albums?limit=%d&offset=%d", spotifyPageLimit, offset)

		var page spotifyPage[SpotifySavedAlbum]
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, false, err
		}

		refs := make([]AlbumRef, 0, len(page.Items))
		for _, item := range page.Items {
			ref := AlbumRef{
				ID:    item.Album.ID,
				Title: item.Album.Name,
			}
			if len(item.Album.Artists) > 0 {
				ref.Artist = item.Album.Artists[0].Name
			}
			for _, t := range item.Album.Tracks.Items {
				tr := s.trackRef(t)
				if tr.Album == "" {
					tr.Album = item.Album.Name
				}
				if tr.Artist == "" {
					tr.Artist = ref.Artist
				}
				ref.Tracks = append(ref.Tracks, tr)
			}
			refs = append(refs, ref)
		}
		return refs, page.Next != nil, nil
	})
}

// search performs a catalog search scoped to the configured market.
func (s *SpotifyProvider) search(ctx context.Context, query, kind string) (*spotifySearchResponse, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("type", kind)
	params.Set("limit", "1")
	if s.market != "" {
		params.Set("market", s.market)
	}

	var resp spotifySearchResponse
	if err := s.doRequest(ctx, http.MethodGet, "/search?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FindByISRC looks up a track via the isrc: search filter.
func (s *SpotifyProvider) FindByISRC(ctx context.Context, isrc string) (string, error) {
	resp, err := s.search(ctx, "isrc:"+isrc, "track")
	if err != nil {
		return "", err
	}
	if len(resp.Tracks.Items) == 0 {
		return "", nil
	}
	return resp.Tracks.Items[0].ID, nil
}

// FindByTitleArtist searches with the track:/artist: field filters after
// normalizing both terms.
func (s *SpotifyProvider) FindByTitleArtist(ctx context.Context, title, artist string) (string, error) {
	query := fmt.Sprintf("track:%s artist:%s", shared.NormalizeTitle(title), shared.NormalizeArtist(artist))
	resp, err := s.search(ctx, query, "track")
	if err != nil {
		return "", err
	}
	if len(resp.Tracks.Items) == 0 {
		return "", nil
	}
	return resp.Tracks.Items[0].ID, nil
}

// FindAlbum searches for an album with the album:/artist: field filters.
func (s *SpotifyProvider) FindAlbum(ctx context.Context, title, artist string) (string, error) {
	query := fmt.Sprintf("album:%s artist:%s", title, artist)
	resp, err := s.search(ctx, query, "album")
	if err != nil {
		return "", err
	}
	if len(resp.Albums.Items) == 0 {
		return "", nil
	}
	return resp.Albums.Items[0].ID, nil
}

// Like saves a track via PUT /me/tracks.
func (s *SpotifyProvider) Like(ctx context.Context, trackID string) error {
	endpoint := "/me/tracks?ids=" + url.QueryEscape(trackID)
	return s.doRequest(ctx, http.MethodPut, endpoint, nil, nil)
}

// CreatePlaylist creates a private playlist via POST /users/{id}/playlists.
func (s *SpotifyProvider) CreatePlaylist(ctx context.Context, name, description string) (string, error) {
	userID, err := s.currentUserID(ctx)
	if err != nil {
		return "", err
	}

	body := map[string]any{
		"name":        name,
		"description": description,
		"public":      false,
	}

	var created struct {
		ID string `json:"id"`
	}

	endpoint := fmt.Sprintf("/users/%s/playlists", userID)
	if err := s.doRequest(ctx, http.MethodPost, endpoint, body, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// AddTracks appends tracks via POST /playlists/{id}/tracks in batches of 100.
func (s *SpotifyProvider) AddTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	endpoint := fmt.Sprintf("/playlists/%s/tracks", playlistID)

	for start := 0; start < len(trackIDs); start += spotifyAddBatch {
		end := min(start+spotifyAddBatch, len(trackIDs))

		uris := make([]string, 0, end-start)
		for _, id := range trackIDs[start:end] {
			uris = append(uris, "spotify:track:"+id)
		}

		body := map[string]any{"uris": uris}
		if err := s.doRequest(ctx, http.MethodPost, endpoint, body, nil); err != nil {
			return err
		}
	}
	return nil
}

// SaveAlbum saves an album via PUT /me/albums.
func (s *SpotifyProvider) SaveAlbum(ctx context.Context, albumID string) error {
	endpoint := "/me/albums?ids=" + url.QueryEscape(albumID)
	return s.doRequest(ctx, http.MethodPut, endpoint, nil, nil)
}

// SupportsAlbumSave reports that Spotify has a native saved-album write.
func (s *SpotifyProvider) SupportsAlbumSave() bool {
	return true
}

var _ Provider = (*SpotifyProvider)(nil)
