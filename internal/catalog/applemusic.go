// Apple Music API implementation of [Provider]
//
// Talks to the MusicKit REST API. Requests carry two tokens: a developer
// token (an ES256 JWT minted from the team's .p8 key) and a Music-User-Token
// obtained interactively. Catalog lookups are scoped to a storefront.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/desertthunder/amx/internal/shared"
	"github.com/golang-jwt/jwt/v5"
)

const (
	appleMusicBaseURL = "https://api.music.apple.com/v1"

	applePageLimit = 100
	// MusicKit developer tokens may live at most six months.
	appleTokenTTL = 15_777_000 * time.Second
)

// AppleSongAttributes holds the library/catalog song fields this tool reads.
type AppleSongAttributes struct {
	Name             string `json:"name"`
	ArtistName       string `json:"artistName"`
	AlbumName        string `json:"albumName"`
	ISRC             string `json:"isrc"`
	DurationInMillis int    `json:"durationInMillis"`
}

// AppleResource is the generic data-array element in MusicKit responses.
type AppleResource[A any] struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes A      `json:"attributes"`
}

type applePage[A any] struct {
	Data []AppleResource[A] `json:"data"`
	Next string             `json:"next"`
}

// ApplePlaylistAttributes holds library playlist fields.
type ApplePlaylistAttributes struct {
	Name        string `json:"name"`
	CanEdit     bool   `json:"canEdit"`
	Description struct {
		Standard string `json:"standard"`
	} `json:"description"`
}

type appleSearchResponse struct {
	Results struct {
		Songs struct {
			Data []AppleResource[AppleSongAttributes] `json:"data"`
		} `json:"songs"`
		Albums struct {
			Data []AppleResource[json.RawMessage] `json:"data"`
		} `json:"albums"`
	} `json:"results"`
}

// AppleMusicProvider implements the [Provider] interface for Apple Music.
//
// Saved albums are derived: the MusicKit library-albums endpoint reflects
// explicit album adds only, so [AppleMusicProvider.ListSavedAlbums] groups the
// loved-track library by album instead (see [DeriveAlbums]).
type AppleMusicProvider struct {
	creds      shared.AppleMusicConfig
	storefront string
	httpClient *http.Client
	baseURL    string

	devToken       string
	devTokenExpiry time.Time
	now            func() time.Time
}

// NewAppleMusicProvider creates an Apple Music provider for the given
// storefront (e.g. "us"). The storefront comes from configuration.
func NewAppleMusicProvider(creds shared.AppleMusicConfig, storefront string) (*AppleMusicProvider, error) {
	if creds.KeyPath == "" || creds.KeyID == "" || creds.TeamID == "" {
		return nil, fmt.Errorf("%w: apple key_path, key_id and team_id are required", shared.ErrMissingCredentials)
	}
	if storefront == "" {
		return nil, fmt.Errorf("%w: apple storefront is required", shared.ErrInvalidConfig)
	}

	return &AppleMusicProvider{
		creds:      creds,
		storefront: storefront,
		httpClient: http.DefaultClient,
		baseURL:    appleMusicBaseURL,
		now:        time.Now,
	}, nil
}

func (a *AppleMusicProvider) Name() string {
	return AppleMusic
}

// developerToken returns a valid developer token, minting a fresh ES256 JWT
// from the .p8 key when none is cached or the cached one nears expiry.
func (a *AppleMusicProvider) developerToken() (string, error) {
	if a.devToken != "" && a.now().Before(a.devTokenExpiry.Add(-time.Hour)) {
		return a.devToken, nil
	}

	keyData, err := os.ReadFile(a.creds.KeyPath)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read private key: %v", shared.ErrInvalidCredentials, err)
	}

	privateKey, err := jwt.ParseECPrivateKeyFromPEM(keyData)
	if err != nil {
		return "", fmt.Errorf("%w: failed to parse private key: %v", shared.ErrInvalidCredentials, err)
	}

	issued := a.now()
	expiry := issued.Add(appleTokenTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": a.creds.TeamID,
		"iat": issued.Unix(),
		"exp": expiry.Unix(),
	})
	token.Header["kid"] = a.creds.KeyID

	signed, err := token.SignedString(privateKey)
	if err != nil {
		return "", fmt.Errorf("%w: failed to sign developer token: %v", shared.ErrAuthFailed, err)
	}

	a.devToken = signed
	a.devTokenExpiry = expiry
	return signed, nil
}

// doRequest performs an authenticated MusicKit request. Library endpoints
// additionally require the user token. HTTP 429 maps to [shared.ErrRateLimited].
func (a *AppleMusicProvider) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	devToken, err := a.developerToken()
	if err != nil {
		return err
	}
	if a.creds.UserToken == "" {
		return fmt.Errorf("%w: missing apple user token, run `amx auth apple`", shared.ErrNotAuthenticated)
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

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+devToken)
	req.Header.Set("Music-User-Token", a.creds.UserToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: apple music API (retry-after %s)", shared.ErrRateLimited, resp.Header.Get("Retry-After"))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: apple music API status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

func (a *AppleMusicProvider) trackRef(r AppleResource[AppleSongAttributes]) TrackRef {
	return TrackRef{
		ID:       r.ID,
		Title:    r.Attributes.Name,
		Artist:   r.Attributes.ArtistName,
		Album:    r.Attributes.AlbumName,
		ISRC:     r.Attributes.ISRC,
		Provider: AppleMusic,
	}
}

// listLibrarySongs paginates any library endpoint returning song resources.
func (a *AppleMusicProvider) listLibrarySongs(ctx context.Context, path string) iter.Seq2[TrackRef, error] {
	return paginate(func(offset int) ([]TrackRef, bool, error) {
		endpoint := fmt.Sprintf("%s?limit=%d&offset=%d", path, applePageLimit, offset)

		var page applePage[AppleSongAttributes]
		if err := a.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, false, err
		}

		refs := make([]TrackRef, 0, len(page.Data))
		for _, item := range page.Data {
			refs = append(refs, a.trackRef(item))
		}
		return refs, len(page.Data) == applePageLimit, nil
	})
}

// ListLiked enumerates the loved-track library via GET /me/library/songs.
func (a *AppleMusicProvider) ListLiked(ctx context.Context) iter.Seq2[TrackRef, error] {
	return a.listLibrarySongs(ctx, "/me/library/songs")
}

// ListPlaylists enumerates library playlists, yielding only those the user
// can edit. MusicKit exposes editability rather than ownership; canEdit is
// provider metadata, not a guess.
func (a *AppleMusicProvider) ListPlaylists(ctx context.Context) iter.Seq2[PlaylistRef, error] {
	return paginate(func(offset int) ([]PlaylistRef, bool, error) {
		endpoint := fmt.Sprintf("/me/library/playlists?limit=%d&offset=%d", applePageLimit, offset)

		var page applePage[ApplePlaylistAttributes]
		if err := a.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, false, err
		}

		refs := make([]PlaylistRef, 0, len(page.Data))
		for _, item := range page.Data {
			if !item.Attributes.CanEdit {
				continue
			}
			refs = append(refs, PlaylistRef{
				ID:          item.ID,
				Name:        item.Attributes.Name,
				Description: item.Attributes.Description.Standard,
				OwnerIsSelf: true,
			})
		}
		return refs, len(page.Data) == applePageLimit, nil
	})
}

// ListPlaylistTracks enumerates one playlist's tracks in library order.
func (a *AppleMusicProvider) ListPlaylistTracks(ctx context.Context, playlistID string) iter.Seq2[TrackRef, error] {
	return a.listLibrarySongs(ctx, fmt.Sprintf("/me/library/playlists/%s/tracks", playlistID))
}

// ListSavedAlbums derives albums by grouping the loved-track library on
// (album title, artist). Tracks without album metadata never form an album.
func (a *AppleMusicProvider) ListSavedAlbums(ctx context.Context) iter.Seq2[AlbumRef, error] {
	return DeriveAlbums(a.ListLiked(ctx))
}

// FindByISRC looks up a catalog song via the filter[isrc] query.
func (a *AppleMusicProvider) FindByISRC(ctx context.Context, isrc string) (string, error) {
	endpoint := fmt.Sprintf("/catalog/%s/songs?filter[isrc]=%s", a.storefront, url.QueryEscape(isrc))

	var page applePage[AppleSongAttributes]
	if err := a.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
		return "", err
	}
	if len(page.Data) == 0 {
		return "", nil
	}
	return page.Data[0].ID, nil
}

func (a *AppleMusicProvider) searchCatalog(ctx context.Context, term, types string) (*appleSearchResponse, error) {
	params := url.Values{}
	params.Set("term", term)
	params.Set("types", types)
	params.Set("limit", "1")

	endpoint := fmt.Sprintf("/catalog/%s/search?%s", a.storefront, params.Encode())

	var resp appleSearchResponse
	if err := a.doRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FindByTitleArtist performs a catalog term search with normalized terms.
func (a *AppleMusicProvider) FindByTitleArtist(ctx context.Context, title, artist string) (string, error) {
	term := shared.NormalizeTitle(title) + " " + shared.NormalizeArtist(artist)
	resp, err := a.searchCatalog(ctx, term, "songs")
	if err != nil {
		return "", err
	}
	if len(resp.Results.Songs.Data) == 0 {
		return "", nil
	}
	return resp.Results.Songs.Data[0].ID, nil
}

// FindAlbum performs a catalog album term search.
func (a *AppleMusicProvider) FindAlbum(ctx context.Context, title, artist string) (string, error) {
	resp, err := a.searchCatalog(ctx, title+" "+artist, "albums")
	if err != nil {
		return "", err
	}
	if len(resp.Results.Albums.Data) == 0 {
		return "", nil
	}
	return resp.Results.Albums.Data[0].ID, nil
}

// Like adds a catalog song to the library via POST /me/library.
func (a *AppleMusicProvider) Like(ctx context.Context, trackID string) error {
	endpoint := "/me/library?ids[songs]=" + url.QueryEscape(trackID)
	return a.doRequest(ctx, http.MethodPost, endpoint, nil, nil)
}

// CreatePlaylist creates a library playlist via POST /me/library/playlists.
func (a *AppleMusicProvider) CreatePlaylist(ctx context.Context, name, description string) (string, error) {
	body := map[string]any{
		"attributes": map[string]string{
			"name":        name,
			"description": description,
		},
	}

	var created applePage[ApplePlaylistAttributes]
	if err := a.doRequest(ctx, http.MethodPost, "/me/library/playlists", body, &created); err != nil {
		return "", err
	}
	if len(created.Data) == 0 {
		return "", fmt.Errorf("%w: playlist creation returned no resource", shared.ErrAPIRequest)
	}
	return created.Data[0].ID, nil
}

// AddTracks appends catalog songs to a library playlist.
func (a *AppleMusicProvider) AddTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}

	data := make([]map[string]string, 0, len(trackIDs))
	for _, id := range trackIDs {
		data = append(data, map[string]string{"id": id, "type": "songs"})
	}

	endpoint := fmt.Sprintf("/me/library/playlists/%s/tracks", playlistID)
	return a.doRequest(ctx, http.MethodPost, endpoint, map[string]any{"data": data}, nil)
}

// SaveAlbum adds a catalog album to the library via POST /me/library.
func (a *AppleMusicProvider) SaveAlbum(ctx context.Context, albumID string) error {
	endpoint := "/me/library?ids[albums]=" + url.QueryEscape(albumID)
	return a.doRequest(ctx, http.MethodPost, endpoint, nil, nil)
}

// SupportsAlbumSave reports that Apple Music has a native album-add write.
func (a *AppleMusicProvider) SupportsAlbumSave() bool {
	return true
}

var _ Provider = (*AppleMusicProvider)(nil)
