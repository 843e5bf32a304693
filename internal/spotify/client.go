// Package spotify provides the catalog client: rate-limited, retry-disciplined
// search and playlist calls against the Spotify Web API.
package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"songlift/internal/core"
	"songlift/pkg/fuzzy"
)

const (
	// addTracksChunkSize is the API ceiling for one add-tracks request.
	addTracksChunkSize = 100
	// tokenFilePermission is the permission for the token cache file.
	tokenFilePermission = 0600
	// requestInterval paces steady-state outbound requests; the semaphore
	// alone only bounds concurrency, not rate.
	requestInterval = 100 * time.Millisecond

	trackURIPrefix = "spotify:track:"
)

// catalogAPI is the slice of the SDK client the wrapper uses. Narrowing it to
// an interface keeps playlist and search logic testable without the network.
type catalogAPI interface {
	Search(ctx context.Context, query string, t spotify.SearchType, opts ...spotify.RequestOption) (*spotify.SearchResult, error)
	CurrentUser(ctx context.Context) (*spotify.PrivateUser, error)
	CreatePlaylistForUser(ctx context.Context, userID, playlistName, description string, public bool, collaborative bool) (*spotify.FullPlaylist, error)
	AddTracksToPlaylist(ctx context.Context, playlistID spotify.ID, trackIDs ...spotify.ID) (string, error)
}

// Client is the shared catalog-client handle. One authenticated Client is
// shared across all workers; token refresh inside the oauth2 transport is
// serialized by its token source.
type Client struct {
	cfg    *core.SpotifyConfig
	search *core.SearchConfig
	logger *zap.Logger
	norm   *fuzzy.Normalizer
	auth   *spotifyauth.Authenticator

	// sem is the process-wide request-slot pool; a slot is held for the
	// whole logical call, retries included.
	sem     *semaphore.Weighted
	limiter *rate.Limiter

	mu     sync.Mutex
	api    catalogAPI
	userID string
}

type tokenData struct {
	Token *oauth2.Token `json:"token"`
}

func NewClient(cfg *core.SpotifyConfig, search *core.SearchConfig, concurrency int, norm *fuzzy.Normalizer, logger *zap.Logger) *Client {
	auth := spotifyauth.New(
		spotifyauth.WithRedirectURL(cfg.RedirectURL),
		spotifyauth.WithScopes(
			spotifyauth.ScopePlaylistModifyPublic,
			spotifyauth.ScopePlaylistModifyPrivate,
			spotifyauth.ScopePlaylistReadPrivate,
		),
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
	)

	return &Client{
		cfg:     cfg,
		search:  search,
		logger:  logger,
		norm:    norm,
		auth:    auth,
		sem:     semaphore.NewWeighted(int64(concurrency)),
		limiter: rate.NewLimiter(rate.Every(requestInterval), concurrency),
	}
}

// Authenticate loads the cached token or runs the authorization-code flow,
// then verifies the session against the user-profile endpoint.
func (c *Client) Authenticate(ctx context.Context) error {
	token, err := c.loadToken()
	if err != nil {
		c.logger.Info("No saved token found, starting OAuth flow")
		return c.startOAuthFlow(ctx)
	}

	c.setAPI(c.newSDKClient(ctx, c.auth.Client(ctx, token)))

	user, err := c.CurrentUser(ctx)
	if err != nil {
		c.logger.Warn("Saved token invalid, starting OAuth flow", zap.Error(err))
		return c.startOAuthFlow(ctx)
	}

	c.logger.Info("Authenticated successfully", zap.String("user", user))
	return nil
}

// AuthenticateClientCredentials sets up a search-only session using project
// credentials; playlist mutation is not possible on this session.
func (c *Client) AuthenticateClientCredentials(ctx context.Context) error {
	ccfg := clientcredentials.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}

	httpClient := ccfg.Client(ctx)
	c.setAPI(c.newSDKClient(ctx, httpClient))

	c.logger.Info("Client-credentials session established")
	return nil
}

// newSDKClient wraps the OAuth-aware HTTP client's transport with the retry
// transport and hands it to the SDK.
func (c *Client) newSDKClient(_ context.Context, httpClient *http.Client) *spotify.Client {
	httpClient.Transport = newRetryTransport(httpClient.Transport, c.search, c.logger.Named("retry"))
	return spotify.New(httpClient)
}

func (c *Client) setAPI(api catalogAPI) {
	c.mu.Lock()
	c.api = api
	c.userID = ""
	c.mu.Unlock()
}

func (c *Client) getAPI() (catalogAPI, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.api == nil {
		return nil, &APIError{Kind: KindAuth, Message: "client not authenticated"}
	}
	return c.api, nil
}

// withSlot runs one logical catalog call while holding a request slot, with
// the per-call wall-clock budget applied. The slot covers the call's retries,
// which happen inside the retry transport.
func (c *Client) withSlot(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return classify(op, err)
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return classify(op, err)
	}
	defer c.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, c.search.CallBudget)
	defer cancel()

	if err := fn(callCtx); err != nil {
		return classify(op, err)
	}
	return nil
}

// SearchSong issues one free-text track query for the parsed song and returns
// up to the configured number of candidates. Zero candidates is not an error;
// the matcher decides what an empty list means.
func (c *Client) SearchSong(ctx context.Context, song core.ParsedSong) ([]core.Candidate, error) {
	api, err := c.getAPI()
	if err != nil {
		return nil, err
	}

	query := c.buildQuery(song)

	var candidates []core.Candidate
	err = c.withSlot(ctx, "search", func(ctx context.Context) error {
		results, serr := api.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(c.search.Limit))
		if serr != nil {
			return serr
		}
		if results.Tracks == nil {
			return nil
		}
		for i := range results.Tracks.Tracks {
			if len(candidates) >= c.search.Limit {
				break
			}
			candidates = append(candidates, convertTrack(&results.Tracks.Tracks[i]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Catalog search completed",
		zap.String("query", query),
		zap.Int("candidates", len(candidates)))

	return candidates, nil
}

// buildQuery builds the free-text track query from the normalized title's main
// part (bracket groups removed) plus up to the first two artists.
func (c *Client) buildQuery(song core.ParsedSong) string {
	normTitle := c.norm.Normalize(song.Title)
	main, _ := fuzzy.SplitMainAndBrackets(normTitle)
	if main == "" {
		main = normTitle
	}

	var b strings.Builder
	fmt.Fprintf(&b, "track:%q", main)
	for i, artist := range song.Artists {
		if i >= 2 {
			break
		}
		fmt.Fprintf(&b, " artist:%q", c.norm.Normalize(artist))
	}
	return b.String()
}

// CurrentUser fetches and caches the authenticated user's ID.
func (c *Client) CurrentUser(ctx context.Context) (string, error) {
	c.mu.Lock()
	cached := c.userID
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	api, err := c.getAPI()
	if err != nil {
		return "", err
	}

	var id string
	err = c.withSlot(ctx, "current user", func(ctx context.Context) error {
		user, uerr := api.CurrentUser(ctx)
		if uerr != nil {
			return uerr
		}
		id = user.ID
		return nil
	})
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.userID = id
	c.mu.Unlock()
	return id, nil
}

// CreatePlaylist creates an empty playlist owned by the authenticated user.
func (c *Client) CreatePlaylist(ctx context.Context, name string, public bool, description string) (string, string, error) {
	userID, err := c.CurrentUser(ctx)
	if err != nil {
		return "", "", err
	}

	api, err := c.getAPI()
	if err != nil {
		return "", "", err
	}

	var id, url string
	err = c.withSlot(ctx, "create playlist", func(ctx context.Context) error {
		playlist, perr := api.CreatePlaylistForUser(ctx, userID, name, description, public, false)
		if perr != nil {
			return perr
		}
		id = string(playlist.ID)
		url = playlist.ExternalURLs["spotify"]
		return nil
	})
	if err != nil {
		return "", "", err
	}

	c.logger.Info("Playlist created",
		zap.String("playlistID", id),
		zap.String("name", name),
		zap.Bool("public", public))

	return id, url, nil
}

// AddTracks adds the URIs to the playlist in chunks of at most 100 per
// request, failing fast on the first bad batch. It returns the number of
// tracks added before any failure.
func (c *Client) AddTracks(ctx context.Context, playlistID string, uris []string) (int, error) {
	api, err := c.getAPI()
	if err != nil {
		return 0, err
	}

	added := 0
	for start := 0; start < len(uris); start += addTracksChunkSize {
		end := start + addTracksChunkSize
		if end > len(uris) {
			end = len(uris)
		}

		chunk := make([]spotify.ID, 0, end-start)
		for _, uri := range uris[start:end] {
			chunk = append(chunk, spotify.ID(TrackIDFromURI(uri)))
		}

		err = c.withSlot(ctx, "add tracks", func(ctx context.Context) error {
			_, aerr := api.AddTracksToPlaylist(ctx, spotify.ID(playlistID), chunk...)
			return aerr
		})
		if err != nil {
			return added, fmt.Errorf("adding batch starting at %d: %w", start, err)
		}
		added += len(chunk)
	}

	c.logger.Info("Tracks added to playlist",
		zap.String("playlistID", playlistID),
		zap.Int("count", added))

	return added, nil
}

// TrackIDFromURI extracts the bare track ID from a spotify:track: URI; bare
// IDs pass through unchanged.
func TrackIDFromURI(uri string) string {
	return strings.TrimPrefix(uri, trackURIPrefix)
}

func convertTrack(track *spotify.FullTrack) core.Candidate {
	artists := make([]string, 0, len(track.Artists))
	for _, artist := range track.Artists {
		artists = append(artists, artist.Name)
	}

	return core.Candidate{
		ID:         string(track.ID),
		Name:       track.Name,
		Artists:    artists,
		URI:        string(track.URI),
		Album:      track.Album.Name,
		DurationMS: int(track.Duration),
	}
}

func (c *Client) startOAuthFlow(ctx context.Context) error {
	state := "songlift-auth-state"
	authURL := c.auth.AuthURL(state)

	fmt.Printf("Please visit the following URL to authorize the application:\n%s\n", authURL)
	fmt.Print("Enter the authorization code: ")

	var code string
	if _, err := fmt.Scanln(&code); err != nil {
		return fmt.Errorf("failed to read authorization code: %w", err)
	}

	token, err := c.auth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange code for token: %w", err)
	}

	if saveErr := c.saveToken(token); saveErr != nil {
		c.logger.Warn("Failed to save token", zap.Error(saveErr))
	}

	c.setAPI(c.newSDKClient(ctx, c.auth.Client(ctx, token)))

	user, err := c.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify session: %w", err)
	}

	c.logger.Info("OAuth flow completed successfully", zap.String("user", user))
	return nil
}

func (c *Client) loadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(c.cfg.TokenPath)
	if err != nil {
		return nil, err
	}

	var td tokenData
	if err := json.Unmarshal(data, &td); err != nil {
		return nil, err
	}
	if td.Token == nil {
		return nil, fmt.Errorf("token cache %s holds no token", c.cfg.TokenPath)
	}
	return td.Token, nil
}

func (c *Client) saveToken(token *oauth2.Token) error {
	data, err := json.MarshalIndent(tokenData{Token: token}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.cfg.TokenPath, data, tokenFilePermission)
}
