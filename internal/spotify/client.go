// Package spotify provides the Spotify Web API implementation of the catalog
// client used for track search, queueing and playback control.
package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"mixcue/internal/core"
)

// FilePermission is the permission for token files.
const FilePermission = 0600

type Client struct {
	config *core.SpotifyConfig
	logger *zap.Logger
	client *spotify.Client
	auth   *spotifyauth.Authenticator
}

type TokenData struct {
	Token *oauth2.Token `json:"token"`
}

func NewClient(config *core.SpotifyConfig, logger *zap.Logger) *Client {
	auth := spotifyauth.New(
		spotifyauth.WithRedirectURL(config.RedirectURL),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserModifyPlaybackState,
			spotifyauth.ScopeUserReadCurrentlyPlaying,
			spotifyauth.ScopeUserReadPlaybackState,
		),
		spotifyauth.WithClientID(config.ClientID),
		spotifyauth.WithClientSecret(config.ClientSecret),
	)

	return &Client{
		config: config,
		logger: logger,
		auth:   auth,
	}
}

func (c *Client) Authenticate(ctx context.Context) error {
	token, err := c.loadToken()
	if err != nil {
		c.logger.Info("No saved token found, starting OAuth flow")
		return c.startOAuthFlow(ctx)
	}

	client := spotify.New(c.auth.Client(ctx, token))
	c.client = client

	user, err := client.CurrentUser(ctx)
	if err != nil {
		c.logger.Warn("Saved token invalid, starting OAuth flow", zap.Error(err))
		return c.startOAuthFlow(ctx)
	}

	c.logger.Info("Authenticated successfully", zap.String("user", user.DisplayName))
	return nil
}

func (c *Client) Search(ctx context.Context, query string, limit int) ([]core.Track, error) {
	if c.client == nil {
		return nil, fmt.Errorf("client not authenticated")
	}

	opts := []spotify.RequestOption{spotify.Limit(limit)}
	if c.config.Market != "" {
		opts = append(opts, spotify.Market(c.config.Market))
	}

	results, err := c.client.Search(ctx, query, spotify.SearchTypeTrack, opts...)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	if results.Tracks == nil {
		return nil, nil
	}

	tracks := make([]core.Track, 0, len(results.Tracks.Tracks))
	for i := range results.Tracks.Tracks {
		tracks = append(tracks, convertTrack(&results.Tracks.Tracks[i]))
	}

	c.logger.Debug("search completed",
		zap.String("query", query),
		zap.Int("results", len(tracks)))

	return tracks, nil
}

func (c *Client) AddToQueue(ctx context.Context, uri string) error {
	if c.client == nil {
		return fmt.Errorf("client not authenticated")
	}

	trackID := trackIDFromURI(uri)
	if trackID == "" {
		return fmt.Errorf("invalid track URI: %s", uri)
	}

	if err := c.client.QueueSong(ctx, spotify.ID(trackID)); err != nil {
		return fmt.Errorf("failed to add track to queue: %w", err)
	}

	c.logger.Info("Track added to queue", zap.String("trackID", trackID))
	return nil
}

func (c *Client) ListDevices(ctx context.Context) ([]core.Device, error) {
	if c.client == nil {
		return nil, fmt.Errorf("client not authenticated")
	}

	devices, err := c.client.PlayerDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get player devices: %w", err)
	}

	out := make([]core.Device, 0, len(devices))
	for _, device := range devices {
		out = append(out, core.Device{
			ID:     device.ID.String(),
			Name:   device.Name,
			Active: device.Active,
		})
	}
	return out, nil
}

// EnsureActiveDevice returns the active playback device, transferring
// playback to the first available device when none is active. Returns nil
// when the account has no devices at all; queueing is impossible then.
func (c *Client) EnsureActiveDevice(ctx context.Context, seedURI string) (*core.Device, error) {
	devices, err := c.ListDevices(ctx)
	if err != nil {
		return nil, err
	}

	for i := range devices {
		if devices[i].Active {
			return &devices[i], nil
		}
	}

	if len(devices) == 0 {
		c.logger.Warn("no playback devices available")
		return nil, nil
	}

	target := devices[0]
	if err := c.client.TransferPlayback(ctx, spotify.ID(target.ID), false); err != nil {
		return nil, fmt.Errorf("failed to transfer playback: %w", err)
	}

	c.logger.Info("Transferred playback",
		zap.String("device", target.Name),
		zap.String("deviceID", target.ID))

	return &target, nil
}

func (c *Client) StartPlayback(ctx context.Context, uri string) error {
	if c.client == nil {
		return fmt.Errorf("client not authenticated")
	}

	err := c.client.PlayOpt(ctx, &spotify.PlayOptions{
		URIs: []spotify.URI{spotify.URI(uri)},
	})
	if err != nil {
		return fmt.Errorf("failed to start playback: %w", err)
	}

	c.logger.Info("Playback started", zap.String("uri", uri))
	return nil
}

func (c *Client) startOAuthFlow(ctx context.Context) error {
	state := "mixcue-auth-state"
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

	client := spotify.New(c.auth.Client(ctx, token))
	c.client = client

	user, err := client.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current user: %w", err)
	}

	c.logger.Info("OAuth flow completed successfully", zap.String("user", user.DisplayName))
	return nil
}

func (c *Client) loadToken() (*oauth2.Token, error) {
	file, err := os.Open(c.config.TokenPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	var tokenData TokenData
	if err := json.Unmarshal(data, &tokenData); err != nil {
		return nil, err
	}

	return tokenData.Token, nil
}

func (c *Client) saveToken(token *oauth2.Token) error {
	tokenData := TokenData{Token: token}

	data, err := json.MarshalIndent(tokenData, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(c.config.TokenPath, data, FilePermission)
}

func convertTrack(track *spotify.FullTrack) core.Track {
	var artists []string
	for _, artist := range track.Artists {
		artists = append(artists, artist.Name)
	}

	var imageURL string
	if len(track.Album.Images) > 0 {
		imageURL = track.Album.Images[0].URL
	}

	return core.Track{
		ID:         string(track.ID),
		Name:       track.Name,
		Artists:    artists,
		Album:      track.Album.Name,
		URI:        string(track.URI),
		Popularity: int(track.Popularity),
		PreviewURL: track.PreviewURL,
		ImageURL:   imageURL,
	}
}

// trackIDFromURI accepts a spotify:track: URI, an open.spotify.com track URL
// or a bare 22-character ID.
func trackIDFromURI(uri string) string {
	if id, ok := strings.CutPrefix(uri, "spotify:track:"); ok {
		return id
	}
	if _, rest, ok := strings.Cut(uri, "open.spotify.com/track/"); ok {
		if i := strings.IndexAny(rest, "?#"); i != -1 {
			rest = rest[:i]
		}
		return rest
	}
	if !strings.ContainsAny(uri, ":/") {
		return uri
	}
	return ""
}
