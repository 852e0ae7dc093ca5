// Package playlist resolves .pls and .m3u station playlists to the stream
// URL they point at.
package playlist

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
)

const plsFilePrefix = "File1="

// ErrNoStream is returned when a playlist has no entry.
var ErrNoStream = errors.New("no stream URL found in playlist")

// IsPlaylist reports whether u names a .pls or .m3u file. HLS playlists
// (.m3u8) are streams, not station playlists.
func IsPlaylist(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	switch strings.ToLower(path.Ext(parsed.Path)) {
	case ".pls", ".m3u":
		return true
	default:
		return false
	}
}

// Resolve fetches the playlist at playlistURL and returns the first stream
// URL found within it.
func Resolve(ctx context.Context, client *http.Client, playlistURL, userAgent string) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, playlistURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get playlist from %s: %w", playlistURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code %d for playlist %s", resp.StatusCode, playlistURL)
	}
	return Parse(resp.Body)
}

// Parse returns the first entry of a .pls or plain .m3u playlist.
func Parse(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, plsFilePrefix):
			return strings.TrimPrefix(line, plsFilePrefix), nil
		case strings.HasPrefix(line, "http://"), strings.HasPrefix(line, "https://"):
			return line, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read playlist: %w", err)
	}
	return "", ErrNoStream
}
