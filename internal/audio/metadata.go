package audio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// DefaultTitleInterval is how often the now-playing title is polled.
const DefaultTitleInterval = 10 * time.Second

var (
	ErrNoICY      = errors.New("stream does not support ICY metadata")
	ErrNoMetadata = errors.New("no metadata available")
	ErrNoTitle    = errors.New("no StreamTitle found in metadata")
)

// TitleWatcher polls the ICY metadata of an Icecast/Shoutcast stream and
// reports the StreamTitle when it changes.
type TitleWatcher struct {
	URL       string
	UserAgent string
	Interval  time.Duration
	Client    *http.Client
	Logger    hclog.Logger
}

// Run polls until ctx is cancelled. onTitle is called from Run's goroutine
// with each new title.
func (w *TitleWatcher) Run(ctx context.Context, onTitle func(string)) {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultTitleInterval
	}
	log := w.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := ""
	first := true
	for {
		title, err := w.Fetch(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			log.Debug("title unavailable", "url", w.URL, "error", err)
		case first || title != last:
			last, first = title, false
			onTitle(title)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Fetch opens the stream once and reads the first metadata block.
func (w *TitleWatcher) Fetch(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.URL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if w.UserAgent != "" {
		req.Header.Set("User-Agent", w.UserAgent)
	}
	req.Header.Set("Icy-MetaData", "1")

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch stream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	metaint := resp.Header.Get("icy-metaint")
	if metaint == "" {
		return "", ErrNoICY
	}
	block, err := readMetadataBlock(resp.Body, metaint)
	if err != nil {
		return "", err
	}
	return parseStreamTitle(block)
}

// readMetadataBlock skips one audio block of metaint bytes and returns the
// metadata block that follows it.
func readMetadataBlock(body io.Reader, metaint string) (string, error) {
	n, err := strconv.Atoi(metaint)
	if err != nil || n <= 0 {
		return "", fmt.Errorf("invalid icy-metaint value %q", metaint)
	}

	r := bufio.NewReader(body)
	if _, err := r.Discard(n); err != nil {
		return "", fmt.Errorf("failed to skip audio block: %w", err)
	}
	lenByte, err := r.ReadByte()
	if err != nil {
		return "", fmt.Errorf("failed to read metadata length: %w", err)
	}
	size := int(lenByte) * 16
	if size == 0 {
		return "", ErrNoMetadata
	}
	block := make([]byte, size)
	if _, err := io.ReadFull(r, block); err != nil {
		return "", fmt.Errorf("failed to read metadata block: %w", err)
	}
	return strings.TrimRight(string(block), "\x00"), nil
}

// parseStreamTitle extracts StreamTitle from "StreamTitle='...';StreamUrl='';".
func parseStreamTitle(meta string) (string, error) {
	for _, field := range strings.Split(meta, ";") {
		if v, ok := strings.CutPrefix(field, "StreamTitle='"); ok {
			return strings.TrimSpace(strings.TrimSuffix(v, "'")), nil
		}
	}
	return "", ErrNoTitle
}
