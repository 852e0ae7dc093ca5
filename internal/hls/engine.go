// Package hls implements the stream engine: it follows a live HLS playlist
// and feeds the audio segments to a media sink as one continuous MP3
// stream. Packed audio segments are passed through; MPEG-TS segments are
// demuxed first.
package hls

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"
	"github.com/hashicorp/go-hclog"

	"hlsradio/internal/playback"
)

var (
	ErrNotStreamSink = errors.New("sink cannot accept an attached stream")
	errDestroyed     = errors.New("engine destroyed")
)

// StreamSink is a media sink that can play a stream pushed by the engine.
type StreamSink interface {
	AttachStream(rc io.ReadCloser)
}

// LoadPolicy bounds one kind of request.
type LoadPolicy struct {
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
}

// Config controls loading. Zero fields take the defaults.
type Config struct {
	Manifest LoadPolicy
	Level    LoadPolicy
	Fragment LoadPolicy
	// LiveSyncSegments is how many segments behind the live edge playback
	// starts.
	LiveSyncSegments int
	// StallTimeout is how long the playlist may go without new segments
	// before a buffer stall is reported.
	StallTimeout time.Duration
	// ReloadInterval overrides the playlist refresh period, which otherwise
	// follows the last segment's duration.
	ReloadInterval time.Duration
	UserAgent      string
}

// DefaultConfig returns the stock loading policy.
func DefaultConfig() Config {
	return Config{
		Manifest:         LoadPolicy{Timeout: 15 * time.Second, Retries: 2, RetryDelay: 500 * time.Millisecond},
		Level:            LoadPolicy{Timeout: 10 * time.Second, Retries: 2, RetryDelay: 500 * time.Millisecond},
		Fragment:         LoadPolicy{Timeout: 8 * time.Second, Retries: 3, RetryDelay: time.Second},
		LiveSyncSegments: 1,
		StallTimeout:     20 * time.Second,
		UserAgent:        "hlsradio",
	}
}

func (p LoadPolicy) orDefault(d LoadPolicy) LoadPolicy {
	if p.Timeout <= 0 {
		p.Timeout = d.Timeout
	}
	if p.Retries < 0 {
		p.Retries = 0
	}
	if p.RetryDelay <= 0 {
		p.RetryDelay = d.RetryDelay
	}
	return p
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	c.Manifest = c.Manifest.orDefault(d.Manifest)
	c.Level = c.Level.orDefault(d.Level)
	c.Fragment = c.Fragment.orDefault(d.Fragment)
	if c.LiveSyncSegments <= 0 {
		c.LiveSyncSegments = d.LiveSyncSegments
	}
	if c.StallTimeout <= 0 {
		c.StallTimeout = d.StallTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	return c
}

// Engine follows one stream for one playback session.
type Engine struct {
	cfg     Config
	client  *http.Client
	log     hclog.Logger
	onEvent func(playback.EngineEvent)

	// emitMu serialises event delivery against Destroy.
	emitMu    sync.Mutex
	destroyed bool

	mu      sync.Mutex
	url     string
	sink    playback.MediaSink
	started bool
	cancel  context.CancelFunc
	pw      *io.PipeWriter
	resume  chan struct{}
	done    chan struct{}
}

// NewFactory returns a playback.EngineFactory creating engines that share
// cfg and client.
func NewFactory(cfg Config, client *http.Client, log hclog.Logger) playback.EngineFactory {
	return func(onEvent func(playback.EngineEvent)) playback.Engine {
		return New(cfg, client, log, onEvent)
	}
}

// New creates an idle engine. Loading starts once both Load and Attach have
// been called.
func New(cfg Config, client *http.Client, log hclog.Logger, onEvent func(playback.EngineEvent)) *Engine {
	if client == nil {
		client = &http.Client{}
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if onEvent == nil {
		onEvent = func(playback.EngineEvent) {}
	}
	return &Engine{
		cfg:     cfg.withDefaults(),
		client:  client,
		log:     log,
		onEvent: onEvent,
		resume:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (e *Engine) Load(rawURL string) {
	e.mu.Lock()
	e.url = rawURL
	e.mu.Unlock()
	e.maybeStart()
}

func (e *Engine) Attach(sink playback.MediaSink) {
	e.mu.Lock()
	e.sink = sink
	e.mu.Unlock()
	e.maybeStart()
}

// StartLoad resumes loading after a reported stall.
func (e *Engine) StartLoad() {
	if e.maybeStart() {
		return
	}
	select {
	case e.resume <- struct{}{}:
	default:
	}
}

// Destroy stops loading and closes the attached stream. No events are
// delivered once it returns.
func (e *Engine) Destroy() {
	e.emitMu.Lock()
	already := e.destroyed
	e.destroyed = true
	e.emitMu.Unlock()
	if already {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
	if e.pw != nil {
		_ = e.pw.CloseWithError(errDestroyed)
	}
	if !e.started {
		close(e.done)
		e.started = true
	}
}

// maybeStart launches the loader once. It reports whether this call did so.
func (e *Engine) maybeStart() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.url == "" || e.sink == nil {
		return false
	}
	e.emitMu.Lock()
	destroyed := e.destroyed
	e.emitMu.Unlock()
	if destroyed {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.started = true
	go e.run(ctx, e.url, e.sink)
	return true
}

func (e *Engine) emit(ev playback.EngineEvent) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	if e.destroyed {
		return
	}
	e.onEvent(ev)
}

func (e *Engine) fail(details string, typ playback.ErrorType, err error) {
	e.log.Error("stream error", "details", details, "error", err)
	e.emit(playback.EngineEvent{
		Kind:    playback.EngineError,
		Fatal:   true,
		Type:    typ,
		Details: details,
		Err:     err,
	})
}

func (e *Engine) run(ctx context.Context, manifestURL string, sink playback.MediaSink) {
	defer close(e.done)

	target, err := e.resolveLevel(ctx, manifestURL)
	if err != nil {
		return
	}

	ss, ok := sink.(StreamSink)
	if !ok {
		e.fail(playback.DetailMediaAttach, playback.ErrorTypeMedia, ErrNotStreamSink)
		return
	}
	pr, pw := io.Pipe()
	e.mu.Lock()
	if ctx.Err() != nil {
		e.mu.Unlock()
		return
	}
	e.pw = pw
	e.mu.Unlock()

	// the stream closes before the demuxer is waited for
	out := newSegmentOutput(e, pw)
	defer out.close()
	defer func() { _ = pw.Close() }()

	ss.AttachStream(pr)
	e.emit(playback.EngineEvent{Kind: playback.EngineManifestParsed})

	e.follow(ctx, target, out)
}

// level is the media playlist currently followed.
type level struct {
	url      string
	playlist *playlist.Media
}

// resolveLevel loads the manifest and, for a multivariant playlist, the
// first variant's media playlist. Errors are reported before returning.
func (e *Engine) resolveLevel(ctx context.Context, manifestURL string) (*level, error) {
	body, err := e.fetch(ctx, manifestURL, e.cfg.Manifest)
	if err != nil {
		if ctx.Err() == nil {
			e.fail(playback.DetailManifestLoad, playback.ErrorTypeNetwork, err)
		}
		return nil, err
	}
	pl, err := playlist.Unmarshal(body)
	if err != nil {
		e.fail(playback.DetailManifestParsing, playback.ErrorTypeNetwork, fmt.Errorf("failed to parse manifest: %w", err))
		return nil, err
	}

	switch pl := pl.(type) {
	case *playlist.Media:
		return &level{url: manifestURL, playlist: pl}, nil
	case *playlist.Multivariant:
		if len(pl.Variants) == 0 {
			err := errors.New("manifest has no variants")
			e.fail(playback.DetailManifestParsing, playback.ErrorTypeNetwork, err)
			return nil, err
		}
		levelURL, err := resolve(manifestURL, pl.Variants[0].URI)
		if err != nil {
			e.fail(playback.DetailManifestParsing, playback.ErrorTypeNetwork, err)
			return nil, err
		}
		e.log.Debug("selected variant", "url", levelURL, "bandwidth", pl.Variants[0].Bandwidth)
		media, err := e.loadLevel(ctx, levelURL)
		if err != nil {
			return nil, err
		}
		return &level{url: levelURL, playlist: media}, nil
	default:
		err := fmt.Errorf("unsupported playlist type %T", pl)
		e.fail(playback.DetailManifestParsing, playback.ErrorTypeNetwork, err)
		return nil, err
	}
}

func (e *Engine) loadLevel(ctx context.Context, levelURL string) (*playlist.Media, error) {
	body, err := e.fetch(ctx, levelURL, e.cfg.Level)
	if err != nil {
		if ctx.Err() == nil {
			e.fail(playback.DetailLevelLoad, playback.ErrorTypeNetwork, err)
		}
		return nil, err
	}
	pl, err := playlist.Unmarshal(body)
	if err != nil {
		e.fail(playback.DetailLevelLoad, playback.ErrorTypeNetwork, fmt.Errorf("failed to parse level: %w", err))
		return nil, err
	}
	media, ok := pl.(*playlist.Media)
	if !ok {
		err := errors.New("level is not a media playlist")
		e.fail(playback.DetailLevelLoad, playback.ErrorTypeNetwork, err)
		return nil, err
	}
	return media, nil
}

// follow writes new segments to out until ctx ends or a fatal error occurs.
func (e *Engine) follow(ctx context.Context, lvl *level, out *segmentOutput) {
	media := lvl.playlist
	next := media.MediaSequence + len(media.Segments) - e.cfg.LiveSyncSegments
	if next < media.MediaSequence {
		next = media.MediaSequence
	}
	lastProgress := time.Now()

	for {
		for i, seg := range media.Segments {
			seq := media.MediaSequence + i
			if seq < next {
				continue
			}
			if err := e.writeSegment(ctx, lvl.url, seg, out); err != nil {
				if ctx.Err() == nil && !errors.Is(err, errDemuxStopped) {
					e.fail(playback.DetailFragLoad, playback.ErrorTypeNetwork, err)
				}
				return
			}
			next = seq + 1
			lastProgress = time.Now()
		}

		if media.Endlist {
			e.fail(playback.DetailEndOfStream, playback.ErrorTypeOther, io.EOF)
			return
		}

		if time.Since(lastProgress) >= e.cfg.StallTimeout {
			e.log.Warn("no new segments, buffer stalled", "since", time.Since(lastProgress))
			e.emit(playback.EngineEvent{
				Kind:    playback.EngineError,
				Type:    playback.ErrorTypeMedia,
				Details: playback.DetailBufferStalled,
			})
			select {
			case <-ctx.Done():
				return
			case <-e.resume:
				e.log.Debug("loading resumed")
				lastProgress = time.Now()
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(e.reloadInterval(media)):
		}

		reloaded, err := e.loadLevel(ctx, lvl.url)
		if err != nil {
			return
		}
		if reloaded.MediaSequence+len(reloaded.Segments) < next {
			e.log.Warn("media sequence went backwards, resyncing", "next", next, "sequence", reloaded.MediaSequence)
			next = reloaded.MediaSequence
		}
		media = reloaded
	}
}

func (e *Engine) reloadInterval(media *playlist.Media) time.Duration {
	if e.cfg.ReloadInterval > 0 {
		return e.cfg.ReloadInterval
	}
	if n := len(media.Segments); n > 0 && media.Segments[n-1].Duration > 0 {
		return media.Segments[n-1].Duration
	}
	return time.Second
}

func (e *Engine) writeSegment(ctx context.Context, base string, seg *playlist.MediaSegment, out *segmentOutput) error {
	segURL, err := resolve(base, seg.URI)
	if err != nil {
		return err
	}
	data, err := e.fetch(ctx, segURL, e.cfg.Fragment)
	if err != nil {
		return err
	}
	if err := out.write(data); err != nil {
		return fmt.Errorf("failed to write segment: %w", err)
	}
	e.log.Trace("segment appended", "url", segURL, "bytes", len(data))
	return nil
}

// fetch GETs rawURL, retrying per p.
func (e *Engine) fetch(ctx context.Context, rawURL string, p LoadPolicy) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= p.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.RetryDelay):
			}
			e.log.Debug("retrying request", "url", rawURL, "attempt", attempt, "error", lastErr)
		}
		body, err := e.get(ctx, rawURL, p.Timeout)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, lastErr
}

func (e *Engine) get(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d for %s", resp.StatusCode, rawURL)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rawURL, err)
	}
	return body, nil
}

func resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid playlist uri %q: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}
