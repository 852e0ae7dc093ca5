// Package audio provides the media sink: MP3 decoding into an oto player
// behind a jitter buffer, reporting media events the way a player element
// does.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/ebiten/v2/audio/mp3"
	"github.com/hashicorp/go-hclog"

	"hlsradio/internal/playback"
	"hlsradio/pkg/playlist"
)

const (
	sampleRate = 44100
	fadeSteps  = 20

	// DefaultFadeIn is the volume ramp applied when playback starts.
	DefaultFadeIn = 500 * time.Millisecond
)

var errNoSource = errors.New("no source assigned")

// OutputPlayer is the part of *oto.Player the sink drives.
type OutputPlayer interface {
	Play()
	Pause()
	IsPlaying() bool
	SetVolume(volume float64)
}

// Output creates players reading PCM from r.
type Output interface {
	NewPlayer(r io.Reader) OutputPlayer
}

// Decoder turns the compressed stream into 16-bit stereo PCM.
type Decoder func(r io.Reader) (io.Reader, error)

// DecodeMP3 decodes MP3 at the output sample rate.
func DecodeMP3(r io.Reader) (io.Reader, error) {
	return mp3.DecodeWithSampleRate(sampleRate, r)
}

type otoOutput struct {
	ctx *oto.Context
}

func (o otoOutput) NewPlayer(r io.Reader) OutputPlayer {
	return o.ctx.NewPlayer(r)
}

// NewOtoOutput opens the audio device. Only one may exist per process.
func NewOtoOutput() (Output, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready
	return otoOutput{ctx: ctx}, nil
}

// SinkOptions configures a Sink. Output is required.
type SinkOptions struct {
	Output    Output
	Decoder   Decoder
	Client    *http.Client
	UserAgent string
	Buffer    BufferOptions
	Logger    hclog.Logger
	// FadeIn ramps the volume up when playback starts. Zero disables it.
	FadeIn time.Duration
}

// Sink implements playback.MediaSink and hls.StreamSink. Each source
// assignment bumps a generation; work and events belonging to an older
// generation are discarded.
type Sink struct {
	out       Output
	decode    Decoder
	client    *http.Client
	userAgent string
	bufOpts   BufferOptions
	log       hclog.Logger
	fadeIn    time.Duration

	mu      sync.Mutex
	gen     uint64
	source  string
	stream  io.ReadCloser
	buffer  *Buffer
	player  OutputPlayer
	opening bool
	cancel  context.CancelFunc
	fading  chan struct{}
	paused  bool
	volume  float64
	subs    map[int]func(playback.SinkEvent)
	nextSub int
}

// NewSink creates a paused sink with no source.
func NewSink(opts SinkOptions) (*Sink, error) {
	if opts.Output == nil {
		return nil, errors.New("audio: output is required")
	}
	if opts.Decoder == nil {
		opts.Decoder = DecodeMP3
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	return &Sink{
		out:       opts.Output,
		decode:    opts.Decoder,
		client:    opts.Client,
		userAgent: opts.UserAgent,
		bufOpts:   opts.Buffer,
		log:       opts.Logger,
		fadeIn:    opts.FadeIn,
		paused:    true,
		volume:    1,
		subs:      map[int]func(playback.SinkEvent){},
	}, nil
}

// Subscribe registers fn for media events until cancel is called.
func (s *Sink) Subscribe(fn func(playback.SinkEvent)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// emitIf delivers ev to subscribers if gen is still current.
func (s *Sink) emitIf(gen uint64, ev playback.SinkEvent) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	subs := make([]func(playback.SinkEvent), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

// SetSource assigns a URL the sink fetches itself on Play. "" clears the
// source and any attached stream.
func (s *Sink) SetSource(url string) {
	s.mu.Lock()
	s.resetLocked()
	s.source = url
	gen := s.gen
	s.mu.Unlock()

	if url != "" {
		s.log.Debug("source assigned", "url", url)
		s.emitIf(gen, playback.SinkEvent{Kind: playback.SinkLoadStart})
	}
}

// AttachStream replaces the source with a stream pushed by the engine.
func (s *Sink) AttachStream(rc io.ReadCloser) {
	s.mu.Lock()
	s.resetLocked()
	s.stream = rc
	s.mu.Unlock()
	s.log.Debug("stream attached")
}

// resetLocked tears down the current source and starts a new generation.
func (s *Sink) resetLocked() {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.stopFadeLocked()
	if s.player != nil {
		s.player.Pause()
		s.player = nil
	}
	if s.buffer != nil {
		_ = s.buffer.Close()
		s.buffer = nil
	}
	if s.stream != nil {
		_ = s.stream.Close()
		s.stream = nil
	}
	s.source = ""
	s.opening = false
}

// Play starts or resumes playback. done runs once from another goroutine or
// synchronously when the player already exists.
func (s *Sink) Play(done func(error)) {
	s.mu.Lock()
	if s.player != nil {
		wasPaused := s.paused
		s.paused = false
		s.player.Play()
		gen := s.gen
		s.mu.Unlock()
		if wasPaused {
			s.emitIf(gen, playback.SinkEvent{Kind: playback.SinkPlay})
			s.emitIf(gen, playback.SinkEvent{Kind: playback.SinkPlaying})
		}
		done(nil)
		return
	}
	if s.source == "" && s.stream == nil {
		s.mu.Unlock()
		done(&playback.MediaError{Code: playback.MediaErrSrcNotSupported, Err: errNoSource})
		return
	}
	s.paused = false
	if s.opening {
		s.mu.Unlock()
		done(nil)
		return
	}
	s.opening = true
	gen := s.gen
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	src, stream := s.source, s.stream
	s.stream = nil
	s.mu.Unlock()

	s.emitIf(gen, playback.SinkEvent{Kind: playback.SinkPlay})
	go s.open(ctx, gen, src, stream, done)
}

func (s *Sink) open(ctx context.Context, gen uint64, url string, stream io.ReadCloser, done func(error)) {
	if stream == nil {
		body, err := s.fetch(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				done(&playback.MediaError{Code: playback.MediaErrAborted, Err: ctx.Err()})
				return
			}
			merr := &playback.MediaError{Code: playback.MediaErrNetwork, Err: err}
			s.log.Error("failed to open stream", "url", url, "error", err)
			s.emitIf(gen, playback.SinkEvent{Kind: playback.SinkError, Err: merr})
			done(merr)
			return
		}
		stream = body
	}

	buf := NewBuffer(stream, s.bufOpts, func(st BufferState, err error) {
		s.onBufferState(gen, st, err)
	})
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		_ = buf.Close()
		done(&playback.MediaError{Code: playback.MediaErrAborted, Err: errors.New("source replaced")})
		return
	}
	s.buffer = buf
	s.mu.Unlock()
	buf.Start()

	pcm, err := s.decode(buf)
	if err != nil {
		s.mu.Lock()
		stale := gen != s.gen
		if !stale {
			s.opening = false
		}
		s.mu.Unlock()
		if stale {
			done(&playback.MediaError{Code: playback.MediaErrAborted, Err: err})
			return
		}
		merr := &playback.MediaError{Code: playback.MediaErrDecode, Err: fmt.Errorf("failed to decode stream: %w", err)}
		s.log.Error("decode failed", "error", err)
		s.emitIf(gen, playback.SinkEvent{Kind: playback.SinkError, Err: merr})
		done(merr)
		return
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		done(&playback.MediaError{Code: playback.MediaErrAborted, Err: errors.New("source replaced")})
		return
	}
	s.opening = false
	s.player = s.out.NewPlayer(pcm)
	start := s.volume
	if s.fadeIn > 0 {
		start = 0
	}
	s.player.SetVolume(start)
	if !s.paused {
		s.player.Play()
	}
	if s.fadeIn > 0 {
		s.fading = make(chan struct{})
		go s.fade(s.player, s.fading)
	}
	s.mu.Unlock()

	s.log.Info("playback started")
	done(nil)
}

func (s *Sink) fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	if playlist.IsPlaylist(url) {
		resolved, err := playlist.Resolve(ctx, s.client, url, s.userAgent)
		if err != nil {
			return nil, err
		}
		s.log.Debug("resolved station playlist", "playlist", url, "stream", resolved)
		url = resolved
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (s *Sink) onBufferState(gen uint64, st BufferState, err error) {
	s.log.Trace("buffer state", "state", st.String())
	switch st {
	case BufferBuffering, BufferUnderrun:
		s.emitIf(gen, playback.SinkEvent{Kind: playback.SinkWaiting})
	case BufferHealthy:
		s.emitIf(gen, playback.SinkEvent{Kind: playback.SinkCanPlay})
		s.mu.Lock()
		paused := s.paused
		s.mu.Unlock()
		if !paused {
			s.emitIf(gen, playback.SinkEvent{Kind: playback.SinkPlaying})
		}
	case BufferError:
		s.log.Warn("stream error", "error", err)
		s.emitIf(gen, playback.SinkEvent{
			Kind: playback.SinkError,
			Err:  &playback.MediaError{Code: playback.MediaErrNetwork, Err: err},
		})
	}
}

// fade ramps p from silence to the current volume unless stop closes.
func (s *Sink) fade(p OutputPlayer, stop chan struct{}) {
	step := s.fadeIn / fadeSteps
	for i := 1; i <= fadeSteps; i++ {
		select {
		case <-stop:
			return
		case <-time.After(step):
			s.mu.Lock()
			if s.player == p {
				p.SetVolume(s.volume * float64(i) / fadeSteps)
			}
			s.mu.Unlock()
		}
	}
	s.mu.Lock()
	if s.fading == stop {
		s.fading = nil
	}
	s.mu.Unlock()
}

func (s *Sink) stopFadeLocked() {
	if s.fading != nil {
		close(s.fading)
		s.fading = nil
	}
}

func (s *Sink) Pause() {
	s.mu.Lock()
	if s.paused {
		s.mu.Unlock()
		return
	}
	s.paused = true
	s.stopFadeLocked()
	if s.player != nil {
		s.player.Pause()
		s.player.SetVolume(s.volume)
	}
	gen := s.gen
	s.mu.Unlock()

	s.emitIf(gen, playback.SinkEvent{Kind: playback.SinkPause})
}

func (s *Sink) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *Sink) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *Sink) SetVolume(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = v
	if s.player != nil && s.fading == nil {
		s.player.SetVolume(v)
	}
}

// Close releases the current source.
func (s *Sink) Close() {
	s.mu.Lock()
	s.resetLocked()
	s.paused = true
	s.mu.Unlock()
}

// Stats reports the buffer of the current source.
func (s *Sink) Stats() (BufferStats, bool) {
	s.mu.Lock()
	b := s.buffer
	s.mu.Unlock()
	if b == nil {
		return BufferStats{}, false
	}
	return b.Stats(), true
}
