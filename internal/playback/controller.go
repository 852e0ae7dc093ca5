// Package playback implements the stream playback controller: it owns the
// stream session, reacts to engine, sink and network events, recovers from
// failures with bounded backoff and reports UI status transitions.
package playback

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// Preference keys written by the controller.
const (
	PrefMuted  = "radioMuted"
	PrefVolume = "radioVolume"
)

var (
	ErrNoSink       = errors.New("playback: media sink is required")
	ErrNoDispatcher = errors.New("playback: dispatcher is required")
)

// Preferences is the subset of the preference store the controller uses.
type Preferences interface {
	Bool(key string, def bool) bool
	Float(key string, def float64) float64
	SetBool(key string, v bool)
	SetFloat(key string, v float64)
}

// Options configures a Controller. Sink and Dispatcher are required.
type Options struct {
	Sink         MediaSink
	Engines      EngineFactory
	Capabilities CapabilityProbe
	Dispatcher   Dispatcher
	Clock        Clock
	Prefs        Preferences
	Observer     Observer
	Logger       hclog.Logger
	Policy       Policy
	StreamURL    string
}

type session struct {
	id          uuid.UUID
	streamURL   string
	strategy    sessionStrategy
	engine      Engine
	unsubscribe func()
	// failed is set once a reconnect has been scheduled for this session.
	failed bool
}

// Controller is the playback state machine. All mutable fields are only
// touched from callbacks run by the dispatcher; the exported methods post
// work to it and return immediately.
type Controller struct {
	sink     MediaSink
	engines  EngineFactory
	caps     CapabilityProbe
	dispatch Dispatcher
	clock    Clock
	prefs    Preferences
	observer Observer
	log      hclog.Logger
	policy   Policy

	streamURL string
	session   *session
	state     State
	status    Status
	buffering bool
	stopping  bool
	stopTimer Timer
	retry     retryState
	muted     bool
	volume    float64

	mu   sync.RWMutex
	snap Snapshot
}

// New creates a controller in the Idle state and applies the stored volume
// to the sink.
func New(opts Options) (*Controller, error) {
	if opts.Sink == nil {
		return nil, ErrNoSink
	}
	if opts.Dispatcher == nil {
		return nil, ErrNoDispatcher
	}
	c := &Controller{
		sink:      opts.Sink,
		engines:   opts.Engines,
		caps:      opts.Capabilities,
		dispatch:  opts.Dispatcher,
		clock:     opts.Clock,
		prefs:     opts.Prefs,
		observer:  opts.Observer,
		log:       opts.Logger,
		policy:    opts.Policy.withDefaults(),
		streamURL: opts.StreamURL,
		state:     StateIdle,
		status:    StatusOffline,
		volume:    1,
	}
	if c.clock == nil {
		c.clock = SystemClock{}
	}
	if c.observer == nil {
		c.observer = ObserverFuncs{}
	}
	if c.log == nil {
		c.log = hclog.NewNullLogger()
	}
	if c.caps == nil {
		c.caps = StaticCapabilities(Capabilities{EngineSupported: c.engines != nil})
	}

	if c.prefs != nil {
		c.muted = c.prefs.Bool(PrefMuted, false)
		vol := c.prefs.Float(PrefVolume, 1)
		if validVolume(vol) {
			c.volume = vol
		} else {
			c.log.Warn("ignoring stored volume", "volume", vol)
		}
	}
	c.applyVolume()
	c.log.Debug("loaded settings", "muted", c.muted, "volume", c.volume)
	c.publish()
	return c, nil
}

// Snapshot returns the current observable state. Safe for concurrent use.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Toggle starts playback when idle and stops it otherwise.
func (c *Controller) Toggle() { c.do(c.toggle) }

// Start begins playback if nothing is running.
func (c *Controller) Start() {
	c.do(func() {
		if c.session == nil && !c.stopping {
			c.startPlayback()
		}
	})
}

// Stop tears down playback. Safe to call in any state, any number of times.
func (c *Controller) Stop() { c.do(c.stopPlayback) }

// SetStream switches to url, restarting playback if it was active.
func (c *Controller) SetStream(url string) { c.do(func() { c.setStream(url) }) }

// NetworkOnline reports that connectivity came back.
func (c *Controller) NetworkOnline() { c.do(c.networkOnline) }

// NetworkOffline reports that connectivity was lost.
func (c *Controller) NetworkOffline() { c.do(c.networkOffline) }

func (c *Controller) do(fn func()) {
	c.dispatch.Post(func() {
		fn()
		c.publish()
	})
}

func (c *Controller) toggle() {
	if c.stopping {
		c.log.Warn("playback stop in progress, ignoring toggle request")
		return
	}
	if c.session == nil {
		c.startPlayback()
		return
	}
	c.stopPlayback()
}

func (c *Controller) startPlayback() {
	if c.session != nil {
		c.closeSession(c.session)
	}
	if c.streamURL == "" {
		c.log.Warn("no stream configured")
		c.notify(Notice{Kind: NoticeUnsupported, Message: "No stream configured"})
		return
	}

	strategy, err := selectStrategy(c.caps(), c.engines)
	if err != nil {
		c.log.Error("cannot start playback", "error", err)
		c.notify(Notice{Kind: NoticeUnsupported, Message: "This player cannot play HLS streams"})
		return
	}

	s := &session{
		id:        uuid.New(),
		streamURL: c.streamURL,
		strategy:  strategy,
	}
	c.session = s
	c.buffering = true
	c.setState(StateStarting)
	c.setStatus(StatusBuffering)

	s.unsubscribe = c.sink.Subscribe(func(ev SinkEvent) {
		c.do(func() { c.onSinkEvent(s, ev) })
	})
	playNow := strategy.open(c, s)
	c.log.Info("starting playback", "session", s.id, "url", s.streamURL, "method", strategy.name(),
		"attempt", c.retry.fatal)
	if playNow {
		c.play(s)
	}
}

func (c *Controller) play(s *session) {
	c.sink.Play(func(err error) {
		c.do(func() { c.onPlayResult(s, err) })
	})
}

func (c *Controller) onPlayResult(s *session, err error) {
	if s != c.session || s.failed {
		c.log.Debug("dropping play result for stale session", "session", s.id)
		return
	}
	switch {
	case err == nil:
		c.log.Info("playback started", "session", s.id)
		c.buffering = false
		c.retry.reset()
		c.setState(StatePlaying)
		c.setStatus(StatusPlaying)
	case errors.Is(err, ErrNotAllowed):
		c.log.Warn("user interaction required to start playback")
		c.retry.cancel()
		c.closeSession(s)
		c.retry.reset()
		c.setState(StateIdle)
		c.setStatus(StatusOffline)
		c.notify(Notice{Kind: NoticeGestureRequired, Message: "Press play to start"})
	default:
		c.log.Error("play error", "session", s.id, "error", err)
		c.fatal(s, "play rejected")
	}
}

func (c *Controller) onEngineEvent(s *session, ev EngineEvent) {
	if s != c.session || s.failed {
		c.log.Debug("dropping engine event for stale session", "session", s.id, "event", ev.String())
		return
	}
	switch {
	case ev.Kind == EngineManifestParsed:
		c.log.Info("manifest parsed", "session", s.id)
		c.play(s)
	case ev.Fatal:
		c.log.Error("stream error", "fatal", true, "type", ev.Type, "details", ev.Details, "error", ev.Err)
		if ev.Type == ErrorTypeNetwork {
			c.notify(Notice{Kind: NoticeNetworkLost, Message: "No connection. Check your internet connection."})
		}
		c.fatal(s, ev.Details)
	case ev.IsBufferStall():
		c.log.Warn("buffer stalled, recovering", "session", s.id)
		c.bufferStall(s)
	default:
		c.log.Warn("non-fatal stream error, continuing", "type", ev.Type, "details", ev.Details)
	}
}

func (c *Controller) onSinkEvent(s *session, ev SinkEvent) {
	if ev.Kind == SinkError && c.stopping {
		c.log.Debug("media error ignored: stopping playback")
		return
	}
	if s != c.session || s.failed {
		c.log.Debug("dropping media event for stale session", "session", s.id, "event", ev.Kind.String())
		return
	}
	switch ev.Kind {
	case SinkWaiting:
		c.buffering = true
		c.setState(StateBuffering)
		c.setStatus(StatusBuffering)
	case SinkLoadStart:
		c.buffering = true
		if c.state == StatePlaying {
			c.setState(StateBuffering)
		}
		c.setStatus(StatusBuffering)
	case SinkCanPlay, SinkPlaying:
		c.buffering = false
		if !c.sink.Paused() {
			c.retry.reset()
			c.setState(StatePlaying)
			c.setStatus(StatusPlaying)
		}
	case SinkPause:
		c.setStatus(DeriveStatus(true, true, c.buffering, c.stopping))
	case SinkError:
		c.onSinkError(s, ev.Err)
	default:
		c.log.Trace("media event", "event", ev.Kind.String())
	}
}

func (c *Controller) onSinkError(s *session, merr *MediaError) {
	if merr == nil {
		merr = &MediaError{}
	}
	c.log.Error("media error detected", "code", merr.Code.String(), "error", merr.Err)
	switch merr.Code {
	case MediaErrAborted:
		return
	case MediaErrNetwork:
		c.notify(Notice{Kind: NoticeMediaError, Message: "Network error. Check your connection."})
	case MediaErrDecode:
		c.notify(Notice{Kind: NoticeMediaError, Message: "Stream decoding error."})
	case MediaErrSrcNotSupported:
		c.notify(Notice{Kind: NoticeMediaError, Message: "Stream format is not supported."})
	}
	c.fatal(s, merr.Code.String())
}

func (c *Controller) bufferStall(s *session) {
	c.buffering = true
	c.setState(StateBuffering)
	c.setStatus(StatusBuffering)
	c.retry.nonFatal++
	if c.retry.nonFatal > c.policy.MaxNonFatalRetries {
		c.notify(Notice{Kind: NoticeMediaError, Message: "Buffer recovery limit reached, reconnecting."})
		c.fatal(s, "buffer stall limit")
		return
	}
	if s.engine != nil {
		s.engine.StartLoad()
	}
}

// fatal runs the reconnect policy for s.
func (c *Controller) fatal(s *session, reason string) {
	if c.session == nil || c.stopping || s != c.session {
		c.log.Debug("fatal error ignored: no active session", "reason", reason)
		return
	}
	if s.failed {
		c.log.Debug("fatal error ignored: reconnect already pending", "reason", reason)
		return
	}
	if c.retry.fatal >= c.policy.MaxFatalRetries {
		c.log.Warn("maximum reconnect attempts reached, giving up", "attempts", c.retry.fatal, "reason", reason)
		c.stopPlayback()
		c.notify(Notice{
			Kind:     NoticeGaveUp,
			Message:  "Could not connect to the stream. Check your internet connection.",
			Terminal: true,
		})
		return
	}

	c.retry.fatal++
	delay := c.policy.RetryDelay(c.retry.fatal)
	s.failed = true
	c.setState(StateReconnecting)
	c.setStatus(StatusReconnecting)
	c.retry.schedule(c.clock, delay, func() {
		c.do(func() { c.retryFired(s) })
	})
	c.log.Warn("scheduling reconnect", "reason", reason, "attempt", c.retry.fatal, "delay", delay)
}

func (c *Controller) retryFired(s *session) {
	if s != c.session {
		c.log.Debug("reconnect aborted: session gone", "session", s.id)
		return
	}
	c.retry.timer = nil
	c.log.Info("reconnecting", "attempt", c.retry.fatal)
	c.closeSession(s)
	c.startPlayback()
}

// closeSession releases everything the session holds on the sink and the
// engine. It does not touch retry counters.
func (c *Controller) closeSession(s *session) {
	s.strategy.close(c, s)
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	c.sink.Pause()
	c.sink.SetSource("")
	if c.session == s {
		c.session = nil
	}
	c.buffering = false
}

func (c *Controller) stopPlayback() {
	if c.session == nil && !c.retry.pending() && c.state == StateIdle {
		c.log.Debug("stop requested while idle")
		return
	}
	c.log.Info("stopping playback")
	c.stopping = true
	c.retry.cancel()
	if c.session != nil {
		c.closeSession(c.session)
	}
	c.buffering = false
	c.retry.reset()
	c.setState(StateIdle)
	c.setStatus(StatusOffline)

	if c.stopTimer != nil {
		c.stopTimer.Stop()
	}
	c.stopTimer = c.clock.AfterFunc(c.policy.StopGrace, func() {
		c.do(c.endStopGrace)
	})
}

func (c *Controller) endStopGrace() {
	c.stopping = false
	c.stopTimer = nil
}

func (c *Controller) setStream(url string) {
	if url == c.streamURL {
		return
	}
	active := c.session != nil
	if active {
		c.retry.cancel()
		c.closeSession(c.session)
		c.retry.reset()
		c.setState(StateIdle)
	}
	c.log.Info("stream changed", "url", url, "restart", active)
	c.streamURL = url
	if active {
		c.startPlayback()
	}
}

func (c *Controller) networkOnline() {
	c.log.Info("network online")
	c.setStatus(c.derivedStatus())
}

func (c *Controller) networkOffline() {
	c.log.Warn("network offline")
	c.setStatus(StatusOffline)
	if s := c.session; s != nil {
		c.notify(Notice{Kind: NoticeNetworkLost, Message: "Internet connection lost. Playback stopped."})
		c.fatal(s, "network offline")
	}
}

func (c *Controller) derivedStatus() Status {
	if c.retry.pending() {
		return StatusReconnecting
	}
	return DeriveStatus(c.session != nil, c.sink.Paused(), c.buffering, c.stopping)
}

func (c *Controller) setState(st State) {
	if st != c.state {
		c.log.Trace("state transition", "from", c.state.String(), "to", st.String())
		c.state = st
	}
}

func (c *Controller) setStatus(st Status) {
	if st == c.status {
		return
	}
	c.status = st
	c.observer.StatusChanged(st)
}

func (c *Controller) notify(n Notice) {
	c.log.Debug("notice", "kind", n.Kind, "message", n.Message, "terminal", n.Terminal)
	c.observer.Notify(n)
}

func (c *Controller) publish() {
	snap := Snapshot{
		State:           c.state,
		Status:          c.status,
		StreamURL:       c.streamURL,
		Active:          c.session != nil,
		Buffering:       c.buffering,
		Muted:           c.muted,
		Volume:          c.volume,
		FatalRetries:    c.retry.fatal,
		NonFatalRetries: c.retry.nonFatal,
		RetryPending:    c.retry.pending(),
	}
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
}
