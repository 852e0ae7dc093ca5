package playback

import (
	"sort"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

// queue is a Dispatcher the test drains by hand.
type queue struct {
	fns []func()
}

func (q *queue) Post(fn func()) { q.fns = append(q.fns, fn) }

func (q *queue) drain() {
	for len(q.fns) > 0 {
		fn := q.fns[0]
		q.fns = q.fns[1:]
		fn()
	}
}

type fakeTimer struct {
	at      time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeClock fires timers only when advanced.
type fakeClock struct {
	now    time.Duration
	timers []*fakeTimer
	q      *queue
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	t := &fakeTimer{at: c.now + d, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	target := c.now + d
	for {
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && t.at <= target {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			break
		}
		sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
		t := due[0]
		c.now = t.at
		t.fired = true
		t.fn()
		c.q.drain()
	}
	c.now = target
}

type fakeSink struct {
	paused     bool
	volume     float64
	source     string
	playErr    error
	playCalls  int
	pauseCalls int
	sources    []string
	nextID     int
	subs       map[int]func(SinkEvent)
}

func newFakeSink() *fakeSink {
	return &fakeSink{paused: true, volume: 1, subs: map[int]func(SinkEvent){}}
}

func (s *fakeSink) Play(done func(error)) {
	s.playCalls++
	if s.playErr == nil {
		s.paused = false
	}
	done(s.playErr)
}

func (s *fakeSink) Pause() {
	s.pauseCalls++
	s.paused = true
}

func (s *fakeSink) Paused() bool        { return s.paused }
func (s *fakeSink) Volume() float64     { return s.volume }
func (s *fakeSink) SetVolume(v float64) { s.volume = v }

func (s *fakeSink) SetSource(url string) {
	s.source = url
	s.sources = append(s.sources, url)
}

func (s *fakeSink) Subscribe(fn func(SinkEvent)) func() {
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() { delete(s.subs, id) }
}

func (s *fakeSink) emit(ev SinkEvent) {
	for _, fn := range s.subs {
		fn(ev)
	}
}

type fakeEngine struct {
	onEvent    func(EngineEvent)
	url        string
	sink       MediaSink
	startLoads int
	destroyed  int
}

func (e *fakeEngine) Load(url string)       { e.url = url }
func (e *fakeEngine) Attach(sink MediaSink) { e.sink = sink }
func (e *fakeEngine) StartLoad()            { e.startLoads++ }
func (e *fakeEngine) Destroy()              { e.destroyed++ }

type recorder struct {
	statuses []Status
	notices  []Notice
}

func (r *recorder) StatusChanged(s Status) { r.statuses = append(r.statuses, s) }
func (r *recorder) Notify(n Notice)        { r.notices = append(r.notices, n) }

func (r *recorder) noticeKinds() []NoticeKind {
	kinds := make([]NoticeKind, 0, len(r.notices))
	for _, n := range r.notices {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

type memPrefs struct {
	bools  map[string]bool
	floats map[string]float64
}

func newMemPrefs() *memPrefs {
	return &memPrefs{bools: map[string]bool{}, floats: map[string]float64{}}
}

func (p *memPrefs) Bool(key string, def bool) bool {
	if v, ok := p.bools[key]; ok {
		return v
	}
	return def
}

func (p *memPrefs) Float(key string, def float64) float64 {
	if v, ok := p.floats[key]; ok {
		return v
	}
	return def
}

func (p *memPrefs) SetBool(key string, v bool)     { p.bools[key] = v }
func (p *memPrefs) SetFloat(key string, v float64) { p.floats[key] = v }

const testStream = "https://radio.example.com/live/playlist.m3u8"

type harness struct {
	q       *queue
	clock   *fakeClock
	sink    *fakeSink
	engines []*fakeEngine
	obs     *recorder
	prefs   *memPrefs
	c       *Controller
}

func newHarness(t *testing.T, mods ...func(*Options)) *harness {
	t.Helper()
	q := &queue{}
	h := &harness{
		q:     q,
		clock: &fakeClock{q: q},
		sink:  newFakeSink(),
		obs:   &recorder{},
		prefs: newMemPrefs(),
	}
	opts := Options{
		Sink: h.sink,
		Engines: func(onEvent func(EngineEvent)) Engine {
			e := &fakeEngine{onEvent: onEvent}
			h.engines = append(h.engines, e)
			return e
		},
		Dispatcher: q,
		Clock:      h.clock,
		Prefs:      h.prefs,
		Observer:   h.obs,
		Logger:     hclog.NewNullLogger(),
		StreamURL:  testStream,
	}
	for _, mod := range mods {
		mod(&opts)
	}
	c, err := New(opts)
	require.NoError(t, err)
	h.c = c
	return h
}

func (h *harness) run() { h.q.drain() }

func (h *harness) engine() *fakeEngine {
	if len(h.engines) == 0 {
		return nil
	}
	return h.engines[len(h.engines)-1]
}

func (h *harness) engineEvent(ev EngineEvent) {
	h.engine().onEvent(ev)
	h.run()
}

func (h *harness) sinkEvent(ev SinkEvent) {
	h.sink.emit(ev)
	h.run()
}

// startPlaying toggles from idle and completes the manifest handshake.
func (h *harness) startPlaying() {
	h.c.Toggle()
	h.run()
	h.engineEvent(EngineEvent{Kind: EngineManifestParsed})
}

var (
	fatalNetwork = EngineEvent{Kind: EngineError, Fatal: true, Type: ErrorTypeNetwork, Details: DetailManifestLoad}
	bufferStall  = EngineEvent{Kind: EngineError, Type: ErrorTypeMedia, Details: DetailBufferStalled}
)
