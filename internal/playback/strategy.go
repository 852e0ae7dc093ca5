package playback

import "errors"

var errNoStrategy = errors.New("no playback method available")

// Capabilities is the answer to the one capability query made at session
// start.
type Capabilities struct {
	// EngineSupported reports that the adaptive streaming engine can feed
	// the sink.
	EngineSupported bool
	// LegacyNative forces direct source playback, e.g. for runtimes that
	// only play the stream natively.
	LegacyNative bool
}

// CapabilityProbe is queried once per session start.
type CapabilityProbe func() Capabilities

// StaticCapabilities returns a probe that always answers caps.
func StaticCapabilities(caps Capabilities) CapabilityProbe {
	return func() Capabilities { return caps }
}

// sessionStrategy decides how a session is opened and closed. Event handling
// and retry behaviour do not depend on it.
type sessionStrategy interface {
	name() string
	// open prepares the sink and, for engine sessions, creates the engine.
	// It reports whether the sink should be played immediately instead of
	// waiting for the manifest.
	open(c *Controller, s *session) (playNow bool)
	close(c *Controller, s *session)
}

func selectStrategy(caps Capabilities, engines EngineFactory) (sessionStrategy, error) {
	switch {
	case caps.LegacyNative:
		return nativeStrategy{}, nil
	case caps.EngineSupported && engines != nil:
		return engineStrategy{factory: engines}, nil
	default:
		return nil, errNoStrategy
	}
}

type engineStrategy struct {
	factory EngineFactory
}

func (engineStrategy) name() string { return "engine" }

func (e engineStrategy) open(c *Controller, s *session) bool {
	s.engine = e.factory(func(ev EngineEvent) {
		c.do(func() { c.onEngineEvent(s, ev) })
	})
	s.engine.Load(s.streamURL)
	s.engine.Attach(c.sink)
	return false
}

func (engineStrategy) close(c *Controller, s *session) {
	if s.engine != nil {
		s.engine.Destroy()
		s.engine = nil
	}
}

type nativeStrategy struct{}

func (nativeStrategy) name() string { return "native" }

func (nativeStrategy) open(c *Controller, s *session) bool {
	c.sink.SetSource(s.streamURL)
	return true
}

func (nativeStrategy) close(c *Controller, s *session) {}
