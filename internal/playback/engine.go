package playback

import "fmt"

// EngineEventKind enumerates stream engine lifecycle events.
type EngineEventKind int

const (
	EngineManifestParsed EngineEventKind = iota
	EngineError
)

// ErrorType is the coarse class of an engine error.
type ErrorType string

const (
	ErrorTypeNetwork ErrorType = "networkError"
	ErrorTypeMedia   ErrorType = "mediaError"
	ErrorTypeOther   ErrorType = "otherError"
)

// Engine error details the controller reacts to. Engines may report others.
const (
	DetailBufferStalled      = "bufferStalledError"
	DetailManifestLoad       = "manifestLoadError"
	DetailManifestParsing    = "manifestParsingError"
	DetailLevelLoad          = "levelLoadError"
	DetailFragLoad           = "fragLoadError"
	DetailFragParsing        = "fragParsingError"
	DetailIncompatibleCodecs = "manifestIncompatibleCodecsError"
	DetailBufferAppend       = "bufferAppendError"
	DetailMediaAttach        = "mediaAttachError"
	DetailEndOfStream        = "endOfStream"
)

// EngineEvent is delivered by an Engine to the handler it was created with.
type EngineEvent struct {
	Kind    EngineEventKind
	Fatal   bool
	Type    ErrorType
	Details string
	Err     error
}

func (e EngineEvent) String() string {
	if e.Kind == EngineManifestParsed {
		return "manifestParsed"
	}
	return fmt.Sprintf("error{fatal=%t type=%s details=%s}", e.Fatal, e.Type, e.Details)
}

// IsBufferStall reports whether e is the recoverable stall the controller
// answers with StartLoad.
func (e EngineEvent) IsBufferStall() bool {
	return e.Kind == EngineError && !e.Fatal && e.Type == ErrorTypeMedia && e.Details == DetailBufferStalled
}

// Engine wraps an adaptive streaming client for one session.
type Engine interface {
	// Load starts loading the manifest at url. Failures arrive as events.
	Load(url string)
	// Attach connects the engine's output to sink.
	Attach(sink MediaSink)
	// StartLoad resumes loading after a stall without resetting the session.
	StartLoad()
	// Destroy stops all work. It is synchronous, safe to call more than once,
	// and no events are delivered after it returns.
	Destroy()
}

// EngineFactory creates an Engine reporting to onEvent.
type EngineFactory func(onEvent func(EngineEvent)) Engine
