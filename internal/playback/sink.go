package playback

import (
	"errors"
	"fmt"
)

// ErrNotAllowed is returned by MediaSink.Play when playback may only start
// after an explicit user action.
var ErrNotAllowed = errors.New("playback not allowed without user gesture")

// MediaErrorCode mirrors the media element error codes.
type MediaErrorCode int

const (
	MediaErrAborted         MediaErrorCode = 1
	MediaErrNetwork         MediaErrorCode = 2
	MediaErrDecode          MediaErrorCode = 3
	MediaErrSrcNotSupported MediaErrorCode = 4
)

func (c MediaErrorCode) String() string {
	switch c {
	case MediaErrAborted:
		return "MEDIA_ERR_ABORTED"
	case MediaErrNetwork:
		return "MEDIA_ERR_NETWORK"
	case MediaErrDecode:
		return "MEDIA_ERR_DECODE"
	case MediaErrSrcNotSupported:
		return "MEDIA_ERR_SRC_NOT_SUPPORTED"
	default:
		return fmt.Sprintf("MEDIA_ERR(%d)", int(c))
	}
}

// MediaError is a playback failure reported by a sink.
type MediaError struct {
	Code MediaErrorCode
	Err  error
}

func (e *MediaError) Error() string {
	if e.Err == nil {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *MediaError) Unwrap() error { return e.Err }

// SinkEventKind enumerates the native media events a sink reports.
type SinkEventKind int

const (
	SinkPlay SinkEventKind = iota
	SinkPause
	SinkWaiting
	SinkCanPlay
	SinkPlaying
	SinkError
	SinkLoadStart
)

func (k SinkEventKind) String() string {
	switch k {
	case SinkPlay:
		return "play"
	case SinkPause:
		return "pause"
	case SinkWaiting:
		return "waiting"
	case SinkCanPlay:
		return "canplay"
	case SinkPlaying:
		return "playing"
	case SinkError:
		return "error"
	case SinkLoadStart:
		return "loadstart"
	default:
		return "unknown"
	}
}

// SinkEvent is a media event. Err is set for SinkError.
type SinkEvent struct {
	Kind SinkEventKind
	Err  *MediaError
}

// MediaSink is the playable output. The controller borrows it and never
// closes it.
type MediaSink interface {
	// Play starts or resumes playback. done is called exactly once, from any
	// goroutine, with nil, ErrNotAllowed or another error.
	Play(done func(error))
	Pause()
	Paused() bool
	Volume() float64
	SetVolume(v float64)
	// SetSource assigns a URL the sink fetches itself. An empty string clears
	// the current source, including any attached stream.
	SetSource(url string)
	// Subscribe registers fn for media events until cancel is called.
	Subscribe(fn func(SinkEvent)) (cancel func())
}
