package playback

// Status is the user-visible network/playback indicator.
type Status int

const (
	StatusOffline Status = iota
	StatusBuffering
	StatusReconnecting
	StatusPlaying
)

func (s Status) String() string {
	switch s {
	case StatusOffline:
		return "offline"
	case StatusBuffering:
		return "buffering"
	case StatusReconnecting:
		return "reconnecting"
	case StatusPlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// DeriveStatus computes the status shown when nothing more specific is known,
// e.g. after the network comes back or the mute flag changes.
func DeriveStatus(sessionExists, sinkPaused, buffering, stopping bool) Status {
	switch {
	case !sessionExists || stopping:
		return StatusOffline
	case buffering:
		return StatusBuffering
	case !sinkPaused:
		return StatusPlaying
	default:
		return StatusOffline
	}
}

// State is the controller's internal lifecycle state.
type State int

const (
	StateIdle State = iota
	StateStarting
	StatePlaying
	StateBuffering
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateStarting:
		return "Starting"
	case StatePlaying:
		return "Playing"
	case StateBuffering:
		return "Buffering"
	case StateReconnecting:
		return "Reconnecting"
	default:
		return "Unknown"
	}
}

// NoticeKind classifies a user-visible notification.
type NoticeKind int

const (
	NoticeInfo NoticeKind = iota
	NoticeNetworkLost
	NoticeMediaError
	NoticeGestureRequired
	NoticeUnsupported
	NoticeGaveUp
)

// Notice is a transient message for the user (a toast in the UI).
// Terminal is set when playback was stopped for good and the user has to
// start it again by hand.
type Notice struct {
	Kind     NoticeKind
	Message  string
	Terminal bool
}

// Observer receives status transitions and notices. Calls happen on the
// controller's dispatcher goroutine and must not block.
type Observer interface {
	StatusChanged(Status)
	Notify(Notice)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnStatus func(Status)
	OnNotice func(Notice)
}

func (o ObserverFuncs) StatusChanged(s Status) {
	if o.OnStatus != nil {
		o.OnStatus(s)
	}
}

func (o ObserverFuncs) Notify(n Notice) {
	if o.OnNotice != nil {
		o.OnNotice(n)
	}
}

// Snapshot is a copy of the controller's observable state.
type Snapshot struct {
	State           State
	Status          Status
	StreamURL       string
	Active          bool
	Buffering       bool
	Muted           bool
	Volume          float64
	FatalRetries    int
	NonFatalRetries int
	RetryPending    bool
}
