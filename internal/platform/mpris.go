// Package platform exposes the player to the desktop over MPRIS so media
// keys and applets can control it.
package platform

import (
	"strings"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"

	"hlsradio/internal/playback"
)

// CmdSender matches tea.Program's Send.
type CmdSender interface {
	Send(msg tea.Msg)
}

// Messages sent to the program when a remote client calls the player.
type (
	PlayMsg      struct{}
	StopMsg      struct{}
	PlayPauseMsg struct{}
	NextMsg      struct{}
	PrevMsg      struct{}
	QuitMsg      struct{}

	// VolumeMsg carries a volume written by a remote client, clamped to
	// [0, 1].
	VolumeMsg struct{ Volume float64 }
)

// Track describes what is on air.
type Track struct {
	Station string
	Title   string
	URL     string
}

// PlaybackStatus maps a controller snapshot to the MPRIS PlaybackStatus
// value. A session that is buffering or reconnecting reports Paused.
func PlaybackStatus(snap playback.Snapshot) string {
	switch {
	case !snap.Active && !snap.RetryPending:
		return "Stopped"
	case snap.Status == playback.StatusPlaying:
		return "Playing"
	default:
		return "Paused"
	}
}

func clampVolume(v float64) float64 {
	switch {
	case v != v || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// SanitizeUTF8 removes invalid UTF8 characters from a string.
// D-Bus requires all strings to be valid UTF8.
func SanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if r != utf8.RuneError {
			b.WriteRune(r)
		}
	}
	return b.String()
}
