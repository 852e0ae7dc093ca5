package ui

import (
	"fmt"
	"math"

	"github.com/charmbracelet/lipgloss"

	"hlsradio/internal/playback"
)

// StatusLabel returns the network status indicator text and its style.
func StatusLabel(s playback.Status) (string, lipgloss.Style) {
	switch s {
	case playback.StatusPlaying:
		return "● Live", StatusPlayingStyle
	case playback.StatusBuffering:
		return "◌ Buffering…", StatusBufferingStyle
	case playback.StatusReconnecting:
		return "↻ Reconnecting…", StatusReconnectingStyle
	default:
		return "○ Offline", StatusStoppedStyle
	}
}

// RenderStatus renders the network status indicator.
func RenderStatus(s playback.Status) string {
	text, style := StatusLabel(s)
	return style.Render(text)
}

// SoundLabel is the sound indicator: muted, or the volume in percent.
func SoundLabel(muted bool, volume float64) string {
	if muted {
		return "🔇 Muted"
	}
	return fmt.Sprintf("🔊 %d%%", int(math.Round(volume*100)))
}

// NoticeText returns the toast text for a notice. The controller's message
// wins when set.
func NoticeText(n playback.Notice) string {
	if n.Message != "" {
		return n.Message
	}
	switch n.Kind {
	case playback.NoticeNetworkLost:
		return "Connection lost"
	case playback.NoticeMediaError:
		return "Playback error"
	case playback.NoticeGestureRequired:
		return "Press enter to start playback"
	case playback.NoticeUnsupported:
		return "Playback is not supported"
	case playback.NoticeGaveUp:
		return "Could not connect. Try again later"
	default:
		return ""
	}
}

// RenderToast renders a notice as a toast box.
func RenderToast(n playback.Notice) string {
	style := ToastStyle
	if n.Terminal || n.Kind == playback.NoticeMediaError || n.Kind == playback.NoticeGaveUp {
		style = ToastErrorStyle
	}
	return style.Render(NoticeText(n))
}
