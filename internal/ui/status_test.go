package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hlsradio/internal/playback"
)

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		status playback.Status
		want   string
	}{
		{playback.StatusOffline, "Offline"},
		{playback.StatusBuffering, "Buffering"},
		{playback.StatusReconnecting, "Reconnecting"},
		{playback.StatusPlaying, "Live"},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			text, _ := StatusLabel(tt.status)
			assert.Contains(t, text, tt.want)
			assert.Contains(t, RenderStatus(tt.status), tt.want)
		})
	}
}

func TestSoundLabel(t *testing.T) {
	assert.Contains(t, SoundLabel(true, 0.8), "Muted")
	assert.Contains(t, SoundLabel(false, 0.75), "75%")
	assert.Contains(t, SoundLabel(false, 0.014), "1%")
	assert.Contains(t, SoundLabel(false, 0), "0%")
}

func TestNoticeText(t *testing.T) {
	assert.Equal(t, "custom", NoticeText(playback.Notice{Kind: playback.NoticeMediaError, Message: "custom"}))
	assert.Equal(t, "Connection lost", NoticeText(playback.Notice{Kind: playback.NoticeNetworkLost}))
	assert.Empty(t, NoticeText(playback.Notice{Kind: playback.NoticeInfo}))
}

func TestRenderToast(t *testing.T) {
	out := RenderToast(playback.Notice{Kind: playback.NoticeGaveUp, Terminal: true, Message: "giving up"})
	assert.Contains(t, out, "giving up")
}
