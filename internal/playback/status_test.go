package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name                                 string
		session, paused, buffering, stopping bool
		want                                 Status
	}{
		{"no session", false, false, false, false, StatusOffline},
		{"stopping", true, false, false, true, StatusOffline},
		{"buffering", true, true, true, false, StatusBuffering},
		{"playing", true, false, false, false, StatusPlaying},
		{"paused", true, true, false, false, StatusOffline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(tt.session, tt.paused, tt.buffering, tt.stopping))
		})
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "offline", StatusOffline.String())
	assert.Equal(t, "buffering", StatusBuffering.String())
	assert.Equal(t, "reconnecting", StatusReconnecting.String())
	assert.Equal(t, "playing", StatusPlaying.String())
	assert.Equal(t, "unknown", Status(42).String())
}

func TestMediaError(t *testing.T) {
	err := &MediaError{Code: MediaErrDecode, Err: assert.AnError}
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "MEDIA_ERR_DECODE")
	assert.Equal(t, "MEDIA_ERR(9)", MediaErrorCode(9).String())
}

func TestEngineEventIsBufferStall(t *testing.T) {
	assert.True(t, bufferStall.IsBufferStall())
	assert.False(t, fatalNetwork.IsBufferStall())

	fatalStall := bufferStall
	fatalStall.Fatal = true
	assert.False(t, fatalStall.IsBufferStall())
}
