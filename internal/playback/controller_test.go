package playback

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{Dispatcher: &queue{}})
	assert.ErrorIs(t, err, ErrNoSink)

	_, err = New(Options{Sink: newFakeSink()})
	assert.ErrorIs(t, err, ErrNoDispatcher)
}

func TestToggleStartsEngineSession(t *testing.T) {
	h := newHarness(t)

	h.c.Toggle()
	h.run()

	require.Len(t, h.engines, 1)
	assert.Equal(t, testStream, h.engine().url)
	assert.Same(t, h.sink, h.engine().sink)
	assert.Equal(t, 0, h.sink.playCalls, "play waits for the manifest")
	assert.Equal(t, []Status{StatusBuffering}, h.obs.statuses)
	assert.Equal(t, StateStarting, h.c.Snapshot().State)

	h.engineEvent(EngineEvent{Kind: EngineManifestParsed})

	assert.Equal(t, 1, h.sink.playCalls)
	assert.Equal(t, []Status{StatusBuffering, StatusPlaying}, h.obs.statuses)
	snap := h.c.Snapshot()
	assert.Equal(t, StatePlaying, snap.State)
	assert.True(t, snap.Active)
	assert.False(t, snap.Buffering)
}

func TestToggleWhilePlayingStops(t *testing.T) {
	h := newHarness(t)
	h.startPlaying()

	h.c.Toggle()
	h.run()

	assert.Equal(t, 1, h.engine().destroyed)
	assert.True(t, h.sink.paused)
	assert.Equal(t, "", h.sink.source)
	assert.Empty(t, h.sink.subs)
	assert.Equal(t, StatusOffline, h.obs.statuses[len(h.obs.statuses)-1])
	snap := h.c.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.False(t, snap.Active)
	assert.False(t, snap.RetryPending)
}

func TestToggleIgnoredDuringStopGrace(t *testing.T) {
	h := newHarness(t)
	h.startPlaying()
	h.c.Toggle()
	h.run()

	h.c.Toggle()
	h.run()
	assert.Len(t, h.engines, 1)

	h.clock.Advance(500 * time.Millisecond)
	h.c.Toggle()
	h.run()
	assert.Len(t, h.engines, 2)
}

func TestStopIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.startPlaying()

	h.c.Stop()
	h.run()
	pauses := h.sink.pauseCalls
	statuses := len(h.obs.statuses)

	h.c.Stop()
	h.run()
	assert.Equal(t, pauses, h.sink.pauseCalls)
	assert.Len(t, h.obs.statuses, statuses)
	assert.Equal(t, 1, h.engine().destroyed)
}

func TestFatalErrorSchedulesReconnect(t *testing.T) {
	h := newHarness(t)
	h.startPlaying()

	h.engineEvent(fatalNetwork)

	assert.Equal(t, StatusReconnecting, h.obs.statuses[len(h.obs.statuses)-1])
	assert.Contains(t, h.obs.noticeKinds(), NoticeNetworkLost)
	snap := h.c.Snapshot()
	assert.Equal(t, StateReconnecting, snap.State)
	assert.Equal(t, 1, snap.FatalRetries)
	assert.True(t, snap.RetryPending)

	h.clock.Advance(2*time.Second - time.Millisecond)
	assert.Len(t, h.engines, 1)

	h.clock.Advance(time.Millisecond)
	require.Len(t, h.engines, 2)
	assert.Equal(t, 1, h.engines[0].destroyed)
	assert.Equal(t, testStream, h.engine().url)
}

func TestReconnectBackoffThenGiveUp(t *testing.T) {
	h := newHarness(t)
	h.startPlaying()

	delays := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second}
	for i, d := range delays {
		h.engineEvent(fatalNetwork)
		require.True(t, h.c.Snapshot().RetryPending, "attempt %d", i+1)
		assert.Equal(t, i+1, h.c.Snapshot().FatalRetries)

		h.clock.Advance(d - time.Millisecond)
		require.Len(t, h.engines, i+1, "retry %d fired early", i+1)
		h.clock.Advance(time.Millisecond)
		require.Len(t, h.engines, i+2)
	}

	h.engineEvent(fatalNetwork)

	snap := h.c.Snapshot()
	assert.False(t, snap.RetryPending)
	assert.False(t, snap.Active)
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, StatusOffline, h.obs.statuses[len(h.obs.statuses)-1])
	last := h.obs.notices[len(h.obs.notices)-1]
	assert.Equal(t, NoticeGaveUp, last.Kind)
	assert.True(t, last.Terminal)

	h.clock.Advance(time.Minute)
	assert.Len(t, h.engines, 6)
}

func TestDuplicateFatalErrorsScheduleOneRetry(t *testing.T) {
	h := newHarness(t)
	h.startPlaying()

	h.engineEvent(fatalNetwork)
	h.engineEvent(EngineEvent{Kind: EngineError, Fatal: true, Type: ErrorTypeMedia, Details: DetailBufferAppend})
	h.sinkEvent(SinkEvent{Kind: SinkError, Err: &MediaError{Code: MediaErrNetwork}})

	assert.Equal(t, 1, h.c.Snapshot().FatalRetries)
	h.clock.Advance(2 * time.Second)
	assert.Len(t, h.engines, 2)
}

func TestStopCancelsPendingRetry(t *testing.T) {
	h := newHarness(t)
	h.startPlaying()
	h.engineEvent(fatalNetwork)

	h.c.Stop()
	h.run()
	h.clock.Advance(time.Minute)

	assert.Len(t, h.engines, 1)
	snap := h.c.Snapshot()
	assert.False(t, snap.RetryPending)
	assert.Equal(t, 0, snap.FatalRetries)
}

func TestSuccessfulPlayResetsCounters(t *testing.T) {
	h := newHarness(t)
	h.startPlaying()
	h.engineEvent(fatalNetwork)
	h.clock.Advance(2 * time.Second)
	require.Len(t, h.engines, 2)
	assert.Equal(t, 1, h.c.Snapshot().FatalRetries)

	h.engineEvent(EngineEvent{Kind: EngineManifestParsed})

	snap := h.c.Snapshot()
	assert.Equal(t, 0, snap.FatalRetries)
	assert.Equal(t, StatePlaying, snap.State)
	assert.Equal(t, StatusPlaying, snap.Status)
}

func TestStaleEngineEventsAreDropped(t *testing.T) {
	h := newHarness(t)
	h.startPlaying()
	h.engineEvent(fatalNetwork)
	h.clock.Advance(2 * time.Second)
	require.Len(t, h.engines, 2)
	plays := h.sink.playCalls

	h.engines[0].onEvent(EngineEvent{Kind: EngineManifestParsed})
	h.engines[0].onEvent(fatalNetwork)
	h.run()

	assert.Equal(t, plays, h.sink.playCalls)
	assert.False(t, h.c.Snapshot().RetryPending)
}

func TestSnapshotFollowsEngineEvents(t *testing.T) {
	h := newHarness(t)
	h.startPlaying()
	require.Equal(t, StatusPlaying, h.c.Snapshot().Status)

	h.engineEvent(fatalNetwork)
	snap := h.c.Snapshot()
	assert.Equal(t, StatusReconnecting, snap.Status)
	assert.Equal(t, StateReconnecting, snap.State)
	assert.True(t, snap.RetryPending)

	h.clock.Advance(2*time.Second - time.Millisecond)
	assert.Equal(t, StatusReconnecting, h.c.Snapshot().Status)
	assert.True(t, h.c.Snapshot().RetryPending)

	for i := 0; i < 5; i++ {
		h.clock.Advance(time.Minute)
		h.engineEvent(fatalNetwork)
	}
	snap = h.c.Snapshot()
	assert.False(t, snap.Active)
	assert.Equal(t, StatusOffline, snap.Status)
	assert.Equal(t, StateIdle, snap.State)
}

func TestBufferStallRecovery(t *testing.T) {
	h := newHarness(t)
	h.startPlaying()

	for i := 0; i < 10; i++ {
		h.engineEvent(bufferStall)
	}
	assert.Equal(t, 10, h.engine().startLoads)
	assert.Equal(t, StatusBuffering, h.c.Snapshot().Status)
	assert.False(t, h.c.Snapshot().RetryPending)

	h.engineEvent(bufferStall)

	assert.Equal(t, 10, h.engine().startLoads)
	assert.True(t, h.c.Snapshot().RetryPending)
	assert.Equal(t, StatusReconnecting, h.c.Snapshot().Status)
}

func TestNonFatalErrorIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.startPlaying()
	statuses := len(h.obs.statuses)

	h.engineEvent(EngineEvent{Kind: EngineError, Type: ErrorTypeNetwork, Details: DetailFragLoad})

	assert.Len(t, h.obs.statuses, statuses)
	assert.Equal(t, 0, h.engine().startLoads)
	assert.Equal(t, StatePlaying, h.c.Snapshot().State)
}

func TestPlayNotAllowed(t *testing.T) {
	h := newHarness(t)
	h.sink.playErr = ErrNotAllowed

	h.startPlaying()

	snap := h.c.Snapshot()
	assert.False(t, snap.Active)
	assert.False(t, snap.RetryPending)
	assert.Equal(t, StatusOffline, snap.Status)
	assert.Equal(t, []NoticeKind{NoticeGestureRequired}, h.obs.noticeKinds())

	h.sink.playErr = nil
	h.startPlaying()
	assert.Len(t, h.engines, 2, "the next press starts at once")
	assert.Equal(t, StatusPlaying, h.c.Snapshot().Status)
}

func TestPlayRejectedRetries(t *testing.T) {
	h := newHarness(t)
	h.sink.playErr = errors.New("device busy")

	h.startPlaying()

	assert.True(t, h.c.Snapshot().RetryPending)
	assert.Equal(t, StatusReconnecting, h.c.Snapshot().Status)
}

func TestSinkErrors(t *testing.T) {
	tests := []struct {
		name    string
		code    MediaErrorCode
		retry   bool
		notices []NoticeKind
	}{
		{"aborted", MediaErrAborted, false, nil},
		{"network", MediaErrNetwork, true, []NoticeKind{NoticeMediaError}},
		{"decode", MediaErrDecode, true, []NoticeKind{NoticeMediaError}},
		{"unsupported", MediaErrSrcNotSupported, true, []NoticeKind{NoticeMediaError}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.startPlaying()

			h.sinkEvent(SinkEvent{Kind: SinkError, Err: &MediaError{Code: tt.code}})

			assert.Equal(t, tt.retry, h.c.Snapshot().RetryPending)
			if tt.notices == nil {
				assert.Empty(t, h.obs.notices)
			} else {
				assert.Equal(t, tt.notices, h.obs.noticeKinds())
			}
		})
	}
}

func TestSinkEventsDriveStatus(t *testing.T) {
	h := newHarness(t)
	h.startPlaying()

	h.sinkEvent(SinkEvent{Kind: SinkWaiting})
	h.sinkEvent(SinkEvent{Kind: SinkWaiting})
	assert.Equal(t, StateBuffering, h.c.Snapshot().State)

	h.sinkEvent(SinkEvent{Kind: SinkPlaying})
	assert.Equal(t, StatePlaying, h.c.Snapshot().State)

	assert.Equal(t, []Status{StatusBuffering, StatusPlaying, StatusBuffering, StatusPlaying}, h.obs.statuses)
}

func TestPlayingEventResetsCounters(t *testing.T) {
	h := newHarness(t)
	h.startPlaying()
	h.engineEvent(bufferStall)
	h.engineEvent(bufferStall)
	assert.Equal(t, 2, h.c.Snapshot().NonFatalRetries)

	h.sinkEvent(SinkEvent{Kind: SinkCanPlay})

	assert.Equal(t, 0, h.c.Snapshot().NonFatalRetries)
	assert.Equal(t, StatusPlaying, h.c.Snapshot().Status)
}

func TestPauseEventGoesOffline(t *testing.T) {
	h := newHarness(t)
	h.startPlaying()

	h.sink.paused = true
	h.sinkEvent(SinkEvent{Kind: SinkPause})

	assert.Equal(t, StatusOffline, h.c.Snapshot().Status)
	assert.True(t, h.c.Snapshot().Active)
}

func TestNativeStrategy(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Capabilities = StaticCapabilities(Capabilities{LegacyNative: true, EngineSupported: true})
	})

	h.c.Toggle()
	h.run()

	assert.Empty(t, h.engines)
	assert.Equal(t, testStream, h.sink.source)
	assert.Equal(t, 1, h.sink.playCalls)
	assert.Equal(t, StatusPlaying, h.c.Snapshot().Status)

	h.sinkEvent(SinkEvent{Kind: SinkLoadStart})
	assert.Equal(t, StatusBuffering, h.c.Snapshot().Status)

	h.sinkEvent(SinkEvent{Kind: SinkError, Err: &MediaError{Code: MediaErrNetwork}})
	h.clock.Advance(2 * time.Second)
	assert.Equal(t, 2, h.sink.playCalls)
	assert.Equal(t, []string{testStream, "", testStream}, h.sink.sources)
}

func TestNoPlaybackMethod(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Capabilities = StaticCapabilities(Capabilities{})
	})

	h.c.Toggle()
	h.run()

	assert.Empty(t, h.engines)
	assert.False(t, h.c.Snapshot().Active)
	assert.Empty(t, h.obs.statuses)
	assert.Equal(t, []NoticeKind{NoticeUnsupported}, h.obs.noticeKinds())
}

func TestNetworkOffline(t *testing.T) {
	h := newHarness(t)
	h.startPlaying()

	h.c.NetworkOffline()
	h.run()

	assert.Equal(t, []Status{StatusBuffering, StatusPlaying, StatusOffline, StatusReconnecting}, h.obs.statuses)
	assert.Contains(t, h.obs.noticeKinds(), NoticeNetworkLost)
	assert.True(t, h.c.Snapshot().RetryPending)
}

func TestNetworkEventsWhileIdle(t *testing.T) {
	h := newHarness(t)

	h.c.NetworkOffline()
	h.c.NetworkOnline()
	h.run()

	assert.Empty(t, h.obs.statuses)
	assert.Empty(t, h.obs.notices)
	assert.False(t, h.c.Snapshot().RetryPending)
}

func TestNetworkOnlineRecomputesStatus(t *testing.T) {
	h := newHarness(t)
	h.startPlaying()

	h.c.NetworkOnline()
	h.run()

	assert.Equal(t, StatusPlaying, h.c.Snapshot().Status)
	assert.Len(t, h.obs.statuses, 2)
}

func TestSetStream(t *testing.T) {
	const other = "https://radio.example.com/other/playlist.m3u8"

	t.Run("idle", func(t *testing.T) {
		h := newHarness(t)
		h.c.SetStream(other)
		h.run()
		assert.Empty(t, h.engines)
		assert.Equal(t, other, h.c.Snapshot().StreamURL)
	})

	t.Run("playing", func(t *testing.T) {
		h := newHarness(t)
		h.startPlaying()
		h.engineEvent(fatalNetwork)

		h.c.SetStream(other)
		h.run()

		require.Len(t, h.engines, 2)
		assert.Equal(t, 1, h.engines[0].destroyed)
		assert.Equal(t, other, h.engine().url)
		assert.False(t, h.c.Snapshot().RetryPending)
		assert.Equal(t, 0, h.c.Snapshot().FatalRetries)

		h.clock.Advance(time.Minute)
		assert.Len(t, h.engines, 2)
	})
}

func TestSetVolume(t *testing.T) {
	h := newHarness(t)
	h.c.ToggleMute()
	h.c.SetVolume(0.4)
	h.run()

	assert.Equal(t, 0.4, h.sink.volume)
	assert.Equal(t, 0.4, h.prefs.floats[PrefVolume])
	assert.False(t, h.prefs.bools[PrefMuted])
	assert.False(t, h.c.Snapshot().Muted)
}

func TestSetVolumeRejectsInvalid(t *testing.T) {
	for _, v := range []float64{-1, 2, math.NaN(), math.Inf(1)} {
		h := newHarness(t)
		h.c.SetVolume(0.7)
		h.c.SetVolume(v)
		h.run()

		assert.Equal(t, 0.7, h.sink.volume, "volume %v", v)
		assert.Equal(t, 0.7, h.prefs.floats[PrefVolume], "volume %v", v)
	}
}

func TestStepVolumeClamps(t *testing.T) {
	h := newHarness(t)

	h.c.StepVolume(0.1)
	h.run()
	assert.Equal(t, 1.0, h.c.Snapshot().Volume)

	for i := 0; i < 3; i++ {
		h.c.StepVolume(-0.1)
	}
	h.run()
	assert.InDelta(t, 0.7, h.c.Snapshot().Volume, 1e-9)

	h.c.StepVolume(-5)
	h.run()
	assert.Equal(t, 0.0, h.c.Snapshot().Volume)
}

func TestToggleMute(t *testing.T) {
	h := newHarness(t)
	h.c.SetVolume(0.6)

	h.c.ToggleMute()
	h.run()
	assert.Equal(t, 0.0, h.sink.volume)
	assert.True(t, h.prefs.bools[PrefMuted])
	assert.True(t, h.c.Snapshot().Muted)

	h.c.ToggleMute()
	h.run()
	assert.Equal(t, 0.6, h.sink.volume)
	assert.False(t, h.prefs.bools[PrefMuted])
}

func TestVolumeLoadedFromPrefs(t *testing.T) {
	tests := []struct {
		name       string
		muted      bool
		stored     float64
		wantVolume float64
		wantSink   float64
	}{
		{"muted", true, 0.3, 0.3, 0},
		{"unmuted", false, 0.3, 0.3, 0.3},
		{"out of range", false, 7, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefs := newMemPrefs()
			prefs.bools[PrefMuted] = tt.muted
			prefs.floats[PrefVolume] = tt.stored

			h := newHarness(t, func(o *Options) { o.Prefs = prefs })

			assert.Equal(t, tt.wantSink, h.sink.volume)
			assert.Equal(t, tt.wantVolume, h.c.Snapshot().Volume)
			assert.Equal(t, tt.muted, h.c.Snapshot().Muted)
		})
	}
}

func TestSinkErrorIgnoredWhileStopping(t *testing.T) {
	h := newHarness(t)
	h.startPlaying()
	var late []func(SinkEvent)
	for _, fn := range h.sink.subs {
		late = append(late, fn)
	}

	h.c.Stop()
	h.run()
	for _, fn := range late {
		fn(SinkEvent{Kind: SinkError, Err: &MediaError{Code: MediaErrNetwork}})
	}
	h.run()

	assert.Empty(t, h.obs.notices)
	assert.False(t, h.c.Snapshot().RetryPending)
	assert.Equal(t, StatusOffline, h.c.Snapshot().Status)
}

func TestOfflineWithConcurrentSinkErrorRetriesOnce(t *testing.T) {
	h := newHarness(t)
	h.startPlaying()

	h.c.NetworkOffline()
	h.sink.emit(SinkEvent{Kind: SinkError, Err: &MediaError{Code: MediaErrNetwork}})
	h.engine().onEvent(fatalNetwork)
	h.run()

	assert.Equal(t, 1, h.c.Snapshot().FatalRetries)
	assert.Equal(t, []NoticeKind{NoticeNetworkLost}, h.obs.noticeKinds())
	h.clock.Advance(2 * time.Second)
	assert.Len(t, h.engines, 2)
}
