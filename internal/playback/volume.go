package playback

import "math"

// SetVolume sets the level in [0, 1] and unmutes. Invalid values are logged
// and ignored.
func (c *Controller) SetVolume(v float64) { c.do(func() { c.setVolume(v) }) }

// StepVolume changes the level by delta, clamped to [0, 1].
func (c *Controller) StepVolume(delta float64) {
	c.do(func() {
		v := math.Round((c.volume+delta)*100) / 100
		c.setVolume(math.Max(0, math.Min(1, v)))
	})
}

// ToggleMute flips the mute flag and persists it.
func (c *Controller) ToggleMute() { c.do(c.toggleMute) }

func validVolume(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

func (c *Controller) setVolume(v float64) {
	if !validVolume(v) {
		c.log.Warn("invalid volume value", "volume", v)
		return
	}
	wasPlaying := !c.sink.Paused()

	c.muted = false
	c.volume = v
	c.applyVolume()
	c.savePrefs()

	// Some sinks pause when the level changes; resume the active session.
	if wasPlaying && c.sink.Paused() && c.session != nil {
		c.sink.Play(func(err error) {
			if err != nil {
				c.log.Warn("resume after volume change failed", "error", err)
			}
		})
	}
	c.setStatus(c.derivedStatus())
}

func (c *Controller) toggleMute() {
	c.muted = !c.muted
	c.applyVolume()
	c.savePrefs()
	c.log.Debug("mute toggled", "muted", c.muted)
}

func (c *Controller) applyVolume() {
	if c.muted {
		c.sink.SetVolume(0)
		return
	}
	c.sink.SetVolume(c.volume)
}

func (c *Controller) savePrefs() {
	if c.prefs == nil {
		return
	}
	c.prefs.SetBool(PrefMuted, c.muted)
	c.prefs.SetFloat(PrefVolume, c.volume)
}
