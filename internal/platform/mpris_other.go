//go:build !linux

package platform

import (
	"github.com/hashicorp/go-hclog"

	"hlsradio/internal/playback"
)

// MPRIS is a stub for non-Linux platforms.
type MPRIS struct{}

// NewMPRIS returns nil on non-Linux platforms.
func NewMPRIS(hclog.Logger) (*MPRIS, error) {
	return nil, nil
}

func (m *MPRIS) SetSender(CmdSender)      {}
func (m *MPRIS) Update(playback.Snapshot) {}
func (m *MPRIS) SetTrack(Track)           {}
func (m *MPRIS) Close()                   {}
