//go:build linux

package platform

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
	"github.com/hashicorp/go-hclog"

	"hlsradio/internal/playback"
)

const (
	mprisPath       = "/org/mpris/MediaPlayer2"
	mprisInterface  = "org.mpris.MediaPlayer2"
	playerInterface = "org.mpris.MediaPlayer2.Player"
	busName         = "org.mpris.MediaPlayer2.hlsradio"
	trackPath       = dbus.ObjectPath("/org/hlsradio/Track/live")
)

// MPRIS publishes playback state on the session bus and forwards remote
// calls to the program.
type MPRIS struct {
	conn  *dbus.Conn
	props *prop.Properties
	log   hclog.Logger

	mu     sync.Mutex
	sender CmdSender
}

type mprisRoot struct {
	mpris *MPRIS
}

type mprisPlayer struct {
	mpris *MPRIS
}

// NewMPRIS connects to the session bus and exports the player.
func NewMPRIS(log hclog.Logger) (*MPRIS, error) {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	m := &MPRIS{conn: conn, log: log}

	reply, err := conn.RequestName(busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		_ = conn.Close()
		return nil, fmt.Errorf("bus name %s already taken", busName)
	}

	if err := conn.Export(&mprisRoot{mpris: m}, mprisPath, mprisInterface); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to export root interface: %w", err)
	}
	if err := conn.Export(&mprisPlayer{mpris: m}, mprisPath, playerInterface); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to export player interface: %w", err)
	}

	readOnly := func(v any) *prop.Prop {
		return &prop.Prop{Value: v, Emit: prop.EmitTrue}
	}
	propsSpec := map[string]map[string]*prop.Prop{
		mprisInterface: {
			"CanQuit":             readOnly(true),
			"CanRaise":            readOnly(false),
			"CanSetFullscreen":    readOnly(false),
			"DesktopEntry":        readOnly("hlsradio"),
			"Fullscreen":          readOnly(false),
			"HasTrackList":        readOnly(false),
			"Identity":            readOnly("HLS Radio"),
			"SupportedMimeTypes":  readOnly([]string{"audio/mpeg", "application/vnd.apple.mpegurl"}),
			"SupportedUriSchemes": readOnly([]string{"http", "https"}),
		},
		playerInterface: {
			"CanControl":     readOnly(true),
			"CanGoNext":      readOnly(true),
			"CanGoPrevious":  readOnly(true),
			"CanPause":       readOnly(true),
			"CanPlay":        readOnly(true),
			"CanSeek":        readOnly(false),
			"MaximumRate":    readOnly(1.0),
			"MinimumRate":    readOnly(1.0),
			"PlaybackStatus": readOnly("Stopped"),
			"Rate":           readOnly(1.0),
			"Volume":         {Value: 1.0, Writable: true, Emit: prop.EmitTrue, Callback: m.onVolume},
			"Position":       readOnly(int64(0)),
			"Metadata":       readOnly(map[string]dbus.Variant{}),
		},
	}

	props, err := prop.Export(conn, mprisPath, propsSpec)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to export properties: %w", err)
	}
	m.props = props

	// Export introspection
	introNode := &introspect.Node{
		Name: mprisPath,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name: mprisInterface,
				Methods: []introspect.Method{
					{Name: "Quit"},
					{Name: "Raise"},
				},
				Properties: []introspect.Property{
					{Name: "CanQuit", Type: "b", Access: "read"},
					{Name: "CanRaise", Type: "b", Access: "read"},
					{Name: "CanSetFullscreen", Type: "b", Access: "read"},
					{Name: "DesktopEntry", Type: "s", Access: "read"},
					{Name: "Fullscreen", Type: "b", Access: "read"},
					{Name: "HasTrackList", Type: "b", Access: "read"},
					{Name: "Identity", Type: "s", Access: "read"},
					{Name: "SupportedMimeTypes", Type: "as", Access: "read"},
					{Name: "SupportedUriSchemes", Type: "as", Access: "read"},
				},
			},
			{
				Name: playerInterface,
				Methods: []introspect.Method{
					{Name: "Next"},
					{Name: "Previous"},
					{Name: "Pause"},
					{Name: "PlayPause"},
					{Name: "Stop"},
					{Name: "Play"},
					{Name: "Seek", Args: []introspect.Arg{{Name: "Offset", Type: "x", Direction: "in"}}},
					{Name: "SetPosition", Args: []introspect.Arg{
						{Name: "TrackId", Type: "o", Direction: "in"},
						{Name: "Position", Type: "x", Direction: "in"},
					}},
					{Name: "OpenUri", Args: []introspect.Arg{{Name: "Uri", Type: "s", Direction: "in"}}},
				},
				Properties: []introspect.Property{
					{Name: "CanControl", Type: "b", Access: "read"},
					{Name: "CanGoNext", Type: "b", Access: "read"},
					{Name: "CanGoPrevious", Type: "b", Access: "read"},
					{Name: "CanPause", Type: "b", Access: "read"},
					{Name: "CanPlay", Type: "b", Access: "read"},
					{Name: "CanSeek", Type: "b", Access: "read"},
					{Name: "MaximumRate", Type: "d", Access: "read"},
					{Name: "MinimumRate", Type: "d", Access: "read"},
					{Name: "PlaybackStatus", Type: "s", Access: "read"},
					{Name: "Rate", Type: "d", Access: "read"},
					{Name: "Volume", Type: "d", Access: "readwrite"},
					{Name: "Position", Type: "x", Access: "read"},
					{Name: "Metadata", Type: "a{sv}", Access: "read"},
				},
				Signals: []introspect.Signal{
					{Name: "Seeked", Args: []introspect.Arg{{Name: "Position", Type: "x"}}},
				},
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(introNode), mprisPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to export introspectable: %w", err)
	}

	return m, nil
}

// SetSender sets where remote calls are delivered.
func (m *MPRIS) SetSender(sender CmdSender) {
	m.mu.Lock()
	m.sender = sender
	m.mu.Unlock()
}

func (m *MPRIS) send(msg any) {
	m.mu.Lock()
	sender := m.sender
	m.mu.Unlock()
	if sender != nil {
		sender.Send(msg)
	}
}

// Update publishes the playback status and the effective volume.
func (m *MPRIS) Update(snap playback.Snapshot) {
	if m == nil || m.props == nil {
		return
	}
	volume := snap.Volume
	if snap.Muted {
		volume = 0
	}
	m.set("PlaybackStatus", PlaybackStatus(snap))
	m.set("Volume", volume)
}

// SetTrack publishes the station and the now-playing title.
func (m *MPRIS) SetTrack(t Track) {
	if m == nil || m.props == nil {
		return
	}
	metadata := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(trackPath),
		"xesam:title":   dbus.MakeVariant(SanitizeUTF8(t.Title)),
		"xesam:album":   dbus.MakeVariant(SanitizeUTF8(t.Station)),
	}
	if t.URL != "" {
		metadata["xesam:url"] = dbus.MakeVariant(t.URL)
	}
	m.set("Metadata", metadata)
}

func (m *MPRIS) set(name string, v any) {
	if err := m.props.Set(playerInterface, name, dbus.MakeVariant(v)); err != nil {
		m.log.Debug("mpris property update failed", "property", name, "error", err)
	}
}

// onVolume forwards a remote volume write.
func (m *MPRIS) onVolume(c *prop.Change) *dbus.Error {
	v, ok := c.Value.(float64)
	if !ok {
		return prop.ErrInvalidArg
	}
	m.send(VolumeMsg{Volume: clampVolume(v)})
	return nil
}

// Close releases D-Bus resources.
func (m *MPRIS) Close() {
	if m == nil || m.conn == nil {
		return
	}
	_, _ = m.conn.ReleaseName(busName)
	_ = m.conn.Close()
}

func (r *mprisRoot) Raise() *dbus.Error {
	return nil
}

func (r *mprisRoot) Quit() *dbus.Error {
	r.mpris.send(QuitMsg{})
	return nil
}

func (p *mprisPlayer) Next() *dbus.Error {
	p.mpris.send(NextMsg{})
	return nil
}

func (p *mprisPlayer) Previous() *dbus.Error {
	p.mpris.send(PrevMsg{})
	return nil
}

// Pause stops the stream; a live stream cannot be held.
func (p *mprisPlayer) Pause() *dbus.Error {
	p.mpris.send(StopMsg{})
	return nil
}

func (p *mprisPlayer) PlayPause() *dbus.Error {
	p.mpris.send(PlayPauseMsg{})
	return nil
}

func (p *mprisPlayer) Stop() *dbus.Error {
	p.mpris.send(StopMsg{})
	return nil
}

func (p *mprisPlayer) Play() *dbus.Error {
	p.mpris.send(PlayMsg{})
	return nil
}

func (p *mprisPlayer) Seek(_ int64) *dbus.Error {
	return nil
}

func (p *mprisPlayer) SetPosition(_ dbus.ObjectPath, _ int64) *dbus.Error {
	return nil
}

func (p *mprisPlayer) OpenUri(_ string) *dbus.Error {
	return nil
}
