package app

import (
	"context"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/hashicorp/go-hclog"

	"hlsradio/internal/config"
	"hlsradio/internal/platform"
	"hlsradio/internal/playback"
	"hlsradio/internal/prefs"
	"hlsradio/internal/ui"
)

// Player is the part of the playback controller the UI drives.
type Player interface {
	Toggle()
	Start()
	Stop()
	SetStream(url string)
	SetVolume(v float64)
	StepVolume(delta float64)
	ToggleMute()
	Snapshot() playback.Snapshot
}

// Remote mirrors playback state to a desktop media remote.
type Remote interface {
	Update(playback.Snapshot)
	SetTrack(platform.Track)
}

// Store is the part of the preference store the UI uses.
type Store interface {
	String(key, def string) string
	SetString(key, v string)
}

// Mode is the active player tab.
type Mode string

const (
	ModeRadio Mode = "radio"
	ModeVideo Mode = "video"
)

// AboutInfo holds version and metadata for the about screen.
type AboutInfo struct {
	Version string
	Commit  string
	Date    string
}

// Options configures a Model. Player and Config are required.
type Options struct {
	Player Player
	Config *config.Config
	Prefs  Store
	Remote Remote
	// Native is set before a station starts so the capability probe can
	// choose direct playback for Icecast stations.
	Native *atomic.Bool
	About  AboutInfo
	Logger hclog.Logger
}

// Model represents the application's state.
type Model struct {
	List      list.Model
	Player    Player
	Config    *config.Config
	Prefs     Store
	Remote    Remote
	Native    *atomic.Bool
	Log       hclog.Logger
	About     AboutInfo
	ShowAbout bool
	Width     int
	Height    int

	Mode      Mode
	PlayingID string // station of the current or last session
	Snapshot  playback.Snapshot
	// Status is shared with the list delegate.
	Status playback.Status
	Title  string
	Toast  *Toast

	toastSeq    int
	titleCancel context.CancelFunc
	titles      <-chan TitleMsg
}

// Toast is a notice shown in the status bar until it expires.
type Toast struct {
	Notice playback.Notice
	id     int
}

// New builds the model and restores the last station and player mode.
func New(opts Options) *Model {
	m := &Model{
		Player: opts.Player,
		Config: opts.Config,
		Prefs:  opts.Prefs,
		Remote: opts.Remote,
		Native: opts.Native,
		Log:    opts.Logger,
		About:  opts.About,
		Mode:   ModeRadio,
	}
	if m.Log == nil {
		m.Log = hclog.NewNullLogger()
	}
	if m.Native == nil {
		m.Native = new(atomic.Bool)
	}

	delegate := ui.NewStyledDelegate(&m.PlayingID, &m.Status)
	m.List = list.New(StationsToItems(m.Config.Stations), delegate, 0, 0)
	m.List.SetShowTitle(false)
	m.List.SetFilteringEnabled(false)
	m.List.SetShowStatusBar(false)
	full, short := NewHelpKeys()
	m.List.AdditionalFullHelpKeys = func() []key.Binding { return full }
	m.List.AdditionalShortHelpKeys = func() []key.Binding { return short }

	if m.Prefs != nil {
		if Mode(m.Prefs.String(prefs.KeyActivePlayer, string(ModeRadio))) == ModeVideo {
			m.Mode = ModeVideo
		}
		last := m.Prefs.String(prefs.KeyLastStation, "")
		for i, st := range m.Config.Stations {
			if st.ID == last {
				m.List.Select(i)
				break
			}
		}
	}
	m.Snapshot = m.Player.Snapshot()
	m.Status = m.Snapshot.Status
	return m
}

// Init initializes the application.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(tea.EnterAltScreen, tickRefresh())
}

// SelectedStation returns the station under the cursor.
func (m *Model) SelectedStation() (config.StationConfig, bool) {
	i, ok := m.List.SelectedItem().(ui.Item)
	return i.Station, ok
}

// PlayingStation returns the station of the current session.
func (m *Model) PlayingStation() (config.StationConfig, bool) {
	if m.PlayingID == "" {
		return config.StationConfig{}, false
	}
	for _, st := range m.Config.Stations {
		if st.ID == m.PlayingID {
			return st, true
		}
	}
	return config.StationConfig{}, false
}

// StationsToItems converts stations to list items.
func StationsToItems(stations []config.StationConfig) []list.Item {
	items := make([]list.Item, len(stations))
	for i, st := range stations {
		items[i] = ui.Item{Station: st}
	}
	return items
}
