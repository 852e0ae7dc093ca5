package app

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"hlsradio/internal/platform"
	"hlsradio/internal/prefs"
)

// Update handles incoming messages and updates the model's state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.ShowAbout {
			if msg.String() == "ctrl+c" {
				return m, m.quit()
			}
			m.ShowAbout = false
			return m, nil
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, m.quit()
		case "tab":
			return m, m.switchMode()
		case "a":
			m.ShowAbout = true
			return m, nil
		}

		if m.Mode == ModeVideo {
			return m, nil
		}

		switch msg.String() {
		case "enter", " ":
			if st, ok := m.SelectedStation(); ok {
				return m, m.playStation(st.ID)
			}
			return m, nil
		case "s":
			m.stop()
			return m, nil
		case "m":
			m.Player.ToggleMute()
			return m, nil
		case "+", "=":
			m.Player.StepVolume(volumeStep)
			return m, nil
		case "-", "_":
			m.Player.StepVolume(-volumeStep)
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.UpdateListSize()
		return m, nil

	case RefreshMsg:
		m.refresh()
		return m, tickRefresh()

	case StatusMsg:
		// the controller publishes its snapshot after notifying, so a read
		// here may still hold the previous status
		m.Snapshot = m.Player.Snapshot()
		m.Snapshot.Status = msg.Status
		m.mirror()
		return m, nil

	case NoticeMsg:
		return m, m.showToast(msg)

	case toastExpiredMsg:
		if m.Toast != nil && m.Toast.id == msg.id {
			m.Toast = nil
		}
		return m, nil

	case TitleMsg:
		if msg.StationID != m.PlayingID || m.titles == nil {
			return m, nil
		}
		m.Title = msg.Title
		m.publishTrack()
		return m, waitForTitle(m.titles)

	case platform.PlayMsg:
		if !m.Snapshot.Active {
			return m, m.playSelected()
		}
		return m, nil
	case platform.StopMsg:
		m.stop()
		return m, nil
	case platform.PlayPauseMsg:
		if m.Snapshot.Active || m.Snapshot.RetryPending {
			m.stop()
			return m, nil
		}
		return m, m.playSelected()
	case platform.NextMsg:
		return m, m.step(1)
	case platform.PrevMsg:
		return m, m.step(-1)
	case platform.VolumeMsg:
		m.Player.SetVolume(msg.Volume)
		return m, nil
	case platform.QuitMsg:
		return m, m.quit()
	}

	var cmd tea.Cmd
	m.List, cmd = m.List.Update(msg)
	return m, cmd
}

// playStation starts the station, or stops it when it is already on air.
func (m *Model) playStation(id string) tea.Cmd {
	if m.Mode != ModeRadio {
		return nil
	}
	if id == m.PlayingID && (m.Snapshot.Active || m.Snapshot.RetryPending) {
		m.stop()
		return nil
	}

	st := m.Config.Station(id)
	m.PlayingID = st.ID
	m.Native.Store(st.Native)
	if m.Prefs != nil {
		m.Prefs.SetString(prefs.KeyLastStation, st.ID)
	}
	m.Log.Info("tuning", "station", st.ID, "url", st.URL, "native", st.Native)

	m.Player.SetStream(st.URL)
	m.Player.Start()
	// Assume the session starts so a quick second press stops it.
	m.Snapshot.Active = true

	cmd := m.watchTitle(st)
	m.publishTrack()
	return cmd
}

func (m *Model) playSelected() tea.Cmd {
	if st, ok := m.SelectedStation(); ok {
		return m.playStation(st.ID)
	}
	return nil
}

// step moves the cursor and plays the station under it.
func (m *Model) step(delta int) tea.Cmd {
	n := len(m.List.Items())
	if n == 0 || m.Mode != ModeRadio {
		return nil
	}
	m.List.Select((m.List.Index() + delta + n) % n)
	return m.playSelected()
}

func (m *Model) stop() {
	m.Player.Stop()
	m.Snapshot.Active = false
	m.stopTitle()
	m.publishTrack()
}

// switchMode flips between the radio and video tabs. Entering video stops
// the radio.
func (m *Model) switchMode() tea.Cmd {
	if m.Mode == ModeRadio {
		m.Mode = ModeVideo
		if m.Snapshot.Active || m.Snapshot.RetryPending {
			m.stop()
		}
	} else {
		m.Mode = ModeRadio
	}
	if m.Prefs != nil {
		m.Prefs.SetString(prefs.KeyActivePlayer, string(m.Mode))
	}
	m.UpdateListSize()
	return nil
}

func (m *Model) showToast(msg NoticeMsg) tea.Cmd {
	m.toastSeq++
	m.Toast = &Toast{Notice: msg.Notice, id: m.toastSeq}
	if msg.Notice.Terminal {
		m.stopTitle()
	}
	return expireToast(m.toastSeq)
}

// refresh reads the controller state and mirrors it to the remote.
func (m *Model) refresh() {
	m.Snapshot = m.Player.Snapshot()
	m.mirror()
}

func (m *Model) mirror() {
	m.Status = m.Snapshot.Status
	if m.Remote != nil {
		m.Remote.Update(m.Snapshot)
	}
}

func (m *Model) publishTrack() {
	if m.Remote == nil {
		return
	}
	st, ok := m.PlayingStation()
	if !ok || !m.Snapshot.Active {
		m.Remote.SetTrack(platform.Track{})
		return
	}
	m.Remote.SetTrack(platform.Track{Station: st.Name, Title: m.Title, URL: st.URL})
}

func (m *Model) quit() tea.Cmd {
	m.Player.Stop()
	m.stopTitle()
	return tea.Quit
}

// NewHelpKeys returns additional help keys for the list.
func NewHelpKeys() ([]key.Binding, []key.Binding) {
	fullHelp := []key.Binding{
		key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "play/stop")),
		key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop")),
		key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mute")),
		key.NewBinding(key.WithKeys("+", "-"), key.WithHelp("+/-", "volume")),
		key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "radio/video")),
		key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "about")),
	}

	shortHelp := []key.Binding{
		key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop")),
		key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mute")),
		key.NewBinding(key.WithKeys("+", "-"), key.WithHelp("+/-", "volume")),
		key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "video")),
	}

	return fullHelp, shortHelp
}
