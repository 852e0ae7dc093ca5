package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"hlsradio/internal/ui"
)

// RenderTabs renders the radio/video switch.
func (m *Model) RenderTabs() string {
	radio, video := ui.TabStyle, ui.TabStyle
	if m.Mode == ModeVideo {
		video = ui.ActiveTabStyle
	} else {
		radio = ui.ActiveTabStyle
	}
	return lipgloss.JoinHorizontal(lipgloss.Bottom,
		ui.TitleStyle.Render("HLS Radio"),
		"  ",
		radio.Render("Radio"),
		video.Render("Video"),
	)
}

// RenderHeader renders the list header with column titles.
func (m *Model) RenderHeader() string {
	leftColWidth, rightColWidth := ui.CalculateColumnWidths(m.List.Width())

	title := lipgloss.NewStyle().
		Foreground(ui.SubtleColor).
		MarginLeft(2).
		Width(leftColWidth).
		Render("Stations")
	right := lipgloss.NewStyle().
		Foreground(ui.SubtleColor).
		Width(rightColWidth).
		Align(lipgloss.Right).
		Render("Stream")

	return lipgloss.JoinHorizontal(lipgloss.Bottom, title, right)
}

// RenderStatusBar renders the network and sound indicators and what is on
// air.
func (m *Model) RenderStatusBar() string {
	parts := []string{
		ui.RenderStatus(m.Status),
		ui.StatusStoppedStyle.Render(ui.SoundLabel(m.Snapshot.Muted, m.Snapshot.Volume)),
	}

	if st, ok := m.PlayingStation(); ok && (m.Snapshot.Active || m.Snapshot.RetryPending) {
		stationStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF"))
		parts = append(parts, stationStyle.Render(st.Name))
		if m.Title != "" {
			parts = append(parts, ui.TrackInfoStyle.Render("♫ "+m.Title))
		}
	}

	return ui.StatusBarStyle.Render(strings.Join(parts, "  │  "))
}

// RenderVideo renders the video tab. The player itself opens outside the
// terminal.
func (m *Model) RenderVideo() string {
	url := m.Config.Video.URL
	if url == "" {
		url = "no video configured"
	}
	content := fmt.Sprintf("Video stream\n\n%s\n\nOpen the link in a browser to watch.\nRadio playback is paused while this tab is active.\n\nPress tab to return to radio", url)
	return ui.VideoBoxStyle.Render(content)
}

// RenderAboutScreen renders the about dialog.
func (m *Model) RenderAboutScreen() string {
	content := fmt.Sprintf(`HLS Radio

A terminal player for live HLS radio streams.

Version:  %s
Commit:   %s
Built:    %s

Stations: %d configured

Press any key to close`, m.About.Version, m.About.Commit, m.About.Date, len(m.Config.Stations))

	return ui.AboutBoxStyle.Render(content)
}

// PlaceOverlay places the foreground string on top of the background string
// at the specified x, y position.
func PlaceOverlay(x, y int, fg, bg string) string {
	bgLines := strings.Split(bg, "\n")
	fgLines := strings.Split(fg, "\n")

	for i, fgLine := range fgLines {
		row := y + i
		if row < 0 || row >= len(bgLines) {
			continue
		}

		bgLine := bgLines[row]
		bgLineWidth := ansi.StringWidth(bgLine)
		if bgLineWidth < x {
			bgLine += strings.Repeat(" ", x-bgLineWidth)
			bgLineWidth = x
		}

		fgWidth := ansi.StringWidth(fgLine)
		left := ansi.Truncate(bgLine, x, "")
		var right string
		if x+fgWidth < bgLineWidth {
			right = ansi.TruncateLeft(bgLine, x+fgWidth, "")
		}
		bgLines[row] = left + fgLine + right
	}

	return strings.Join(bgLines, "\n")
}

// View renders the application's UI.
func (m *Model) View() string {
	components := []string{"", m.RenderTabs(), ""}
	if m.Mode == ModeVideo {
		components = append(components, m.RenderVideo())
	} else {
		components = append(components, m.RenderHeader(), m.List.View())
	}
	components = append(components, m.RenderStatusBar())
	view := lipgloss.JoinVertical(lipgloss.Left, components...)

	if m.Toast != nil {
		toast := ui.RenderToast(m.Toast.Notice)
		x := max(m.Width-lipgloss.Width(toast)-1, 0)
		view = PlaceOverlay(x, 1, toast, view)
	}

	if m.ShowAbout {
		about := m.RenderAboutScreen()
		x := max((m.Width-lipgloss.Width(about))/2, 0)
		y := max((m.Height-lipgloss.Height(about))/2, 0)
		return PlaceOverlay(x, y, about, view)
	}

	return view
}

// UpdateListSize recalculates and sets the list size based on current UI state.
func (m *Model) UpdateListSize() {
	fixed := 3 + lipgloss.Height(m.RenderTabs()) + lipgloss.Height(m.RenderHeader()) + lipgloss.Height(m.RenderStatusBar())
	m.List.SetSize(m.Width, max(m.Height-fixed, 0))
}
