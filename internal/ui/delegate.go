package ui

import (
	"fmt"
	"io"
	"net/url"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"hlsradio/internal/config"
	"hlsradio/internal/playback"
)

// Item is a station in the list.
type Item struct {
	Station config.StationConfig
}

func (i Item) Title() string       { return i.Station.Name }
func (i Item) FilterValue() string { return i.Station.Name }

// Description shows the stream host.
func (i Item) Description() string {
	u, err := url.Parse(i.Station.URL)
	if err != nil || u.Host == "" {
		return i.Station.URL
	}
	return u.Host
}

// Kind is the transport tag shown in the right column.
func (i Item) Kind() string {
	if i.Station.Native {
		return "ICY"
	}
	return "HLS"
}

// StyledDelegate renders stations in two columns and marks the one on air
// with its live status.
type StyledDelegate struct {
	list.DefaultDelegate
	PlayingID *string
	Status    *playback.Status
}

// NewStyledDelegate creates a styled delegate. playingID and status are read
// on every render.
func NewStyledDelegate(playingID *string, status *playback.Status) StyledDelegate {
	d := list.NewDefaultDelegate()

	d.Styles.NormalTitle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFFFFF")).
		Padding(0, 0, 0, 2)

	d.Styles.NormalDesc = lipgloss.NewStyle().
		Foreground(SubtleColor).
		Padding(0, 0, 0, 2)

	d.Styles.SelectedTitle = lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, false, true).
		BorderForeground(PrimaryColor).
		Foreground(PrimaryColor).
		Bold(true).
		Padding(0, 0, 0, 1)

	d.Styles.SelectedDesc = lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, false, true).
		BorderForeground(PrimaryColor).
		Foreground(lipgloss.Color("#CCCCCC")).
		Padding(0, 0, 0, 1)

	return StyledDelegate{DefaultDelegate: d, PlayingID: playingID, Status: status}
}

// Render renders a list item, including the playing indicator.
func (d StyledDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(Item)
	if !ok {
		return
	}

	isPlaying := d.PlayingID != nil && *d.PlayingID == i.Station.ID
	isSelected := index == m.Index()

	title := i.Title()
	if isPlaying {
		title = "▶ " + title
	}

	leftColWidth, rightColWidth := CalculateColumnWidths(m.Width())
	rightStyle := lipgloss.NewStyle().
		Width(rightColWidth).
		Align(lipgloss.Right)

	right := StatusStoppedStyle.Render(i.Kind())
	if isPlaying && d.Status != nil {
		right = RenderStatus(*d.Status)
	}

	// content area is leftColWidth - 2 for padding
	desc := ansi.Truncate(i.Description(), leftColWidth-2, "…")

	var titleStr, descStr string
	switch {
	case isSelected:
		// left border takes one column
		titleStr = d.Styles.SelectedTitle.Width(leftColWidth - 1).Render(title)
		descStr = d.Styles.SelectedDesc.Width(leftColWidth - 1).Render(desc)
	case isPlaying:
		titleStr = lipgloss.NewStyle().
			Foreground(PlayingColor).
			Padding(0, 0, 0, 2).
			Width(leftColWidth).
			Render(title)
		descStr = d.Styles.NormalDesc.Width(leftColWidth).Render(desc)
	default:
		titleStr = d.Styles.NormalTitle.Width(leftColWidth).Render(title)
		descStr = d.Styles.NormalDesc.Width(leftColWidth).Render(desc)
	}

	titleRow := lipgloss.JoinHorizontal(lipgloss.Top, titleStr, rightStyle.Render(right))
	_, _ = fmt.Fprintf(w, "%s\n%s", titleRow, descStr)
}

const (
	rightColumnWidth   = 20
	minLeftColumnWidth = 20
)

// CalculateColumnWidths returns the left and right column widths for a given
// total width.
func CalculateColumnWidths(totalWidth int) (leftCol, rightCol int) {
	rightCol = rightColumnWidth
	leftCol = totalWidth - rightCol - 4
	if leftCol < minLeftColumnWidth {
		leftCol = minLeftColumnWidth
	}
	return
}
