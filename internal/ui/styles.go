package ui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	TitleColor        = lipgloss.Color("#E4252C") // brand red
	PrimaryColor      = lipgloss.Color("#F2A900") // amber accent
	PlayingColor      = lipgloss.Color("#1a9096") // teal for playing
	BufferingColor    = lipgloss.Color("#E6DB74") // yellow while loading
	ReconnectingColor = lipgloss.Color("#FD971F") // orange while backing off
	ErrorColor        = lipgloss.Color("#FF3333")
	SubtleColor       = lipgloss.Color("#666666")
)

// Styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(TitleColor).
			MarginLeft(2)

	StatusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			MarginTop(1)

	StatusPlayingStyle = lipgloss.NewStyle().
				Foreground(PlayingColor).
				Bold(true)

	StatusBufferingStyle = lipgloss.NewStyle().
				Foreground(BufferingColor)

	StatusReconnectingStyle = lipgloss.NewStyle().
				Foreground(ReconnectingColor).
				Bold(true)

	StatusStoppedStyle = lipgloss.NewStyle().
				Foreground(SubtleColor)

	TrackInfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CCCCCC")).
			Italic(true)

	ToastStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(PrimaryColor).
			Foreground(lipgloss.Color("#FFFFFF")).
			Padding(0, 1)

	ToastErrorStyle = ToastStyle.
			BorderForeground(ErrorColor).
			Foreground(ErrorColor)

	TabStyle = lipgloss.NewStyle().
			Foreground(SubtleColor).
			Padding(0, 2)

	ActiveTabStyle = TabStyle.
			Foreground(PrimaryColor).
			Bold(true).
			Underline(true)

	VideoBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(SubtleColor).
			Padding(1, 3).
			MarginLeft(2)

	AboutBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(PrimaryColor).
			Background(lipgloss.Color("#1a1a1a")).
			Padding(1, 3)
)
