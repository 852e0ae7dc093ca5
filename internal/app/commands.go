package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hashicorp/go-hclog"

	"hlsradio/internal/audio"
	"hlsradio/internal/config"
	"hlsradio/internal/playback"
)

const (
	refreshInterval = 250 * time.Millisecond
	toastDuration   = 3 * time.Second
	volumeStep      = 0.05
)

// StatusMsg is sent when the controller reports a status transition.
type StatusMsg struct {
	Status playback.Status
}

// NoticeMsg carries a controller notice to be shown as a toast.
type NoticeMsg struct {
	Notice playback.Notice
}

// TitleMsg is sent when the now-playing title of a station changes.
type TitleMsg struct {
	StationID string
	Title     string
}

// RefreshMsg triggers a controller snapshot read.
type RefreshMsg struct{}

type toastExpiredMsg struct{ id int }

func tickRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return RefreshMsg{}
	})
}

func expireToast(id int) tea.Cmd {
	return tea.Tick(toastDuration, func(time.Time) tea.Msg {
		return toastExpiredMsg{id: id}
	})
}

// Bridge forwards controller callbacks to the program without blocking the
// controller. Messages beyond the queue size are dropped.
type Bridge struct {
	queue chan tea.Msg
	log   hclog.Logger
}

// NewBridge creates a bridge with room for size pending messages.
func NewBridge(size int, log hclog.Logger) *Bridge {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Bridge{queue: make(chan tea.Msg, size), log: log}
}

func (b *Bridge) StatusChanged(s playback.Status) { b.push(StatusMsg{Status: s}) }
func (b *Bridge) Notify(n playback.Notice)        { b.push(NoticeMsg{Notice: n}) }

func (b *Bridge) push(msg tea.Msg) {
	select {
	case b.queue <- msg:
	default:
		b.log.Warn("ui queue full, dropping message", "msg", msg)
	}
}

// Run delivers queued messages to send until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context, send func(tea.Msg)) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.queue:
			send(msg)
		}
	}
}

// watchTitle polls the station's ICY title in the background. The returned
// command delivers the first update; each TitleMsg handler re-arms it.
func (m *Model) watchTitle(st config.StationConfig) tea.Cmd {
	m.stopTitle()
	if !st.Native {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.titleCancel = cancel
	titles := make(chan TitleMsg)
	w := &audio.TitleWatcher{
		URL:       st.URL,
		UserAgent: m.Config.UserAgent,
		Logger:    m.Log.Named("title"),
	}
	go func() {
		defer close(titles)
		w.Run(ctx, func(title string) {
			select {
			case titles <- TitleMsg{StationID: st.ID, Title: title}:
			case <-ctx.Done():
			}
		})
	}()
	m.titles = titles
	return waitForTitle(titles)
}

func waitForTitle(titles <-chan TitleMsg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-titles
		if !ok {
			return nil
		}
		return msg
	}
}

func (m *Model) stopTitle() {
	if m.titleCancel != nil {
		m.titleCancel()
		m.titleCancel = nil
	}
	m.titles = nil
	m.Title = ""
}
