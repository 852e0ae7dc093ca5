package ui

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/bubbles/list"
	"github.com/stretchr/testify/assert"

	"hlsradio/internal/config"
	"hlsradio/internal/playback"
)

func testStations() []config.StationConfig {
	return []config.StationConfig{
		{ID: "avtoradio", Name: "Avtoradio", URL: config.DefaultStationURL},
		{ID: "groovesalad", Name: "Groove Salad", URL: "https://ice.somafm.com/groovesalad-128-mp3", Native: true},
		{ID: "jazz", Name: "Jazz", URL: "https://example.com/jazz/master.m3u8"},
	}
}

func newTestList(playingID *string, status *playback.Status) (list.Model, StyledDelegate) {
	stations := testStations()
	items := make([]list.Item, len(stations))
	for i, st := range stations {
		items[i] = Item{Station: st}
	}
	delegate := NewStyledDelegate(playingID, status)
	l := list.New(items, delegate, 80, 24)
	l.SetShowTitle(false)
	l.SetFilteringEnabled(false)
	return l, delegate
}

func render(d StyledDelegate, l list.Model, index int) string {
	var buf bytes.Buffer
	d.Render(&buf, l, index, l.Items()[index])
	return buf.String()
}

func TestDelegateRender_Normal(t *testing.T) {
	playingID := ""
	l, delegate := newTestList(&playingID, nil)

	// index 0 is selected by default
	out := render(delegate, l, 1)
	assert.Contains(t, out, "Groove Salad")
	assert.Contains(t, out, "ice.somafm.com")
	assert.Contains(t, out, "ICY")
	assert.NotContains(t, out, "▶")
}

func TestDelegateRender_Selected(t *testing.T) {
	playingID := ""
	l, delegate := newTestList(&playingID, nil)

	out := render(delegate, l, 0)
	assert.Contains(t, out, "Avtoradio")
	assert.Contains(t, out, "HLS")
}

func TestDelegateRender_PlayingShowsStatus(t *testing.T) {
	playingID := "jazz"
	status := playback.StatusReconnecting
	l, delegate := newTestList(&playingID, &status)

	out := render(delegate, l, 2)
	assert.Contains(t, out, "▶ Jazz")
	assert.Contains(t, out, "Reconnecting")

	status = playback.StatusPlaying
	assert.Contains(t, render(delegate, l, 2), "Live")
}

func TestDelegateRender_InvalidItem(t *testing.T) {
	playingID := ""
	l, delegate := newTestList(&playingID, nil)

	var buf bytes.Buffer
	delegate.Render(&buf, l, 0, mockListItem{})
	assert.Empty(t, buf.String())
}

// mockListItem is a list.Item that is not our `Item` type.
type mockListItem struct{}

func (m mockListItem) FilterValue() string { return "" }

func TestItemMethods(t *testing.T) {
	i := Item{Station: config.StationConfig{Name: "Avtoradio", URL: config.DefaultStationURL}}

	assert.Equal(t, "Avtoradio", i.Title())
	assert.Equal(t, "hls-01-gpm.hostingradio.ru", i.Description())
	assert.Equal(t, "Avtoradio", i.FilterValue())
	assert.Equal(t, "HLS", i.Kind())

	bad := Item{Station: config.StationConfig{URL: "not a url"}}
	assert.Equal(t, "not a url", bad.Description())
}

func TestCalculateColumnWidths(t *testing.T) {
	left, right := CalculateColumnWidths(100)
	assert.Equal(t, 76, left)
	assert.Equal(t, 20, right)

	left, _ = CalculateColumnWidths(10)
	assert.Equal(t, minLeftColumnWidth, left)
}
