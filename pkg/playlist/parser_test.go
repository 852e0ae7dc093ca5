package playlist

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		statusCode int
		wantURL    string
		wantErr    bool
	}{
		{
			name: "valid pls file",
			content: `[playlist]
NumberOfEntries=1
File1=http://ice1.somafm.com/groovesalad-128-mp3
Title1=Groove Salad
Length1=-1
Version=2`,
			statusCode: http.StatusOK,
			wantURL:    "http://ice1.somafm.com/groovesalad-128-mp3",
		},
		{
			name: "multiple entries",
			content: `[playlist]
NumberOfEntries=2
File1=http://ice1.example.com/a
File2=http://ice2.example.com/a
Version=2`,
			statusCode: http.StatusOK,
			wantURL:    "http://ice1.example.com/a",
		},
		{
			name:       "plain m3u",
			content:    "#EXTM3U\n#EXTINF:-1,Station\nhttps://stream.example.com/live.mp3\n",
			statusCode: http.StatusOK,
			wantURL:    "https://stream.example.com/live.mp3",
		},
		{
			name:       "empty file",
			statusCode: http.StatusOK,
			wantErr:    true,
		},
		{
			name:       "server error",
			statusCode: http.StatusInternalServerError,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var agent string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				agent = r.Header.Get("User-Agent")
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.content))
			}))
			defer server.Close()

			got, err := Resolve(context.Background(), server.Client(), server.URL+"/station.pls", "hlsradio/test")
			assert.Equal(t, "hlsradio/test", agent)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, got)
		})
	}
}

func TestParseNoEntry(t *testing.T) {
	_, err := Parse(strings.NewReader("[playlist]\nNumberOfEntries=0\nVersion=2\n"))
	assert.ErrorIs(t, err, ErrNoStream)
}

func TestIsPlaylist(t *testing.T) {
	assert.True(t, IsPlaylist("https://somafm.com/groovesalad.pls"))
	assert.True(t, IsPlaylist("https://example.com/station.M3U?x=1"))
	assert.False(t, IsPlaylist("https://example.com/live/master.m3u8"))
	assert.False(t, IsPlaylist("https://ice.example.com/groove-128-mp3"))
	assert.False(t, IsPlaylist("%zz"))
}
