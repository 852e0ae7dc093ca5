package hls

import (
	"errors"
	"fmt"
	"io"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"
	"github.com/hashicorp/go-hclog"

	"hlsradio/internal/playback"
)

const tsPacketSize = 188

var (
	ErrNoAudioTrack = errors.New("transport stream has no MPEG audio track")
	errDemuxStopped = errors.New("demuxer stopped")
)

// isTransportStream reports whether a segment starts with MPEG-TS packets.
func isTransportStream(data []byte) bool {
	if len(data) == 0 || data[0] != 0x47 {
		return false
	}
	return len(data) <= tsPacketSize || data[tsPacketSize] == 0x47
}

// segmentOutput writes segments to the attached stream. Packed audio is
// written as is; transport stream segments go through one demuxer for the
// whole session so PES packets spanning segments are kept intact.
type segmentOutput struct {
	e   *Engine
	out io.Writer

	decided bool
	ts      *io.PipeWriter
	demuxed chan struct{}
}

func newSegmentOutput(e *Engine, out io.Writer) *segmentOutput {
	return &segmentOutput{e: e, out: out}
}

func (o *segmentOutput) write(data []byte) error {
	if !o.decided {
		o.decided = true
		if isTransportStream(data) {
			o.e.log.Debug("transport stream segments, demuxing MPEG audio")
			pr, pw := io.Pipe()
			o.ts = pw
			o.demuxed = make(chan struct{})
			go o.demux(pr)
		}
	}
	if o.ts != nil {
		_, err := o.ts.Write(data)
		return err
	}
	_, err := o.out.Write(data)
	return err
}

func (o *segmentOutput) demux(pr *io.PipeReader) {
	defer close(o.demuxed)
	err := demuxMP3(pr, o.out, o.e.log)
	_ = pr.CloseWithError(errDemuxStopped)

	switch {
	case err == nil, errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe), errors.Is(err, errDestroyed):
		return
	case errors.Is(err, ErrNoAudioTrack):
		o.e.fail(playback.DetailIncompatibleCodecs, playback.ErrorTypeMedia, err)
	default:
		o.e.fail(playback.DetailFragParsing, playback.ErrorTypeMedia, err)
	}
}

// close ends the demuxer, if any, and waits for it.
func (o *segmentOutput) close() {
	if o.ts == nil {
		return
	}
	_ = o.ts.Close()
	<-o.demuxed
}

// demuxMP3 copies the frames of the first MPEG-1/2 audio track in the
// transport stream in to out.
func demuxMP3(in io.Reader, out io.Writer, log hclog.Logger) error {
	r := &mpegts.Reader{R: in}
	if err := r.Initialize(); err != nil {
		return fmt.Errorf("failed to read transport stream: %w", err)
	}

	var track *mpegts.Track
	for _, t := range r.Tracks() {
		if _, ok := t.Codec.(*mpegts.CodecMPEG1Audio); ok {
			track = t
			break
		}
	}
	if track == nil {
		return ErrNoAudioTrack
	}

	r.OnDecodeError(func(err error) {
		log.Debug("transport stream decode error", "error", err)
	})
	r.OnDataMPEG1Audio(track, func(_ int64, frames [][]byte) error {
		for _, f := range frames {
			if _, err := out.Write(f); err != nil {
				return err
			}
		}
		return nil
	})

	for {
		if err := r.Read(); err != nil {
			return err
		}
	}
}
