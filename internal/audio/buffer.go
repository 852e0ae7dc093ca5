package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// BufferState is the fill state of a Buffer.
type BufferState int

const (
	BufferBuffering BufferState = iota
	BufferHealthy
	BufferUnderrun
	BufferError
	BufferClosed
)

func (s BufferState) String() string {
	switch s {
	case BufferBuffering:
		return "Buffering"
	case BufferHealthy:
		return "Healthy"
	case BufferUnderrun:
		return "Underrun"
	case BufferError:
		return "Error"
	case BufferClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// BufferStats describes a buffer at one point in time.
type BufferStats struct {
	FillLevel float64 // 0.0 to 1.0
	State     BufferState
	LastError error
}

// ErrStreamEnded is reported when the source reaches EOF. Live streams never
// end on their own.
var ErrStreamEnded = errors.New("stream ended unexpectedly")

// Buffer sizes, tuned for 128 kbps audio.
const (
	DefaultBufferCapacity = 256 * 1024 // ~15 seconds
	DefaultHighWatermark  = 32 * 1024  // start playback after ~2 seconds
	DefaultLowWatermark   = 16 * 1024  // recover from underrun
	defaultReadChunkSize  = 8 * 1024
)

// BufferOptions sizes a Buffer. Zero fields take the defaults.
type BufferOptions struct {
	Capacity      int
	HighWatermark int
	LowWatermark  int
}

func (o BufferOptions) withDefaults() BufferOptions {
	if o.Capacity <= 0 {
		o.Capacity = DefaultBufferCapacity
	}
	if o.HighWatermark <= 0 || o.HighWatermark > o.Capacity {
		o.HighWatermark = min(DefaultHighWatermark, o.Capacity)
	}
	if o.LowWatermark <= 0 || o.LowWatermark > o.HighWatermark {
		o.LowWatermark = min(DefaultLowWatermark, o.HighWatermark)
	}
	return o
}

// Buffer is a ring buffer between a network source and the decoder. It
// holds playback until the high watermark is reached and reports state
// changes to onState, which is never called with the lock held.
type Buffer struct {
	src     io.ReadCloser
	onState func(BufferState, error)

	buf      []byte
	capacity int
	readPos  int
	writePos int
	filled   int

	mu     sync.Mutex
	cond   *sync.Cond
	closed bool

	highWatermark int
	lowWatermark  int

	state       BufferState
	lastError   error
	initialFill bool // true until the high watermark was reached once
}

// NewBuffer wraps src. Call Start to begin filling.
func NewBuffer(src io.ReadCloser, opts BufferOptions, onState func(BufferState, error)) *Buffer {
	opts = opts.withDefaults()
	if onState == nil {
		onState = func(BufferState, error) {}
	}
	b := &Buffer{
		src:           src,
		onState:       onState,
		buf:           make([]byte, opts.Capacity),
		capacity:      opts.Capacity,
		highWatermark: opts.HighWatermark,
		lowWatermark:  opts.LowWatermark,
		state:         BufferBuffering,
		initialFill:   true,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Start launches the fill goroutine.
func (b *Buffer) Start() {
	b.onState(BufferBuffering, nil)
	go b.fillLoop()
}

func (b *Buffer) fillLoop() {
	chunk := make([]byte, defaultReadChunkSize)
	for {
		n, err := b.src.Read(chunk)
		if n > 0 {
			if !b.write(chunk[:n]) {
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrStreamEnded
			} else {
				err = fmt.Errorf("stream read failed: %w", err)
			}
			b.fail(err)
			return
		}
	}
}

// write copies data into the ring, blocking while it is full. It reports
// false once the buffer is closed.
func (b *Buffer) write(data []byte) bool {
	b.mu.Lock()
	var changed []BufferState

	for len(data) > 0 {
		if b.closed {
			b.mu.Unlock()
			return false
		}
		available := b.capacity - b.filled
		if available == 0 {
			b.cond.Wait()
			continue
		}

		toWrite := min(len(data), available)
		endSpace := b.capacity - b.writePos
		if toWrite <= endSpace {
			copy(b.buf[b.writePos:], data[:toWrite])
			b.writePos = (b.writePos + toWrite) % b.capacity
		} else {
			copy(b.buf[b.writePos:], data[:endSpace])
			copy(b.buf[0:], data[endSpace:toWrite])
			b.writePos = toWrite - endSpace
		}
		b.filled += toWrite
		data = data[toWrite:]

		if b.initialFill && b.filled >= b.highWatermark {
			b.initialFill = false
			b.state = BufferHealthy
			changed = append(changed, BufferHealthy)
		} else if !b.initialFill && b.state == BufferUnderrun && b.filled >= b.lowWatermark {
			b.state = BufferHealthy
			changed = append(changed, BufferHealthy)
		}
		b.cond.Broadcast()
	}
	b.mu.Unlock()

	for _, st := range changed {
		b.onState(st, nil)
	}
	return true
}

// Read implements io.Reader. It blocks during the initial fill and on
// underrun.
func (b *Buffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	for {
		if b.closed {
			err := b.lastError
			b.mu.Unlock()
			if err != nil {
				return 0, err
			}
			return 0, io.EOF
		}
		if b.initialFill && b.filled < b.highWatermark {
			b.cond.Wait()
			continue
		}
		if b.filled > 0 {
			break
		}
		if b.state != BufferUnderrun {
			b.state = BufferUnderrun
			b.mu.Unlock()
			b.onState(BufferUnderrun, nil)
			b.mu.Lock()
			continue
		}
		b.cond.Wait()
	}

	toRead := min(len(p), b.filled)
	endSpace := b.capacity - b.readPos
	if toRead <= endSpace {
		copy(p, b.buf[b.readPos:b.readPos+toRead])
		b.readPos = (b.readPos + toRead) % b.capacity
	} else {
		copy(p, b.buf[b.readPos:])
		copy(p[endSpace:], b.buf[0:toRead-endSpace])
		b.readPos = toRead - endSpace
	}
	b.filled -= toRead
	b.cond.Broadcast()
	b.mu.Unlock()

	return toRead, nil
}

// Close stops filling and closes the source. Pending reads return io.EOF.
func (b *Buffer) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.state = BufferClosed
	b.cond.Broadcast()
	b.mu.Unlock()

	return b.src.Close()
}

func (b *Buffer) fail(err error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.lastError = err
	b.state = BufferError
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()

	_ = b.src.Close()
	b.onState(BufferError, err)
}

// Stats returns the current fill level and state.
func (b *Buffer) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BufferStats{
		FillLevel: float64(b.filled) / float64(b.capacity),
		State:     b.state,
		LastError: b.lastError,
	}
}
