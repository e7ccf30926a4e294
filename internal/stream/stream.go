// Package stream implements FusionSound's ring-buffer Stream (§4.D): the
// blocking/zero-copy writer contract, the playback-notification-driven
// consumer side, and the derived presentation-delay calculation.
package stream

import (
	"fmt"
	"sync"

	"github.com/fusionsound/fusionsound/internal/buffer"
	"github.com/fusionsound/fusionsound/internal/errs"
	"github.com/fusionsound/fusionsound/internal/playback"
	"github.com/fusionsound/fusionsound/internal/sample"
)

// OutputDelayFunc returns the current device output delay in milliseconds,
// used to compute presentation_delay_ms (§4.D).
type OutputDelayFunc func() int

// Stream is a ring buffer over a SoundBuffer, written by a producer and
// drained by its bound Playback.
type Stream struct {
	buf        *buffer.SoundBuffer
	pb         *playback.Playback
	sampleRate int
	bufferSize int
	prebuffer  int
	delayFn    OutputDelayFunc

	mu       sync.Mutex
	cond     *sync.Cond
	posWrite int
	posRead  int
	filled   int
	pending  int
	playing  bool
}

// New wraps buf as a ring buffer of bufferSize frames, bound to pb. prebuffer
// is the minimum fill level before auto-start (negative disables auto-start).
// New subscribes itself to pb's notifications for the lifetime of the
// Stream.
func New(buf *buffer.SoundBuffer, pb *playback.Playback, sampleRate, bufferSize, prebuffer int, delayFn OutputDelayFunc) *Stream {
	s := &Stream{
		buf:        buf,
		pb:         pb,
		sampleRate: sampleRate,
		bufferSize: bufferSize,
		prebuffer:  prebuffer,
		delayFn:    delayFn,
	}
	s.cond = sync.NewCond(&s.mu)
	pb.Subscribe(s.onNotify)
	return s
}

// onNotify is the playback.Observer callback. Per §4.C / §9, it must not
// call back into mutating Playback operations; it only touches Stream
// state and signals the condition variable.
func (s *Stream) onNotify(ev playback.Event) {
	s.mu.Lock()
	switch ev.Kind {
	case playback.Start:
		s.playing = true
	case playback.Advance:
		s.filled -= int(ev.Num)
		if s.filled < 0 {
			s.filled = 0
		}
		s.posRead = int((ev.Pos + ev.Num) % int64(s.bufferSize))
	case playback.Stop:
		s.playing = false
	}
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Write implements the blocking writer contract of §4.D. data holds
// len frames already encoded in the buffer's native format
// (BytesPerFrame() bytes each).
func (s *Stream) Write(data []byte, frames int) error {
	if frames < 0 || len(data) < frames*s.buf.BytesPerFrame() {
		return fmt.Errorf("write: invalid frame count %d: %w", frames, errs.InvalidArgument)
	}

	s.mu.Lock()
	s.pending = frames
	offset := 0

	for s.pending > 0 {
		for s.filled == s.bufferSize && s.pending > 0 {
			s.cond.Wait()
		}
		if s.pending == 0 {
			s.mu.Unlock()
			return nil
		}

		n := s.bufferSize - s.filled
		if s.pending < n {
			n = s.pending
		}
		if toEnd := s.bufferSize - s.posWrite; toEnd < n {
			n = toEnd
		}

		dst, err := s.buf.Lock(s.posWrite, n)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		copy(dst, data[offset:offset+n*s.buf.BytesPerFrame()])
		s.buf.Unlock()

		s.posWrite = (s.posWrite + n) % s.bufferSize
		s.filled += n
		s.pending -= n
		offset += n * s.buf.BytesPerFrame()

		s.pb.SetStop(stopPosition(s.posWrite, s.filled, s.bufferSize))
		s.pb.Enable()

		if !s.playing && s.prebuffer >= 0 && s.filled >= s.prebuffer {
			s.mu.Unlock()
			if err := s.pb.Start(true); err != nil {
				return err
			}
			s.mu.Lock()
		}
	}
	s.mu.Unlock()
	return nil
}

// Access blocks until at least one frame is free and returns a byte slice
// at pos_write plus the maximum number of frames writable into it without
// wrapping. The caller MUST NOT attempt to write more than the returned
// frame count; call Commit with the number of frames actually written.
func (s *Stream) Access() ([]byte, int, error) {
	s.mu.Lock()
	for s.filled == s.bufferSize {
		s.cond.Wait()
	}
	n := s.bufferSize - s.filled
	if toEnd := s.bufferSize - s.posWrite; toEnd < n {
		n = toEnd
	}
	pos := s.posWrite
	s.mu.Unlock()

	raw, err := s.buf.Lock(pos, n)
	if err != nil {
		return nil, 0, err
	}
	return raw, n, nil
}

// Commit performs the metadata updates of the write contract's steps 3d-3f
// for n frames previously obtained via Access. The caller must Unlock the
// buffer itself once it has finished writing (matching SoundBuffer's
// single-lock discipline) before calling Commit.
func (s *Stream) Commit(n int) error {
	s.mu.Lock()
	s.posWrite = (s.posWrite + n) % s.bufferSize
	s.filled += n
	wasPlaying := s.playing
	prebuffer := s.prebuffer
	filled := s.filled
	posWrite := s.posWrite
	s.mu.Unlock()

	s.pb.SetStop(stopPosition(posWrite, filled, s.bufferSize))
	s.pb.Enable()

	if !wasPlaying && prebuffer >= 0 && filled >= prebuffer {
		return s.pb.Start(true)
	}
	return nil
}

// stopPosition computes the ring index to hand to Playback.SetStop. A single
// wrapped pointer can't tell a completely full ring from a completely empty
// one (both have pos_write == pos_read), so when the ring is exactly full
// the stop position is backed off by one frame — the newest frame is picked
// up on the next Write/Commit's SetStop call instead of being mixed
// immediately.
func stopPosition(posWrite, filled, bufferSize int) int64 {
	if filled >= bufferSize {
		return int64((posWrite - 1 + bufferSize) % bufferSize)
	}
	return int64(posWrite)
}

// Wait blocks until k==0 and playback has stopped, or until at least k
// frames are free in the ring (§4.D invariant list).
func (s *Stream) Wait(k int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if k == 0 && !s.playing {
			return
		}
		if k > 0 && s.bufferSize-s.filled >= k {
			return
		}
		s.cond.Wait()
	}
}

// Flush stops playback, waits until it has fully stopped, then resets the
// ring to empty with pos_write == pos_read.
func (s *Stream) Flush() {
	s.pb.Stop(false)

	s.mu.Lock()
	for s.playing {
		s.cond.Wait()
	}
	s.posWrite = s.posRead
	s.filled = 0
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Drop cancels any in-progress Write without touching fill state, waking
// the blocked writer (§8 property #8).
func (s *Stream) Drop() {
	s.mu.Lock()
	s.pending = 0
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Filled returns the current ring fill level in frames.
func (s *Stream) Filled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filled
}

// Playing reports whether the bound Playback is currently running.
func (s *Stream) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// PresentationDelayMS returns device_output_delay_ms + (filled+pending) *
// 1000/sample_rate (§4.D).
func (s *Stream) PresentationDelayMS() int {
	s.mu.Lock()
	outstanding := s.filled + s.pending
	s.mu.Unlock()

	delay := 0
	if s.delayFn != nil {
		delay = s.delayFn()
	}
	return delay + outstanding*1000/s.sampleRate
}

// ChannelMode/Format/SampleRate expose the backing buffer's attributes for
// callers assembling a stream descriptor response.
func (s *Stream) ChannelMode() sample.ChannelMode { return s.buf.ChannelMode() }
func (s *Stream) Format() sample.Format           { return s.buf.Format() }
func (s *Stream) SampleRate() int                 { return s.sampleRate }
func (s *Stream) BufferSize() int                  { return s.bufferSize }
