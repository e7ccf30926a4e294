// Package buffer implements FusionSound's SoundBuffer: the owner of one
// contiguous interleaved PCM region, and the sample-accurate mixing kernel
// that every Playback drives on the real-time mixer thread.
package buffer

import (
	"fmt"
	"sync"

	"github.com/fusionsound/fusionsound/internal/errs"
	"github.com/fusionsound/fusionsound/internal/sample"
)

// MaxChannels is the widest channel mode FusionSound supports (Surround51).
const MaxChannels = 6

// MaxFrames is the largest buffer length FusionSound allows, chosen so that
// length_frames * channels * bytes_per_sample never overflows a 31-bit byte
// count (§3).
const MaxFrames = (1<<31 - 1) / MaxChannels / 4

// Descriptor describes a buffer's immutable attributes plus a bitmask of
// which fields the caller actually supplied; absent fields are filled in
// from engine configuration defaults by the caller (§6).
type Descriptor struct {
	LengthFrames int
	ChannelMode  sample.ChannelMode
	Format       sample.Format
	SampleRate   int

	LengthPresent bool
	ModePresent   bool
	FormatPresent bool
	RatePresent   bool
}

// SoundBuffer owns one interleaved PCM region. Its attributes are immutable
// after creation; the sample area is mutated only through Lock/Unlock.
type SoundBuffer struct {
	lengthFrames int
	channelMode  sample.ChannelMode
	format       sample.Format
	sampleRate   int
	channels     int
	bytesPerFrame int

	mu     sync.Mutex
	data   []byte
	locked bool // single-lock discipline: one outstanding Lock at a time
}

// New validates desc and allocates a zero-filled SoundBuffer.
func New(desc Descriptor) (*SoundBuffer, error) {
	if desc.LengthFrames < 1 || desc.LengthFrames > MaxFrames {
		return nil, fmt.Errorf("buffer length %d out of range [1,%d]: %w", desc.LengthFrames, MaxFrames, errs.InvalidArgument)
	}
	if !sample.ValidChannelMode(desc.ChannelMode) {
		return nil, fmt.Errorf("invalid channel mode %v: %w", desc.ChannelMode, errs.InvalidArgument)
	}
	if !sample.ValidFormat(desc.Format) {
		return nil, fmt.Errorf("invalid sample format %v: %w", desc.Format, errs.InvalidArgument)
	}
	if desc.SampleRate < 1 {
		return nil, fmt.Errorf("sample rate %d must be >= 1: %w", desc.SampleRate, errs.InvalidArgument)
	}

	channels := sample.Channels(desc.ChannelMode)
	bytesPerFrame := channels * sample.BytesPerSample(desc.Format)

	return &SoundBuffer{
		lengthFrames:  desc.LengthFrames,
		channelMode:   desc.ChannelMode,
		format:        desc.Format,
		sampleRate:    desc.SampleRate,
		channels:      channels,
		bytesPerFrame: bytesPerFrame,
		data:          make([]byte, desc.LengthFrames*bytesPerFrame),
	}, nil
}

func (b *SoundBuffer) LengthFrames() int             { return b.lengthFrames }
func (b *SoundBuffer) ChannelMode() sample.ChannelMode { return b.channelMode }
func (b *SoundBuffer) Format() sample.Format           { return b.format }
func (b *SoundBuffer) SampleRate() int                 { return b.sampleRate }
func (b *SoundBuffer) Channels() int                   { return b.channels }
func (b *SoundBuffer) BytesPerFrame() int              { return b.bytesPerFrame }

// Lock returns the contiguous byte range covering frames [pos, pos+len).
// len == 0 means "to end of buffer". Only one lock may be outstanding at a
// time; Unlock must be called before the next Lock.
func (b *SoundBuffer) Lock(pos, length int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.locked {
		return nil, fmt.Errorf("buffer already locked: %w", errs.Locked)
	}
	if length == 0 {
		length = b.lengthFrames - pos
	}
	if pos < 0 || length < 0 || pos+length > b.lengthFrames {
		return nil, fmt.Errorf("lock(%d,%d) out of range for length %d: %w", pos, length, b.lengthFrames, errs.InvalidArgument)
	}

	b.locked = true
	start := pos * b.bytesPerFrame
	end := start + length*b.bytesPerFrame
	return b.data[start:end], nil
}

// Unlock clears the single-lock discipline flag. It is a structural no-op
// otherwise: the returned slice from Lock remains valid until the buffer is
// garbage collected, matching the spec's "structural no-op" description.
func (b *SoundBuffer) Unlock() {
	b.mu.Lock()
	b.locked = false
	b.mu.Unlock()
}

// rawFrame returns the raw byte slice for frame index i without taking the
// lock-discipline flag; used internally by the mixing kernel, which the
// spec allows to read without locking (§5) because writers never revisit
// frames still pending consumption.
func (b *SoundBuffer) rawFrame(i int) []byte {
	start := i * b.bytesPerFrame
	return b.data[start : start+b.bytesPerFrame]
}
