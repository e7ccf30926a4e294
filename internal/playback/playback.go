// Package playback implements FusionSound's per-source mixing state machine:
// position, stop, pitch×direction, per-channel gains, downmix, local volume,
// and the notification stream observers use to track a source's progress
// (§4.C).
package playback

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fusionsound/fusionsound/internal/buffer"
	"github.com/fusionsound/fusionsound/internal/errs"
	"github.com/fusionsound/fusionsound/internal/sample"
)

// ErrEndOfBuffer is returned by MixTick as a normal control signal (not a
// failure) when the source reached its configured stop position.
var ErrEndOfBuffer = errors.New("end of buffer")

// Kind identifies the type of a notification event.
type Kind int

const (
	Start Kind = iota
	Stop
	Advance
)

// Event is delivered to observers on every state transition (§4.C).
type Event struct {
	Kind Kind
	Pos  int64
	Stop int64
	Num  int64 // frames advanced; only meaningful for Advance
}

// Observer receives Playback notifications. Per the design note in §9,
// events are queued while the Playback lock is held and delivered after it
// is released, so an observer may safely signal a condition variable (as
// Stream does) but must not call back into mutating operations on the same
// Playback.
type Observer func(Event)

// Playlist is the subset of the engine's playlist a Playback needs to
// register and unregister itself. Defined as a narrow interface (mirroring
// the teacher's small-interface style) so tests can exercise Playback
// without a real mixer running.
type Playlist interface {
	Add(p *Playback)
	Remove(p *Playback)
}

const (
	pitchUnit    = buffer.Q14One
	maxPitchMag  = 64 * pitchUnit
	maxVolume    = sample.Sample(64.0)
)

// Playback carries mixing state bound to one SoundBuffer.
type Playback struct {
	buf      *buffer.SoundBuffer
	playlist Playlist

	mu        sync.Mutex
	position  int64
	stop      int64 // < 0 means loop forever
	pitchMag  int64 // Q14 magnitude, direction applied separately
	direction int8  // +1 or -1
	levels    [6]sample.Sample
	center    sample.Sample
	rear      sample.Sample
	localVol  sample.Sample
	running   bool
	disabled  bool
	notify    bool
	observers []Observer
}

// defaultDownmix is -3 dB (√½), the spec's default centre/rear attenuation.
const defaultDownmix = sample.Sample(0.70710678)

// New creates a disabled Playback at position 0 with stop=0, pitch=1.0,
// unity per-channel levels, the default downmix attenuation, and the given
// local volume scope (§4.C, "new(buffer, notify)").
func New(buf *buffer.SoundBuffer, playlist Playlist, localVolume sample.Sample, notify bool) *Playback {
	return &Playback{
		buf:      buf,
		playlist: playlist,
		stop:     0,
		pitchMag: pitchUnit,
		direction: 1,
		levels:   [6]sample.Sample{1, 1, 1, 1, 1, 1},
		center:   defaultDownmix,
		rear:     defaultDownmix,
		localVol: localVolume,
		disabled: true,
		notify:   notify,
	}
}

// Buffer returns the SoundBuffer this Playback mixes from.
func (p *Playback) Buffer() *buffer.SoundBuffer { return p.buf }

// Subscribe registers obs to receive future notifications.
func (p *Playback) Subscribe(obs Observer) {
	p.mu.Lock()
	p.observers = append(p.observers, obs)
	p.mu.Unlock()
}

func (p *Playback) deliver(events []Event) {
	if len(events) == 0 || !p.notify {
		return
	}
	p.mu.Lock()
	obs := append([]Observer(nil), p.observers...)
	p.mu.Unlock()
	for _, ev := range events {
		for _, fn := range obs {
			fn(ev)
		}
	}
}

// Enable clears the disabled flag.
func (p *Playback) Enable() {
	p.mu.Lock()
	p.disabled = false
	p.mu.Unlock()
}

// Start adds the Playback to the playlist and fires a START notification.
// If disabled (and withEnable is false) it fails with TemporarilyUnavailable.
// Starting an already-running Playback is a no-op.
func (p *Playback) Start(withEnable bool) error {
	p.mu.Lock()
	if withEnable {
		p.disabled = false
	}
	if p.disabled {
		p.mu.Unlock()
		return fmt.Errorf("playback disabled: %w", errs.TemporarilyUnavailable)
	}
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	pos := p.position
	p.mu.Unlock()

	p.playlist.Add(p)
	p.deliver([]Event{{Kind: Start, Pos: pos}})
	return nil
}

// Stop removes the Playback from the playlist (if running) and fires a STOP
// notification. If withDisable is set, the Playback is also marked
// disabled so a subsequent Start fails until Enable is called. Calling Stop
// twice is idempotent (property #7).
func (p *Playback) Stop(withDisable bool) {
	p.mu.Lock()
	wasRunning := p.running
	p.running = false
	if withDisable {
		p.disabled = true
	}
	pos := p.position
	p.mu.Unlock()

	if wasRunning {
		p.playlist.Remove(p)
		p.deliver([]Event{{Kind: Stop, Pos: pos}})
	}
}

// SetPosition sets the position; a value outside [0, buffer.length) is
// rejected with InvalidArgument and leaves the position unchanged.
func (p *Playback) SetPosition(pos int64) error {
	if pos < 0 || pos >= int64(p.buf.LengthFrames()) {
		return fmt.Errorf("position %d out of range [0,%d): %w", pos, p.buf.LengthFrames(), errs.InvalidArgument)
	}
	p.mu.Lock()
	p.position = pos
	p.mu.Unlock()
	return nil
}

// SetStop sets the stop position. A negative value means loop forever.
func (p *Playback) SetStop(stop int64) error {
	if stop >= int64(p.buf.LengthFrames()) {
		return fmt.Errorf("stop %d out of range [-1,%d): %w", stop, p.buf.LengthFrames(), errs.InvalidArgument)
	}
	p.mu.Lock()
	p.stop = stop
	p.mu.Unlock()
	return nil
}

// SetPitch sets the pitch magnitude. unit is the playback's pitch multiplier
// (1.0 = one-to-one); valid range is [0, 64].
func (p *Playback) SetPitch(unit float64) error {
	if unit < 0 || unit > 64 {
		return fmt.Errorf("pitch %v out of range [0,64]: %w", unit, errs.InvalidArgument)
	}
	p.mu.Lock()
	p.pitchMag = int64(unit * float64(pitchUnit))
	p.mu.Unlock()
	return nil
}

// SetDirection sets the playback direction: +1 forward, -1 reverse.
func (p *Playback) SetDirection(dir int8) error {
	if dir != 1 && dir != -1 {
		return fmt.Errorf("direction must be +1 or -1: %w", errs.InvalidArgument)
	}
	p.mu.Lock()
	p.direction = dir
	p.mu.Unlock()
	return nil
}

// SetVolume sets the per-canonical-channel gain. Each entry must be in
// [0, 64.0].
func (p *Playback) SetVolume(levels [6]sample.Sample) error {
	for _, l := range levels {
		if l < 0 || l > maxVolume {
			return fmt.Errorf("channel level %v out of range [0,64]: %w", l, errs.InvalidArgument)
		}
	}
	p.mu.Lock()
	p.levels = levels
	p.mu.Unlock()
	return nil
}

// SetDownmix sets the centre/rear downmix attenuation. Each must be in
// [0, 1]; otherwise neither is changed and InvalidArgument is returned.
func (p *Playback) SetDownmix(center, rear sample.Sample) error {
	if center < 0 || center > 1 || rear < 0 || rear > 1 {
		return fmt.Errorf("downmix coefficients out of range [0,1]: %w", errs.InvalidArgument)
	}
	p.mu.Lock()
	p.center = center
	p.rear = rear
	p.mu.Unlock()
	return nil
}

// SetLocalVolume sets the creator-scope volume multiplier. A value outside
// [0, 1] is rejected with InvalidArgument.
func (p *Playback) SetLocalVolume(v sample.Sample) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("local volume %v out of range [0,1]: %w", v, errs.InvalidArgument)
	}
	p.mu.Lock()
	p.localVol = v
	p.mu.Unlock()
	return nil
}

// Status returns whether the Playback is running, its current position,
// and whether it is configured to loop forever.
func (p *Playback) Status() (running bool, position int64, looping bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running, p.position, p.stop < 0
}

// MixTick drives one mixer-thread tick: it calls the buffer's mixing kernel
// with the Playback's current state, advances position, and fires ADVANCE
// (and STOP, on end-of-buffer) notifications. Returns the number of frames
// written into dest and ErrEndOfBuffer when the configured stop position
// was reached during this tick — a normal control signal, not a failure
// (§7).
func (p *Playback) MixTick(dest []sample.Sample, destRate int, destMode sample.ChannelMode, maxFrames int, softVolume sample.Sample) (int, error) {
	p.mu.Lock()
	levels := p.levels
	center, rear := p.center, p.rear
	combinedPitch := p.pitchMag * int64(p.direction)
	volume := softVolume * p.localVol
	oldPos := p.position
	stop := p.stop

	newPos, _, written, done := p.buf.MixInto(dest, destRate, destMode, maxFrames, oldPos, stop, levels, combinedPitch, volume, center, rear)
	p.position = newPos

	var events []Event
	if written > 0 {
		events = append(events, Event{Kind: Advance, Pos: oldPos, Stop: stop, Num: int64(written)})
	}
	stoppedHere := false
	if done {
		p.running = false
		stoppedHere = true
		events = append(events, Event{Kind: Stop, Pos: newPos})
	}
	p.mu.Unlock()

	if stoppedHere {
		p.playlist.Remove(p)
	}
	p.deliver(events)

	if done {
		return written, ErrEndOfBuffer
	}
	return written, nil
}
