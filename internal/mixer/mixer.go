// Package mixer implements FusionSound's real-time mixing thread (§4.E):
// one dedicated goroutine owned by the Engine that drains the Playlist into
// a shared 6-channel accumulator, converts to the device's native format,
// and drives the OutputDevice.
package mixer

import (
	"errors"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fusionsound/fusionsound/internal/device"
	"github.com/fusionsound/fusionsound/internal/errs"
	"github.com/fusionsound/fusionsound/internal/playback"
	"github.com/fusionsound/fusionsound/internal/sample"
)

// idleWait is how long the mixer thread waits on an empty playlist before
// re-checking for shutdown (§4.E step 3, "short timeout if the device
// wants data, zero timeout otherwise" — simplified to a fixed short poll,
// since Go's sync.Cond has no device-driven wake source to attach to).
const idleWait = 10 * time.Millisecond

// Mixer drives the Playlist against one OutputDevice.
type Mixer struct {
	dev          device.Device
	playlist     *Playlist
	sampleRate   int
	destMode     sample.ChannelMode
	destFormat   sample.Format
	bufferFrames int

	softMasterVolume atomic.Uint32 // float32 bits
	ditherEnabled    atomic.Bool
	outputDelayMs    atomic.Int64
	feedbackLeft     atomic.Uint32 // float32 bits
	feedbackRight    atomic.Uint32 // float32 bits

	accum []sample.Sample

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	ditherRNG *sample.LCG
}

// New constructs a Mixer over dev, already opened with the given config.
func New(dev device.Device, playlist *Playlist, sampleRate int, destMode sample.ChannelMode, destFormat sample.Format, bufferFrames int) *Mixer {
	m := &Mixer{
		dev:          dev,
		playlist:     playlist,
		sampleRate:   sampleRate,
		destMode:     destMode,
		destFormat:   destFormat,
		bufferFrames: bufferFrames,
		accum:        make([]sample.Sample, bufferFrames*int(sample.CanCount)),
		ditherRNG:    sample.NewLCG(1),
	}
	m.softMasterVolume.Store(math.Float32bits(1.0))
	m.ditherEnabled.Store(true)
	return m
}

// SetSoftMasterVolume sets the software master volume applied when the
// device lacks hardware volume control.
func (m *Mixer) SetSoftMasterVolume(v float32) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	m.softMasterVolume.Store(math.Float32bits(v))
}

func (m *Mixer) SoftMasterVolume() sample.Sample {
	return sample.Sample(math.Float32frombits(m.softMasterVolume.Load()))
}

// SetDither enables or disables dithering on U8/S16 output.
func (m *Mixer) SetDither(enabled bool) { m.ditherEnabled.Store(enabled) }

// OutputDelayMS returns the most recently measured device output delay.
func (m *Mixer) OutputDelayMS() int64 { return m.outputDelayMs.Load() }

// Feedback returns the most recent per-channel peak-to-trough span for the
// front left/right channels (§4.E step 6, GLOSSARY "Feedback").
func (m *Mixer) Feedback() (left, right float32) {
	return math.Float32frombits(m.feedbackLeft.Load()), math.Float32frombits(m.feedbackRight.Load())
}

// Start spawns the mixer thread. It is an error to Start an already
// running Mixer.
func (m *Mixer) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errs.Busy
	}
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.running = true
	go m.run(m.stopCh, m.doneCh)
	return nil
}

// Stop cancels the mixer thread and waits for it to exit (§4.E suspend).
func (m *Mixer) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	stopCh, doneCh := m.stopCh, m.doneCh
	m.running = false
	m.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (m *Mixer) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	for {
		select {
		case <-stopCh:
			return
		default:
		}
		m.tick(stopCh)
	}
}

func (m *Mixer) tick(stopCh chan struct{}) {
	if delayFrames, err := m.dev.GetOutputDelay(); err == nil {
		m.outputDelayMs.Store(int64(delayFrames) * 1000 / int64(m.sampleRate))
	}

	for i := range m.accum {
		m.accum[i] = 0
	}

	items := m.playlist.snapshot()
	if len(items) == 0 {
		m.playlist.waitForWork(idleWait)
		return
	}

	soft := m.SoftMasterVolume()
	length := 0
	for _, pb := range items {
		written, err := pb.MixTick(m.accum, m.sampleRate, m.destMode, m.bufferFrames, soft)
		if written > length {
			length = written
		}
		if err != nil && !errors.Is(err, playback.ErrEndOfBuffer) {
			log.Printf("[mixer] mix_tick: %v", err)
		}
	}

	m.publishFeedback(length)

	remaining := length
	base := 0
	for remaining > 0 {
		select {
		case <-stopCh:
			return
		default:
		}

		buf, avail, err := m.dev.GetBuffer()
		if err != nil {
			log.Printf("[mixer] get_buffer: %v", err)
			return
		}
		n := avail
		if remaining < n {
			n = remaining
		}
		m.convertInto(buf, base, n)
		if err := m.dev.Commit(n); err != nil {
			log.Printf("[mixer] commit: %v", err)
			return
		}
		remaining -= n
		base += n
	}
}

// convertInto writes n frames of the accumulator starting at accum frame
// base into dst, in the device's configured channel layout and sample
// format, applying dither (for U8/S16) and clip (§4.E step 7).
func (m *Mixer) convertInto(dst []byte, base, n int) {
	layout := sample.Layout(m.destMode)
	bytesPerFrame := len(layout) * sample.BytesPerSample(m.destFormat)
	dither := m.ditherEnabled.Load() && (m.destFormat == sample.FormatU8 || m.destFormat == sample.FormatS16)
	depth := sample.BytesPerSample(m.destFormat) * 8

	for t := 0; t < n; t++ {
		accumBase := (base + t) * int(sample.CanCount)
		frame := dst[t*bytesPerFrame:]
		for i, can := range layout {
			v := m.accum[accumBase+int(can)]
			if dither {
				v = sample.DitherTriangular(v, depth, m.ditherRNG)
			}
			v = v.Clip()
			sample.EncodeFrame(m.destFormat, frame, len(layout), i, v)
		}
	}
}

// publishFeedback computes the peak-to-trough span over the front L/R
// channels across accum[0:length] and stores it for GetMasterFeedback.
func (m *Mixer) publishFeedback(length int) {
	if length == 0 {
		return
	}
	var minL, maxL, minR, maxR sample.Sample
	minL, maxL = m.accum[int(sample.CanL)], m.accum[int(sample.CanL)]
	minR, maxR = m.accum[int(sample.CanR)], m.accum[int(sample.CanR)]
	for t := 0; t < length; t++ {
		base := t * int(sample.CanCount)
		l := m.accum[base+int(sample.CanL)]
		r := m.accum[base+int(sample.CanR)]
		if l < minL {
			minL = l
		}
		if l > maxL {
			maxL = l
		}
		if r < minR {
			minR = r
		}
		if r > maxR {
			maxR = r
		}
	}
	m.feedbackLeft.Store(math.Float32bits(float32(maxL - minL)))
	m.feedbackRight.Store(math.Float32bits(float32(maxR - minR)))
}
