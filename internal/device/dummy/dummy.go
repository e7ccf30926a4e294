// Package dummy implements a no-hardware OutputDevice: GetBuffer returns an
// internal scratch slice and Commit discards it. Grounded on
// snddrivers/dummy/dummy.c, registered as a real selectable driver
// (`--fs=driver=dummy`) rather than only a test double, for headless
// operation.
package dummy

import (
	"fmt"
	"log"

	"github.com/fusionsound/fusionsound/internal/device"
	"github.com/fusionsound/fusionsound/internal/errs"
	"github.com/fusionsound/fusionsound/internal/sample"
)

// Device is a no-op OutputDevice.
type Device struct {
	cfg          device.Config
	bytesPerFrame int
	scratch      []byte
	open         bool
}

// New returns an unopened dummy device.
func New() *Device { return &Device{} }

func (d *Device) Open(cfg device.Config) (device.Info, error) {
	if cfg.BufferFrames < 1 || cfg.BufferFrames > 65535 {
		return device.Info{}, fmt.Errorf("buffer_frames %d out of range: %w", cfg.BufferFrames, errs.InvalidArgument)
	}
	d.cfg = cfg
	d.bytesPerFrame = sample.Channels(cfg.ChannelMode) * sample.BytesPerSample(cfg.SampleFormat)
	d.scratch = make([]byte, cfg.BufferFrames*d.bytesPerFrame)
	d.open = true
	log.Printf("[device] dummy opened mode=%v format=%v rate=%d buffer=%d", cfg.ChannelMode, cfg.SampleFormat, cfg.SampleRate, cfg.BufferFrames)
	return device.Info{Name: "dummy", Caps: 0}, nil
}

func (d *Device) GetBuffer() ([]byte, int, error) {
	if !d.open {
		return nil, 0, fmt.Errorf("dummy device not open: %w", errs.Unsupported)
	}
	return d.scratch, d.cfg.BufferFrames, nil
}

func (d *Device) Commit(frames int) error { return nil }

func (d *Device) GetOutputDelay() (int, error) { return 0, nil }

func (d *Device) GetVolume() (float64, bool) { return 0, false }

func (d *Device) SetVolume(vol float64) error {
	return fmt.Errorf("dummy device has no hardware volume: %w", errs.Unsupported)
}

func (d *Device) Suspend() error {
	log.Printf("[device] dummy suspend")
	return nil
}

func (d *Device) Resume() error {
	log.Printf("[device] dummy resume")
	return nil
}

func (d *Device) Close() error {
	log.Printf("[device] dummy close")
	d.open = false
	return nil
}
