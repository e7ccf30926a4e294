// Package portaudiodev implements FusionSound's OutputDevice contract over
// a real sound card via github.com/gordonklaus/portaudio. Its Open/Close
// lifecycle sequencing (stop before close, never touch a stream object a
// blocked call might still be using) is grounded on the capture/playback
// stream lifecycle in the teacher's audio.go (AudioEngine.Start/Stop).
package portaudiodev

import (
	"fmt"
	"log"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/fusionsound/fusionsound/internal/device"
	"github.com/fusionsound/fusionsound/internal/errs"
	"github.com/fusionsound/fusionsound/internal/sample"
)

// Device drives one portaudio output stream. PortAudio's Go binding writes
// from a fixed float32 slice bound at stream-open time, so Device holds two
// buffers: outFrames (the float32 slice portaudio writes from) and scratch
// (the byte slice in the Mixer's configured sample format that GetBuffer
// hands out); Commit decodes scratch into outFrames before writing.
type Device struct {
	mu sync.Mutex

	cfg      device.Config
	channels int

	stream  *portaudio.Stream
	outFrames []float32
	scratch   []byte
	deviceIdx int

	suspended bool
}

// New returns an unopened portaudiodev Device targeting the given output
// device index, or the system default when idx < 0.
func New(idx int) *Device {
	return &Device{deviceIdx: idx}
}

func (d *Device) Open(cfg device.Config) (device.Info, error) {
	if cfg.BufferFrames < 1 || cfg.BufferFrames > 65535 {
		return device.Info{}, fmt.Errorf("buffer_frames %d out of range: %w", cfg.BufferFrames, errs.InvalidArgument)
	}

	if err := portaudio.Initialize(); err != nil {
		return device.Info{}, fmt.Errorf("portaudio initialize: %w", errs.IoFailure)
	}

	devices, err := portaudio.Devices()
	if err != nil {
		portaudio.Terminate()
		return device.Info{}, fmt.Errorf("portaudio devices: %w", errs.IoFailure)
	}

	outDev, err := resolveDevice(devices, d.deviceIdx)
	if err != nil {
		portaudio.Terminate()
		return device.Info{}, err
	}

	channels := sample.Channels(cfg.ChannelMode)
	outFrames := make([]float32, cfg.BufferFrames*channels)

	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   outDev,
			Channels: channels,
			Latency:  outDev.DefaultLowOutputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: cfg.BufferFrames,
	}
	stream, err := portaudio.OpenStream(params, outFrames)
	if err != nil {
		portaudio.Terminate()
		return device.Info{}, fmt.Errorf("portaudio open stream: %w", errs.IoFailure)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return device.Info{}, fmt.Errorf("portaudio start stream: %w", errs.IoFailure)
	}

	d.mu.Lock()
	d.cfg = cfg
	d.channels = channels
	d.stream = stream
	d.outFrames = outFrames
	d.scratch = make([]byte, cfg.BufferFrames*channels*sample.BytesPerSample(cfg.SampleFormat))
	d.mu.Unlock()

	log.Printf("[device] portaudio opened output=%s rate=%d buffer=%d", outDev.Name, cfg.SampleRate, cfg.BufferFrames)
	return device.Info{Name: outDev.Name, Caps: device.CapSuspend}, nil
}

func resolveDevice(devices []*portaudio.DeviceInfo, idx int) (*portaudio.DeviceInfo, error) {
	if idx >= 0 && idx < len(devices) {
		return devices[idx], nil
	}
	dev, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return nil, fmt.Errorf("default output device: %w", errs.IoFailure)
	}
	return dev, nil
}

func (d *Device) GetBuffer() ([]byte, int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return nil, 0, fmt.Errorf("device not open: %w", errs.Unsupported)
	}
	return d.scratch, d.cfg.BufferFrames, nil
}

// Commit decodes the committed prefix of scratch (in the Mixer's
// configured sample format) into outFrames and writes it to the stream.
func (d *Device) Commit(frames int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return fmt.Errorf("device not open: %w", errs.Unsupported)
	}
	bytesPerFrame := d.channels * sample.BytesPerSample(d.cfg.SampleFormat)
	for t := 0; t < frames; t++ {
		raw := d.scratch[t*bytesPerFrame:]
		for c := 0; c < d.channels; c++ {
			d.outFrames[t*d.channels+c] = float32(sample.DecodeFrame(d.cfg.SampleFormat, raw, d.channels, c))
		}
	}
	if err := d.stream.Write(); err != nil {
		return fmt.Errorf("portaudio write: %w", errs.IoFailure)
	}
	return nil
}

func (d *Device) GetOutputDelay() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return 0, fmt.Errorf("device not open: %w", errs.Unsupported)
	}
	info := d.stream.Info()
	return int(info.OutputLatency.Seconds() * float64(d.cfg.SampleRate)), nil
}

func (d *Device) GetVolume() (float64, bool) { return 0, false }

func (d *Device) SetVolume(vol float64) error {
	return fmt.Errorf("portaudio backend has no hardware volume control: %w", errs.Unsupported)
}

// Suspend stops the stream without closing it, mirroring the teacher's
// Stop(): stop first so any blocked Write call returns, matching
// PortAudio's thread-safety contract for Pa_StopStream.
func (d *Device) Suspend() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil || d.suspended {
		return nil
	}
	if err := d.stream.Stop(); err != nil {
		return fmt.Errorf("portaudio stop: %w", errs.IoFailure)
	}
	d.suspended = true
	return nil
}

func (d *Device) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil || !d.suspended {
		return nil
	}
	if err := d.stream.Start(); err != nil {
		return fmt.Errorf("portaudio start: %w", errs.IoFailure)
	}
	d.suspended = false
	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	stream := d.stream
	d.stream = nil
	d.mu.Unlock()

	if stream == nil {
		return nil
	}
	stream.Stop()
	err := stream.Close()
	portaudio.Terminate()
	log.Printf("[device] portaudio closed")
	if err != nil {
		return fmt.Errorf("portaudio close: %w", errs.IoFailure)
	}
	return nil
}
