// Package engine implements FusionSound's top-level Engine (§4.F): the
// owner of the output device, the mixer thread, and the buffer/playback
// pools every public handle is created through.
package engine

import (
	"fmt"
	"os"
	"sync"

	"github.com/fusionsound/fusionsound/internal/buffer"
	"github.com/fusionsound/fusionsound/internal/config"
	"github.com/fusionsound/fusionsound/internal/device"
	"github.com/fusionsound/fusionsound/internal/errs"
	"github.com/fusionsound/fusionsound/internal/mixer"
	"github.com/fusionsound/fusionsound/internal/musicprovider"
	"github.com/fusionsound/fusionsound/internal/musicprovider/wave"
	"github.com/fusionsound/fusionsound/internal/playback"
	"github.com/fusionsound/fusionsound/internal/sample"
	"github.com/fusionsound/fusionsound/internal/stream"
)

// BufferDescriptor describes a requested SoundBuffer; zero-value optional
// fields (guarded by the Has* flags) are substituted from engine
// configuration (§6).
type BufferDescriptor struct {
	LengthFrames int
	ChannelMode  sample.ChannelMode
	Format       sample.Format
	SampleRate   int

	HasLength bool
	HasMode   bool
	HasFormat bool
	HasRate   bool
}

// StreamDescriptor describes a requested Stream; see BufferDescriptor for
// the Has*-flag convention. Defaults per §6: buffersize = samplerate/5,
// prebuffer = 0.
type StreamDescriptor struct {
	BufferSizeFrames int
	ChannelMode      sample.ChannelMode
	Format           sample.Format
	SampleRate       int
	Prebuffer        int

	HasBufferSize bool
	HasMode       bool
	HasFormat     bool
	HasRate       bool
	HasPrebuffer  bool
}

// Creator is the context object §9's design notes call for in place of a
// single engine-wide local volume: each creator (one GUI panel, one
// network session, one script) owns its own local volume, applied to
// every Playback it has created via SetLocalVolume.
type Creator struct {
	mu          sync.Mutex
	localVolume sample.Sample
	playbacks   []*playback.Playback
}

// NewCreator returns a Creator scoped to localVolume (§6: local ∈ [0,1]).
func NewCreator(localVolume sample.Sample) *Creator {
	if localVolume < 0 {
		localVolume = 0
	}
	if localVolume > 1 {
		localVolume = 1
	}
	return &Creator{localVolume: localVolume}
}

func (c *Creator) register(pb *playback.Playback) {
	c.mu.Lock()
	c.playbacks = append(c.playbacks, pb)
	c.mu.Unlock()
}

// LocalVolume returns the creator's current local volume scalar.
func (c *Creator) LocalVolume() sample.Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localVolume
}

// SetLocalVolume updates the creator's local volume and re-applies it to
// every Playback the creator has created so far (§4.F "set local_volume,
// applied to every Playback whose creator matches").
func (c *Creator) SetLocalVolume(v sample.Sample) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("local_volume %v out of range [0,1]: %w", v, errs.InvalidArgument)
	}
	c.mu.Lock()
	c.localVolume = v
	playbacks := append([]*playback.Playback(nil), c.playbacks...)
	c.mu.Unlock()

	for _, pb := range playbacks {
		if err := pb.SetLocalVolume(v); err != nil {
			return err
		}
	}
	return nil
}

// Engine owns one OutputDevice, one Mixer thread, and the buffer/playback
// pools created through it (§4.F).
type Engine struct {
	cfg config.Config
	dev device.Device

	playlist *mixer.Playlist
	mix      *mixer.Mixer

	// callLock serialises master-volume/suspend/resume per §5's "Engine
	// call lock", reporting Busy rather than blocking on contention.
	callLock sync.Mutex
	inCall   bool
	suspended bool

	poolMu    sync.Mutex
	buffers   map[*buffer.SoundBuffer]struct{}
	playbacks map[*playback.Playback]struct{}
}

// New opens dev with parameters derived from cfg and starts the mixer
// thread. The caller owns dev's construction (e.g. dummy.New() or
// portaudiodev.New(idx)) so tests can inject a fake.
func New(cfg config.Config, dev device.Device) (*Engine, error) {
	bufferFrames := cfg.SampleRate * cfg.BufferTimeMS / 1000
	if bufferFrames < 1 {
		bufferFrames = 1
	}
	if bufferFrames > 65535 {
		bufferFrames = 65535
	}

	devCfg := device.Config{
		ChannelMode:  cfg.ChannelMode,
		SampleFormat: cfg.SampleFormat,
		SampleRate:   cfg.SampleRate,
		BufferFrames: bufferFrames,
	}
	info, err := dev.Open(devCfg)
	if err != nil {
		return nil, fmt.Errorf("engine: open device: %w", err)
	}
	if cfg.Banner {
		fmt.Fprintf(os.Stderr, "[engine] device %q opened: %v %v %dHz, %d frames/buffer\n",
			info.Name, cfg.ChannelMode, cfg.SampleFormat, cfg.SampleRate, bufferFrames)
	}

	playlist := mixer.NewPlaylist()
	mix := mixer.New(dev, playlist, cfg.SampleRate, cfg.ChannelMode, cfg.SampleFormat, bufferFrames)
	mix.SetDither(cfg.Dither)
	if err := mix.Start(); err != nil {
		return nil, fmt.Errorf("engine: start mixer: %w", err)
	}

	return &Engine{
		cfg:       cfg,
		dev:       dev,
		playlist:  playlist,
		mix:       mix,
		buffers:   make(map[*buffer.SoundBuffer]struct{}),
		playbacks: make(map[*playback.Playback]struct{}),
	}, nil
}

// fillBufferDescriptor substitutes absent fields from engine config.
func (e *Engine) fillBufferDescriptor(desc BufferDescriptor) buffer.Descriptor {
	out := buffer.Descriptor{
		LengthFrames: desc.LengthFrames,
		ChannelMode:  desc.ChannelMode,
		Format:       desc.Format,
		SampleRate:   desc.SampleRate,
	}
	if !desc.HasMode {
		out.ChannelMode = e.cfg.ChannelMode
	}
	if !desc.HasFormat {
		out.Format = e.cfg.SampleFormat
	}
	if !desc.HasRate {
		out.SampleRate = e.cfg.SampleRate
	}
	return out
}

// CreateBuffer allocates a SoundBuffer, substituting absent descriptor
// fields from engine configuration (§4.F).
func (e *Engine) CreateBuffer(desc BufferDescriptor) (*buffer.SoundBuffer, error) {
	buf, err := buffer.New(e.fillBufferDescriptor(desc))
	if err != nil {
		return nil, err
	}
	e.poolMu.Lock()
	e.buffers[buf] = struct{}{}
	e.poolMu.Unlock()
	return buf, nil
}

// CreatePlayback creates a disabled Playback over buf, owned by creator,
// and registers it with the engine's playback pool. Pass notify=true for
// callers that need START/STOP/ADVANCE events (e.g. Stream).
func (e *Engine) CreatePlayback(creator *Creator, buf *buffer.SoundBuffer, notify bool) *playback.Playback {
	pb := playback.New(buf, e.playlist, creator.LocalVolume(), notify)
	creator.register(pb)
	e.poolMu.Lock()
	e.playbacks[pb] = struct{}{}
	e.poolMu.Unlock()
	return pb
}

// CreateStream creates a ring-buffer Stream backed by a fresh buffer and
// playback, both owned by creator (§4.F, §4.D).
func (e *Engine) CreateStream(creator *Creator, desc StreamDescriptor) (*stream.Stream, error) {
	sampleRate := desc.SampleRate
	if !desc.HasRate {
		sampleRate = e.cfg.SampleRate
	}
	bufferSize := desc.BufferSizeFrames
	if !desc.HasBufferSize {
		bufferSize = sampleRate / 5
	}
	prebuffer := desc.Prebuffer
	if !desc.HasPrebuffer {
		prebuffer = 0
	}
	if bufferSize > 5*sampleRate {
		return nil, fmt.Errorf("engine: stream buffersize %d exceeds 5x samplerate %d: %w", bufferSize, sampleRate, errs.LimitExceeded)
	}

	buf, err := e.CreateBuffer(BufferDescriptor{
		LengthFrames: bufferSize,
		ChannelMode:  desc.ChannelMode,
		Format:       desc.Format,
		SampleRate:   sampleRate,
		HasLength:    true,
		HasMode:      desc.HasMode,
		HasFormat:    desc.HasFormat,
		HasRate:      true,
	})
	if err != nil {
		return nil, err
	}

	pb := e.CreatePlayback(creator, buf, true)
	return stream.New(buf, pb, sampleRate, bufferSize, prebuffer, func() int { return int(e.mix.OutputDelayMS()) }), nil
}

// CreateMusicProvider probes filename against every registered decoder
// backend. Only WAVE is currently registered (§4.G).
func (e *Engine) CreateMusicProvider(filename string) (musicprovider.Provider, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("engine: open %s: %w", filename, errs.IoFailure)
	}
	header := make([]byte, 12)
	_, readErr := f.Read(header)
	f.Close()
	if readErr != nil {
		return nil, fmt.Errorf("engine: read header of %s: %w", filename, errs.IoFailure)
	}

	if wave.Probe(header, filename) {
		return wave.Open(filename)
	}
	return nil, fmt.Errorf("engine: no music provider recognises %s: %w", filename, errs.Unsupported)
}

// GetMasterVolume returns the effective output volume: the hardware volume
// if the device's GetVolume reports one, else the mixer's soft master volume.
func (e *Engine) GetMasterVolume() float64 {
	if vol, ok := e.dev.GetVolume(); ok {
		return vol
	}
	return float64(e.mix.SoftMasterVolume())
}

// SetMasterVolume dispatches to hardware volume when available, else the
// mixer's soft master volume (§4.F).
func (e *Engine) SetMasterVolume(vol float64) error {
	if vol < 0 || vol > 1 {
		return fmt.Errorf("master_volume %v out of range [0,1]: %w", vol, errs.InvalidArgument)
	}
	if err := e.beginCall(); err != nil {
		return err
	}
	defer e.endCall()

	if err := e.dev.SetVolume(vol); err == nil {
		return nil
	}
	e.mix.SetSoftMasterVolume(float32(vol))
	return nil
}

// GetMasterFeedback returns the most recent per-channel peak-to-trough
// span for the front left/right channels (§4.F, GLOSSARY "Feedback").
func (e *Engine) GetMasterFeedback() (left, right float32) {
	return e.mix.Feedback()
}

// beginCall acquires the engine call lock without blocking, returning
// Busy on contention (§5 "Engine call lock: serialises master-volume /
// suspend / resume").
func (e *Engine) beginCall() error {
	e.callLock.Lock()
	if e.inCall {
		e.callLock.Unlock()
		return errs.Busy
	}
	e.inCall = true
	e.callLock.Unlock()
	return nil
}

func (e *Engine) endCall() {
	e.callLock.Lock()
	e.inCall = false
	e.callLock.Unlock()
}

// Suspend stops the mixer thread and suspends the device (§5: "Engine
// suspend/resume: blocked on the mixer thread joining").
func (e *Engine) Suspend() error {
	if err := e.beginCall(); err != nil {
		return err
	}
	defer e.endCall()

	if e.suspended {
		return nil
	}
	e.mix.Stop()
	if err := e.dev.Suspend(); err != nil {
		return err
	}
	e.suspended = true
	return nil
}

// Resume restarts the device and the mixer thread after Suspend.
func (e *Engine) Resume() error {
	if err := e.beginCall(); err != nil {
		return err
	}
	defer e.endCall()

	if !e.suspended {
		return nil
	}
	if err := e.dev.Resume(); err != nil {
		return err
	}
	if err := e.mix.Start(); err != nil {
		return err
	}
	e.suspended = false
	return nil
}

// Destroy tears the engine down in the order §4.F mandates: stop the
// mixer thread, close the device, drain the playlist (dropping strong
// references), release the buffer/playback pools.
func (e *Engine) Destroy() error {
	e.mix.Stop()
	closeErr := e.dev.Close()

	e.playlist.Drain()

	e.poolMu.Lock()
	e.buffers = make(map[*buffer.SoundBuffer]struct{})
	e.playbacks = make(map[*playback.Playback]struct{})
	e.poolMu.Unlock()

	return closeErr
}
