// Package device defines FusionSound's OutputDevice contract (§4.H): the
// boundary the Mixer drives on every tick. Concrete backends live in
// subpackages (dummy, portaudiodev).
package device

import "github.com/fusionsound/fusionsound/internal/sample"

// Capability is a bitmask of optional device features.
type Capability uint32

const (
	CapVolume Capability = 1 << iota
	CapSuspend
)

// Config carries the parameters the Mixer opens a device with. BufferFrames
// is capped at 65535 by the Engine before Open is called (§4.H).
type Config struct {
	ChannelMode  sample.ChannelMode
	SampleFormat sample.Format
	SampleRate   int
	BufferFrames int
}

// Info describes an opened device.
type Info struct {
	Name string
	Caps Capability
}

// Device is the OutputDevice contract. GetBuffer may block; a terminal
// (non-recoverable) failure is returned as an error, while the device
// backend is expected to retry recoverable underruns internally (§7).
type Device interface {
	Open(cfg Config) (Info, error)
	GetBuffer() (buf []byte, frames int, err error)
	Commit(frames int) error
	GetOutputDelay() (frames int, err error)
	GetVolume() (vol float64, ok bool)
	SetVolume(vol float64) error
	Suspend() error
	Resume() error
	Close() error
}
