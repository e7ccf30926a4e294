// Package wave implements the WAVE backend of the MusicProvider contract
// (§4.G), grounded on
// original_source/interfaces/IFusionSoundMusicProvider/ifusionsoundmusicprovider_wave.c.
// Probing and header parsing are done by hand per §6's WAVE probe
// signature; sample decoding is delegated to github.com/go-audio/wav.
package wave

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/fusionsound/fusionsound/internal/buffer"
	"github.com/fusionsound/fusionsound/internal/errs"
	"github.com/fusionsound/fusionsound/internal/musicprovider"
	"github.com/fusionsound/fusionsound/internal/sample"
)

// Probe reports whether header (the file's first bytes, at least 12) and
// filename identify a WAVE file this provider can open, per §6: `"RIFF"`
// at offset 0, `"WAVE"` at offset 8, a `"fmt "` chunk with PCM format tag 1
// and bit depth 8, 16, 24 or 32. The original rejects unsupported formats
// at probe time rather than at first decode, carried forward here.
func Probe(header []byte, filename string) bool {
	if len(header) < 12 || string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return false
	}
	f, err := os.Open(filename)
	if err != nil {
		return false
	}
	defer f.Close()
	fmtChunk, _, err := scanChunks(f)
	if err != nil {
		return false
	}
	return fmtChunk != nil && fmtChunk.formatTag == 1 && validDepth(fmtChunk.bitsPerSample)
}

func validDepth(bits uint16) bool {
	switch bits {
	case 8, 16, 24, 32:
		return true
	default:
		return false
	}
}

type fmtChunkInfo struct {
	formatTag     uint16
	channels      uint16
	sampleRate    uint32
	bitsPerSample uint16
}

// scanChunks walks the RIFF chunk list looking for "fmt " and "data",
// returning the fmt info and the data chunk's (offset, size) in the file.
func scanChunks(f *os.File) (*fmtChunkInfo, [2]int64, error) {
	if _, err := f.Seek(12, io.SeekStart); err != nil {
		return nil, [2]int64{}, err
	}
	var fci *fmtChunkInfo
	var dataOffset, dataSize int64
	for {
		var id [4]byte
		var size uint32
		if err := binary.Read(f, binary.LittleEndian, &id); err != nil {
			break
		}
		if err := binary.Read(f, binary.LittleEndian, &size); err != nil {
			break
		}
		pos, _ := f.Seek(0, io.SeekCurrent)

		switch string(id[:]) {
		case "fmt ":
			buf := make([]byte, size)
			if _, err := io.ReadFull(f, buf); err != nil {
				return fci, [2]int64{dataOffset, dataSize}, err
			}
			fci = &fmtChunkInfo{
				formatTag:     binary.LittleEndian.Uint16(buf[0:2]),
				channels:      binary.LittleEndian.Uint16(buf[2:4]),
				sampleRate:    binary.LittleEndian.Uint32(buf[4:8]),
				bitsPerSample: binary.LittleEndian.Uint16(buf[14:16]),
			}
		case "data":
			dataOffset = pos
			dataSize = int64(size)
			if fci != nil {
				return fci, [2]int64{dataOffset, dataSize}, nil
			}
		}

		next := pos + int64(size) + int64(size&1)
		if _, err := f.Seek(next, io.SeekStart); err != nil {
			break
		}
	}
	return fci, [2]int64{dataOffset, dataSize}, nil
}

// Provider decodes a WAVE file into PCM frames on demand.
type Provider struct {
	path string

	channels   int
	sampleRate int
	format     sample.Format
	dataOffset int64
	dataSize   int64
	lengthFrames int

	mu       sync.Mutex
	cond     *sync.Cond
	status   musicprovider.Status
	looping  bool
	posFrame int64
	stopReq  bool
}

// Open parses filename's header and returns a ready-to-play Provider.
func Open(filename string) (*Provider, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filename, errs.IoFailure)
	}
	defer f.Close()

	header := make([]byte, 12)
	if _, err := io.ReadFull(f, header); err != nil || string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%s is not a WAVE file: %w", filename, errs.Unsupported)
	}

	fci, dataRange, err := scanChunks(f)
	if err != nil || fci == nil {
		return nil, fmt.Errorf("%s: no fmt chunk: %w", filename, errs.Unsupported)
	}
	if fci.formatTag != 1 {
		return nil, fmt.Errorf("%s: unsupported WAVE format tag %d: %w", filename, fci.formatTag, errs.Unsupported)
	}
	format, err := formatForDepth(fci.bitsPerSample)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	bytesPerFrame := int(fci.channels) * sample.BytesPerSample(format)
	lengthFrames := 0
	if bytesPerFrame > 0 {
		lengthFrames = int(dataRange[1]) / bytesPerFrame
	}

	p := &Provider{
		path:         filename,
		channels:     int(fci.channels),
		sampleRate:   int(fci.sampleRate),
		format:       format,
		dataOffset:   dataRange[0],
		dataSize:     dataRange[1],
		lengthFrames: lengthFrames,
		status:       musicprovider.StatusStop,
	}
	p.cond = sync.NewCond(&p.mu)
	return p, nil
}

func formatForDepth(bits uint16) (sample.Format, error) {
	switch bits {
	case 8:
		return sample.FormatU8, nil
	case 16:
		return sample.FormatS16, nil
	case 24:
		return sample.FormatS24, nil
	case 32:
		return sample.FormatS32, nil
	default:
		return 0, fmt.Errorf("unsupported bit depth %d: %w", bits, errs.Unsupported)
	}
}

func (p *Provider) Capabilities() musicprovider.Capability {
	return musicprovider.CapBasic | musicprovider.CapSeek
}

func (p *Provider) TrackCount() int { return 1 }

func (p *Provider) TrackDescription(track int) (musicprovider.TrackDescription, error) {
	if track != 0 {
		return musicprovider.TrackDescription{}, fmt.Errorf("track %d out of range: %w", track, errs.InvalidArgument)
	}
	return musicprovider.TrackDescription{Encoding: "PCM"}, nil
}

func (p *Provider) BufferDescription() musicprovider.BufferDescription {
	return musicprovider.BufferDescription{
		LengthFrames: p.lengthFrames,
		ChannelMode:  channelModeForCount(p.channels),
		Format:       p.format,
		SampleRate:   p.sampleRate,
	}
}

func (p *Provider) StreamDescription() musicprovider.StreamDescription {
	return musicprovider.StreamDescription{
		ChannelMode: channelModeForCount(p.channels),
		Format:      p.format,
		SampleRate:  p.sampleRate,
	}
}

func channelModeForCount(n int) sample.ChannelMode {
	if n <= 1 {
		return sample.Mono
	}
	return sample.Stereo
}

func (p *Provider) Status() musicprovider.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Provider) setStatus(s musicprovider.Status) {
	p.mu.Lock()
	p.status = s
	p.cond.Broadcast()
	p.mu.Unlock()
}

// WaitStatus blocks until the status equals mask or timeoutMS elapses
// (0 = forever), per §4.G/§5. mask is a single Status value; statuses are
// not combined as bit flags, so waiting for any one of several statuses is
// not supported.
func (p *Provider) WaitStatus(mask musicprovider.Status, timeoutMS int) (musicprovider.Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	deadline := time.Time{}
	if timeoutMS > 0 {
		deadline = time.Now().Add(time.Duration(timeoutMS) * time.Millisecond)
	}
	for p.status != mask {
		if timeoutMS == 0 {
			p.cond.Wait()
			continue
		}
		if time.Now().After(deadline) {
			return p.status, errs.Timeout
		}
		timer := time.AfterFunc(time.Until(deadline), func() {
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		})
		p.cond.Wait()
		timer.Stop()
	}
	return p.status, nil
}

func (p *Provider) SetLooping(loop bool) {
	p.mu.Lock()
	p.looping = loop
	p.mu.Unlock()
}

func (p *Provider) SeekTo(seconds float64) error {
	if seconds < 0 {
		return fmt.Errorf("negative seek position: %w", errs.InvalidArgument)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	frame := int64(seconds * float64(p.sampleRate))
	if frame > int64(p.lengthFrames) {
		frame = int64(p.lengthFrames)
	}
	p.posFrame = frame
	return nil
}

func (p *Provider) GetPos() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return float64(p.posFrame) / float64(p.sampleRate), nil
}

func (p *Provider) GetLength() float64 {
	return float64(p.lengthFrames) / float64(p.sampleRate)
}

func (p *Provider) Stop() {
	p.mu.Lock()
	p.stopReq = true
	p.mu.Unlock()
}

func (p *Provider) Close() error { return nil }

func (p *Provider) bytesPerFrame() int {
	return p.channels * sample.BytesPerSample(p.format)
}

// decodeFrom opens a fresh decoder at the file's start, forwards it past the
// RIFF/fmt/data headers, discards posFrame frames of PCM, and then reads
// chunk frames at a time, invoking emit(rawBytes, frames) for each chunk,
// until EOF, a stop request, or emit returns false. The decoder's own
// FwdToPCM does the header walk; PCMBuffer only ever reads forward from
// there, so there is no direct seek-to-frame — posFrame is discarded by
// decoding and throwing away leading frames instead.
func (p *Provider) decodeFrom(posFrame int64, emit func(raw []byte, frames int) (bool, error)) error {
	f, err := os.Open(p.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", p.path, errs.IoFailure)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if err := dec.FwdToPCM(); err != nil {
		return fmt.Errorf("seek to PCM data: %w", errs.IoFailure)
	}

	bpf := p.bytesPerFrame()
	const chunkFrames = 4096
	raw := make([]byte, chunkFrames*bpf)
	pcmBuf := &audio.IntBuffer{Format: &audio.Format{NumChannels: p.channels, SampleRate: p.sampleRate}, Data: make([]int, chunkFrames*p.channels)}

	skip := posFrame
	for {
		p.mu.Lock()
		stop := p.stopReq
		p.mu.Unlock()
		if stop {
			return nil
		}

		n, err := dec.PCMBuffer(pcmBuf)
		if n == 0 && err == io.EOF {
			return nil
		}
		if err != nil && err != io.EOF {
			return fmt.Errorf("decode: %w", errs.IoFailure)
		}
		eof := n < len(pcmBuf.Data)

		frames := int64(n / p.channels)
		data := pcmBuf.Data[:n]

		if skip > 0 {
			if skip >= frames {
				skip -= frames
				if eof {
					return nil
				}
				continue
			}
			data = data[skip*int64(p.channels):]
			frames -= skip
			skip = 0
		}

		encodeSamples(raw, data, p.format, p.channels, int(frames))

		cont, err := emit(raw[:frames*int64(bpf)], int(frames))
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.posFrame += frames
		p.mu.Unlock()
		if !cont {
			return nil
		}
		if eof {
			return nil
		}
	}
}

// encodeSamples converts go-audio int PCM samples (integers at the
// decoder's native bit depth) into FusionSound's on-wire format bytes.
func encodeSamples(dst []byte, ints []int, format sample.Format, channels, frames int) {
	for t := 0; t < frames; t++ {
		frame := dst[t*channels*sample.BytesPerSample(format):]
		for c := 0; c < channels; c++ {
			s := intToSample(ints[t*channels+c], format)
			sample.EncodeFrame(format, frame, channels, c, s.Clip())
		}
	}
}

// intToSample normalises one raw decoded integer into FusionSound's
// [-1,1) internal range according to its source bit depth.
func intToSample(v int, format sample.Format) sample.Sample {
	switch format {
	case sample.FormatU8:
		return sample.Sample((float32(v) - 128) / 128)
	case sample.FormatS16:
		return sample.Sample(float32(v) / 32768)
	case sample.FormatS24:
		return sample.Sample(float32(v) / 8388608)
	case sample.FormatS32:
		return sample.Sample(float32(v) / 2147483648)
	default:
		return 0
	}
}

// PlayToStream decodes from the current position and writes frames into
// dest until EOF or Stop, per §4.G.
func (p *Provider) PlayToStream(dest musicprovider.StreamWriter) error {
	p.mu.Lock()
	p.stopReq = false
	pos := p.posFrame
	p.mu.Unlock()
	p.setStatus(musicprovider.StatusPlay)

	err := p.decodeFrom(pos, func(raw []byte, frames int) (bool, error) {
		if err := dest.Write(raw, frames); err != nil {
			return false, err
		}
		return true, nil
	})

	p.mu.Lock()
	stopped := p.stopReq
	p.mu.Unlock()
	if stopped {
		p.setStatus(musicprovider.StatusStop)
	} else {
		p.setStatus(musicprovider.StatusFinished)
	}
	return err
}

// PlayToBuffer decodes directly into dest, calling cb after each chunk.
func (p *Provider) PlayToBuffer(dest *buffer.SoundBuffer, cb musicprovider.BufferCallback) error {
	p.mu.Lock()
	p.stopReq = false
	pos := p.posFrame
	p.mu.Unlock()
	p.setStatus(musicprovider.StatusPlay)

	written := 0
	err := p.decodeFrom(pos, func(raw []byte, frames int) (bool, error) {
		if written+frames > dest.LengthFrames() {
			frames = dest.LengthFrames() - written
		}
		if frames <= 0 {
			return false, nil
		}
		dst, err := dest.Lock(written, frames)
		if err != nil {
			return false, err
		}
		copy(dst, raw[:frames*p.bytesPerFrame()])
		dest.Unlock()
		written += frames
		cont := true
		if cb != nil {
			cont = cb(frames)
		}
		return cont && written < dest.LengthFrames(), nil
	})

	p.mu.Lock()
	stopped := p.stopReq
	p.mu.Unlock()
	if stopped {
		p.setStatus(musicprovider.StatusStop)
	} else {
		p.setStatus(musicprovider.StatusFinished)
	}
	return err
}

var _ musicprovider.Provider = (*Provider)(nil)
