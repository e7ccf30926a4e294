package wave

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/fusionsound/fusionsound/internal/sample"
)

// writeTestWAV writes a minimal 16-bit PCM mono WAVE file of the given
// frame count, all zero samples, and returns its path.
func writeTestWAV(t *testing.T, sampleRate, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	const channels = 1
	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := frames * blockAlign

	write := func(v interface{}) {
		binary.Write(f, binary.LittleEndian, v)
	}

	f.WriteString("RIFF")
	write(uint32(36 + dataSize))
	f.WriteString("WAVE")
	f.WriteString("fmt ")
	write(uint32(16))
	write(uint16(1)) // PCM
	write(uint16(channels))
	write(uint32(sampleRate))
	write(uint32(byteRate))
	write(uint16(blockAlign))
	write(uint16(bitsPerSample))
	f.WriteString("data")
	write(uint32(dataSize))
	f.Write(make([]byte, dataSize))

	return path
}

func TestProbeValidWAV(t *testing.T) {
	path := writeTestWAV(t, 48000, 1000)
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	header := make([]byte, 12)
	f.Read(header)
	f.Close()

	if !Probe(header, path) {
		t.Fatalf("expected Probe to accept a valid PCM WAVE file")
	}
}

func TestProbeRejectsNonWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not.wav")
	os.WriteFile(path, []byte("not a wave file at all, padding to twelve"), 0o600)
	header := make([]byte, 12)
	f, _ := os.Open(path)
	f.Read(header)
	f.Close()

	if Probe(header, path) {
		t.Fatalf("expected Probe to reject a non-WAVE file")
	}
}

func TestOpenParsesMetadata(t *testing.T) {
	path := writeTestWAV(t, 44100, 44100*2)
	p, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	if p.sampleRate != 44100 {
		t.Errorf("sampleRate: got %d", p.sampleRate)
	}
	if p.format != sample.FormatS16 {
		t.Errorf("format: got %v, want S16", p.format)
	}
	if p.lengthFrames != 88200 {
		t.Errorf("lengthFrames: got %d, want 88200", p.lengthFrames)
	}
	if got := p.GetLength(); got < 1.99 || got > 2.01 {
		t.Errorf("GetLength: got %v, want ~2.0", got)
	}
	caps := p.Capabilities()
	if caps&0x1 == 0 {
		t.Errorf("expected CapBasic set")
	}
}

func TestSeekToClampsAndReports(t *testing.T) {
	path := writeTestWAV(t, 48000, 48000*10)
	p, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	if err := p.SeekTo(5.0); err != nil {
		t.Fatalf("SeekTo: %v", err)
	}
	pos, _ := p.GetPos()
	if pos < 4.99 || pos > 5.01 {
		t.Errorf("GetPos after SeekTo(5.0): got %v", pos)
	}

	if err := p.SeekTo(9999); err != nil {
		t.Fatalf("SeekTo beyond end: %v", err)
	}
	pos, _ = p.GetPos()
	if pos > 10.01 {
		t.Errorf("expected SeekTo to clamp at track length, got %v", pos)
	}
}

// recordingWriter implements musicprovider.StreamWriter by counting the
// frames of every chunk it receives, so tests can assert on total frames
// decoded.
type recordingWriter struct {
	frames int
}

func (w *recordingWriter) Write(data []byte, frames int) error {
	w.frames += frames
	return nil
}

func TestPlayToStreamDecodesAllFrames(t *testing.T) {
	const frames = 2000
	path := writeTestWAV(t, 44100, frames)
	p, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	w := &recordingWriter{}
	if err := p.PlayToStream(w); err != nil {
		t.Fatalf("PlayToStream: %v", err)
	}
	if w.frames != frames {
		t.Errorf("expected %d frames decoded, got %d", frames, w.frames)
	}
}

func TestPlayToStreamHonoursSeekTo(t *testing.T) {
	const sampleRate = 44100
	const frames = 44100 * 2
	path := writeTestWAV(t, sampleRate, frames)
	p, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	if err := p.SeekTo(1.0); err != nil {
		t.Fatalf("SeekTo: %v", err)
	}

	w := &recordingWriter{}
	if err := p.PlayToStream(w); err != nil {
		t.Fatalf("PlayToStream: %v", err)
	}
	if got, want := w.frames, frames-sampleRate; got != want {
		t.Errorf("expected %d frames decoded after SeekTo(1.0), got %d", want, got)
	}
}

func TestOpenRejectsBadFormatTag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	f, _ := os.Create(path)
	f.WriteString("RIFF")
	binary.Write(f, binary.LittleEndian, uint32(36))
	f.WriteString("WAVE")
	f.WriteString("fmt ")
	binary.Write(f, binary.LittleEndian, uint32(16))
	binary.Write(f, binary.LittleEndian, uint16(7)) // not PCM
	binary.Write(f, binary.LittleEndian, uint16(1))
	binary.Write(f, binary.LittleEndian, uint32(44100))
	binary.Write(f, binary.LittleEndian, uint32(88200))
	binary.Write(f, binary.LittleEndian, uint16(2))
	binary.Write(f, binary.LittleEndian, uint16(16))
	f.WriteString("data")
	binary.Write(f, binary.LittleEndian, uint32(0))
	f.Close()

	if _, err := Open(path); err == nil {
		t.Fatalf("expected Open to reject non-PCM format tag")
	}
}
