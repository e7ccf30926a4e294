package buffer

import (
	"testing"

	"github.com/fusionsound/fusionsound/internal/sample"
)

func fullLevels(v sample.Sample) [6]sample.Sample {
	return [6]sample.Sample{v, v, v, v, v, v}
}

func newMonoBuffer(t *testing.T, frames int, value sample.Sample) *SoundBuffer {
	t.Helper()
	buf, err := New(Descriptor{
		LengthFrames: frames,
		ChannelMode:  sample.Mono,
		Format:       sample.FormatF32,
		SampleRate:   44100,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	raw, err := buf.Lock(0, 0)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	for i := 0; i < frames; i++ {
		sample.EncodeFrame(sample.FormatF32, raw[i*buf.BytesPerFrame():], 1, 0, value)
	}
	buf.Unlock()
	return buf
}

// TestResamplingLength verifies property #4: one tick at unity pitch with
// matching rates advances the cursor by exactly maxFrames Q14 units mod L.
func TestResamplingLength(t *testing.T) {
	buf := newMonoBuffer(t, 100, 0.5)
	dest := make([]sample.Sample, 10*int(sample.CanCount))
	newPos, mixed, written, done := buf.MixInto(dest, 44100, sample.Stereo, 10, 0, -1, fullLevels(1), Q14One, 1, 0.707, 0.707)
	if done {
		t.Fatalf("looping playback should never report done")
	}
	if mixed != 10 || written != 10 {
		t.Fatalf("expected 10 frames mixed/written, got %d/%d", mixed, written)
	}
	if newPos != 10 {
		t.Fatalf("expected cursor at frame 10, got %d", newPos)
	}
}

// TestResamplingWrap verifies the cursor wraps modulo the buffer length.
func TestResamplingWrap(t *testing.T) {
	buf := newMonoBuffer(t, 10, 0.25)
	dest := make([]sample.Sample, 15*int(sample.CanCount))
	newPos, _, written, _ := buf.MixInto(dest, 44100, sample.Stereo, 15, 5, -1, fullLevels(1), Q14One, 1, 0.707, 0.707)
	if written != 15 {
		t.Fatalf("expected 15 frames written, got %d", written)
	}
	// position 5, +15 frames = 20, mod 10 = 0.
	if newPos != 0 {
		t.Fatalf("expected wrapped position 0, got %d", newPos)
	}
}

// TestStopReached verifies the kernel reports done when stop is reached
// within max_frames, and does not overrun past it.
func TestStopReached(t *testing.T) {
	buf := newMonoBuffer(t, 1000, 0.5)
	dest := make([]sample.Sample, 2000*int(sample.CanCount))
	_, _, written, done := buf.MixInto(dest, 44100, sample.Mono, 2000, 0, 999, fullLevels(1), Q14One, 1, 0.707, 0.707)
	if !done {
		t.Fatalf("expected done=true when stop is reached")
	}
	if written != 999 {
		t.Fatalf("expected 999 frames written to stop at 999, got %d", written)
	}
}

// TestMonoReplicatesIntoRight verifies mono sources replicate L into R.
func TestMonoReplicatesIntoRight(t *testing.T) {
	buf := newMonoBuffer(t, 10, 0.5)
	dest := make([]sample.Sample, 1*int(sample.CanCount))
	buf.MixInto(dest, 44100, sample.Stereo, 1, 0, -1, fullLevels(1), Q14One, 1, 0.707, 0.707)
	l := dest[sample.CanL]
	r := dest[sample.CanR]
	if l != r {
		t.Fatalf("mono source should mix equally into L and R, got L=%v R=%v", l, r)
	}
}

// TestVolumeLinearity verifies property #5: doubling every levels[c]
// doubles every accumulator sample, up to clipping.
func TestVolumeLinearity(t *testing.T) {
	buf := newMonoBuffer(t, 10, 0.1)
	dest1 := make([]sample.Sample, 1*int(sample.CanCount))
	buf.MixInto(dest1, 44100, sample.Stereo, 1, 0, -1, fullLevels(0.5), Q14One, 1, 0.707, 0.707)

	buf2 := newMonoBuffer(t, 10, 0.1)
	dest2 := make([]sample.Sample, 1*int(sample.CanCount))
	buf2.MixInto(dest2, 44100, sample.Stereo, 1, 0, -1, fullLevels(1.0), Q14One, 1, 0.707, 0.707)

	for c := 0; c < int(sample.CanCount); c++ {
		got := float32(dest2[c])
		want := float32(dest1[c]) * 2
		if diff := got - want; diff > 1e-5 || diff < -1e-5 {
			t.Errorf("channel %d: doubling levels gave %v, want %v", c, got, want)
		}
	}
}

// TestCenterDownmixToStereo exercises the fold path: a buffer whose mode
// carries a centre channel, mixed to a dest mode without one, should fold
// the centre energy equally into L and R.
func TestCenterDownmixToStereo(t *testing.T) {
	buf, err := New(Descriptor{
		LengthFrames: 4,
		ChannelMode:  sample.Stereo30, // L, C, R
		Format:       sample.FormatF32,
		SampleRate:   44100,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	raw, _ := buf.Lock(0, 0)
	for i := 0; i < 4; i++ {
		frame := raw[i*buf.BytesPerFrame():]
		sample.EncodeFrame(sample.FormatF32, frame, 3, 0, 0) // L
		sample.EncodeFrame(sample.FormatF32, frame, 3, 1, 1) // C
		sample.EncodeFrame(sample.FormatF32, frame, 3, 2, 0) // R
	}
	buf.Unlock()

	dest := make([]sample.Sample, 1*int(sample.CanCount))
	buf.MixInto(dest, 44100, sample.Stereo, 1, 0, -1, fullLevels(1), Q14One, 1, 0.707, 0.707)

	if dest[sample.CanL] == 0 || dest[sample.CanR] == 0 {
		t.Fatalf("expected centre energy folded into L/R, got L=%v R=%v", dest[sample.CanL], dest[sample.CanR])
	}
	if dest[sample.CanC] != 0 {
		t.Fatalf("dest mode without centre should not accumulate into CanC, got %v", dest[sample.CanC])
	}
	if dest[sample.CanL] != dest[sample.CanR] {
		t.Fatalf("centre fold should be symmetric, got L=%v R=%v", dest[sample.CanL], dest[sample.CanR])
	}
}

func TestLockSingleDiscipline(t *testing.T) {
	buf := newMonoBuffer(t, 10, 0)
	if _, err := buf.Lock(0, 1); err != nil {
		t.Fatalf("first lock should succeed: %v", err)
	}
	if _, err := buf.Lock(0, 1); err == nil {
		t.Fatalf("second concurrent lock should fail")
	}
	buf.Unlock()
	if _, err := buf.Lock(0, 1); err != nil {
		t.Fatalf("lock after unlock should succeed: %v", err)
	}
}

func TestLockOutOfRange(t *testing.T) {
	buf := newMonoBuffer(t, 10, 0)
	if _, err := buf.Lock(5, 10); err == nil {
		t.Fatalf("expected out-of-range lock to fail")
	}
}
