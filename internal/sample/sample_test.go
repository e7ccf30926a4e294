package sample

import "testing"

func TestS16RoundTrip(t *testing.T) {
	for _, v := range []int16{-32768, -1, 0, 1, 32767, 1000, -12345} {
		s := FromS16(v).Clip()
		got := ToS16(s)
		if got != v {
			t.Errorf("S16 round trip: from %d got %d (sample=%v)", v, got, s)
		}
	}
}

func TestS32RoundTrip(t *testing.T) {
	for _, v := range []int32{-2147483648, -1, 0, 1, 2147483647, 123456789} {
		s := FromS32(v).Clip()
		got := ToS32(s)
		if diff := int64(got) - int64(v); diff > 1 || diff < -1 {
			t.Errorf("S32 round trip: from %d got %d", v, got)
		}
	}
}

func TestS24RoundTrip(t *testing.T) {
	for _, v := range []int32{s24Min, -1, 0, 1, s24Max, 1000000} {
		s := FromS24(v).Clip()
		got := ToS24(s)
		if got != v {
			t.Errorf("S24 round trip: from %d got %d", v, got)
		}
	}
}

func TestU8RoundTrip(t *testing.T) {
	for v := 0; v <= 255; v++ {
		s := FromU8(byte(v)).Clip()
		got := ToU8(s)
		if int(got) != v {
			t.Errorf("U8 round trip: from %d got %d", v, got)
		}
	}
}

func TestClipRange(t *testing.T) {
	if Sample(2.0).Clip() != Max {
		t.Errorf("clip above range should saturate to Max")
	}
	if Sample(-2.0).Clip() != Min {
		t.Errorf("clip below range should saturate to Min")
	}
}

func TestEncodeDecodeFrameS16Stereo(t *testing.T) {
	raw := make([]byte, 4)
	EncodeFrame(FormatS16, raw, 2, 0, Sample(0.5))
	EncodeFrame(FormatS16, raw, 2, 1, Sample(-0.5))
	l := DecodeFrame(FormatS16, raw, 2, 0)
	r := DecodeFrame(FormatS16, raw, 2, 1)
	if l < 0.49 || l > 0.51 {
		t.Errorf("left channel: got %v", l)
	}
	if r > -0.49 || r < -0.51 {
		t.Errorf("right channel: got %v", r)
	}
}

func TestEncodeDecodeFrameS24(t *testing.T) {
	raw := make([]byte, 6)
	EncodeFrame(FormatS24, raw, 2, 0, Sample(0.25))
	EncodeFrame(FormatS24, raw, 2, 1, Sample(-0.75))
	l := DecodeFrame(FormatS24, raw, 2, 0)
	r := DecodeFrame(FormatS24, raw, 2, 1)
	if l < 0.24 || l > 0.26 {
		t.Errorf("left channel: got %v", l)
	}
	if r < -0.76 || r > -0.74 {
		t.Errorf("right channel: got %v", r)
	}
}

func TestDitherTriangularBounded(t *testing.T) {
	g := NewLCG(1)
	step := quantStep(16)
	for i := 0; i < 1000; i++ {
		d := DitherTriangular(Sample(0), 16, g)
		if float32(d) > 2*step || float32(d) < -2*step {
			t.Fatalf("dither excursion too large: %v (step=%v)", d, step)
		}
	}
}

func TestFormatTagIncludesIndex(t *testing.T) {
	tags := map[Format]uint32{}
	for _, f := range []Format{FormatU8, FormatS16, FormatS24, FormatS32, FormatF32} {
		tag := FormatTag(f)
		for other, seen := range tags {
			if other != f && seen == tag {
				t.Fatalf("formats %v and %v collide on tag %x", f, other, tag)
			}
		}
		tags[f] = tag
	}
}

func TestChannelModeTagChannelCount(t *testing.T) {
	for m, want := range map[ChannelMode]int{
		Mono: 1, Stereo: 2, Surround51: 6, Surround50: 5,
	} {
		tag := ChannelModeTag(m)
		got := (tag >> 4) & 0x3f
		if int(got) != want {
			t.Errorf("%v: tag channel count = %d, want %d", m, got, want)
		}
	}
}
