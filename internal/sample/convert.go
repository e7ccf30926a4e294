package sample

import (
	"encoding/binary"
	"math"
)

// nativeOrder is the byte order used for S16/S24/S32/F32, which are stored
// native-endian per §6.
var nativeOrder = binary.NativeEndian

// nativeIsLittleEndian reports the host's byte order. binary.NativeEndian's
// concrete type isn't comparable to binary.LittleEndian/BigEndian with ==
// (they're distinct named types), so pack24/unpack24 go through its
// ByteOrder.String() instead.
var nativeIsLittleEndian = nativeOrder.String() == "LittleEndian"

// FromU8 converts a biased unsigned byte to a Sample. Bias is 128, scale
// maps the full [0,255] range onto [-1, 1).
func FromU8(b byte) Sample {
	return Sample((float32(b) - 128.0) / 128.0)
}

// ToU8 converts a Sample (already clipped) to a biased unsigned byte.
func ToU8(s Sample) byte {
	v := int32(float32(s)*128.0 + 128.5)
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	return byte(v)
}

// FromS16 converts a native-endian signed 16-bit sample to a Sample.
func FromS16(v int16) Sample {
	return Sample(float32(v) / 32768.0)
}

// ToS16 converts a Sample (already clipped) to a native-endian signed 16-bit sample.
func ToS16(s Sample) int16 {
	v := int32(float32(s) * 32768.0)
	if v > 32767 {
		v = 32767
	}
	if v < -32768 {
		v = -32768
	}
	return int16(v)
}

// FromS32 converts a native-endian signed 32-bit sample to a Sample.
func FromS32(v int32) Sample {
	return Sample(float64(v) / 2147483648.0)
}

// ToS32 converts a Sample (already clipped) to a native-endian signed 32-bit sample.
func ToS32(s Sample) int32 {
	v := float64(s) * 2147483648.0
	if v > 2147483647 {
		v = 2147483647
	}
	if v < -2147483648 {
		v = -2147483648
	}
	return int32(v)
}

// s24Max is the largest magnitude representable in 24-bit two's complement.
const s24Max = 1<<23 - 1
const s24Min = -(1 << 23)

// FromS24 converts a sign-extended 24-bit value (held in the low 24 bits of
// an int32) to a Sample.
func FromS24(v int32) Sample {
	return Sample(float32(v) / 8388608.0)
}

// ToS24 converts a Sample (already clipped) to a 24-bit signed value,
// returned sign-extended in an int32.
func ToS24(s Sample) int32 {
	v := int32(float32(s) * 8388608.0)
	if v > s24Max {
		v = s24Max
	}
	if v < s24Min {
		v = s24Min
	}
	return v
}

// FromF32 converts a native IEEE-754 float32 to a Sample. Identity in the
// float build.
func FromF32(v float32) Sample { return Sample(v) }

// ToF32 converts a Sample (already clipped) to a native IEEE-754 float32.
func ToF32(s Sample) float32 { return float32(s) }

// pack24 writes the low 24 bits of v into dst (3 bytes, native-endian order)
// the way a little-endian host stores them little-endian and a big-endian
// host stores them big-endian, per §6.
func pack24(dst []byte, v int32) {
	u := uint32(v) & 0xFFFFFF
	if nativeIsLittleEndian {
		dst[0] = byte(u)
		dst[1] = byte(u >> 8)
		dst[2] = byte(u >> 16)
	} else {
		dst[0] = byte(u >> 16)
		dst[1] = byte(u >> 8)
		dst[2] = byte(u)
	}
}

// unpack24 reads a sign-extended 24-bit value from a 3-byte native-endian field.
func unpack24(src []byte) int32 {
	var u uint32
	if nativeIsLittleEndian {
		u = uint32(src[0]) | uint32(src[1])<<8 | uint32(src[2])<<16
	} else {
		u = uint32(src[2]) | uint32(src[1])<<8 | uint32(src[0])<<16
	}
	if u&0x800000 != 0 {
		u |= 0xFF000000
	}
	return int32(u)
}

// DecodeFrame reads one channel's sample out of an interleaved byte buffer
// holding nChannels samples of format f, at channel index ch.
func DecodeFrame(f Format, raw []byte, nChannels, ch int) Sample {
	bps := BytesPerSample(f)
	off := ch * bps
	switch f {
	case FormatU8:
		return FromU8(raw[off])
	case FormatS16:
		return FromS16(int16(nativeOrder.Uint16(raw[off:])))
	case FormatS24:
		return FromS24(unpack24(raw[off : off+3]))
	case FormatS32:
		return FromS32(int32(nativeOrder.Uint32(raw[off:])))
	case FormatF32:
		bits := nativeOrder.Uint32(raw[off:])
		return FromF32(math.Float32frombits(bits))
	default:
		return 0
	}
}

// EncodeFrame writes one channel's sample into an interleaved byte buffer
// holding nChannels samples of format f, at channel index ch. s must already
// be clipped.
func EncodeFrame(f Format, dst []byte, nChannels, ch int, s Sample) {
	bps := BytesPerSample(f)
	off := ch * bps
	switch f {
	case FormatU8:
		dst[off] = ToU8(s)
	case FormatS16:
		nativeOrder.PutUint16(dst[off:], uint16(ToS16(s)))
	case FormatS24:
		pack24(dst[off:off+3], ToS24(s))
	case FormatS32:
		nativeOrder.PutUint32(dst[off:], uint32(ToS32(s)))
	case FormatF32:
		nativeOrder.PutUint32(dst[off:], math.Float32bits(ToF32(s)))
	}
}
