package buffer

import "github.com/fusionsound/fusionsound/internal/sample"

// Q14Shift is the number of fractional bits in the pitch/cursor fixed-point
// representation used by the mixing kernel (§GLOSSARY).
const Q14Shift = 14

// Q14One represents a 1:1 pitch ratio in Q14 fixed point.
const Q14One int64 = 1 << Q14Shift

// downmixCoeff is the fixed mixing-matrix coefficient ("¾") applied when
// folding a channel the destination mode lacks into the channels it does
// have (§4.B). It is multiplied by the Playback's center/rear attenuation.
const downmixCoeff = sample.Sample(0.75)

// MixInto is FusionSound's mixing kernel: the hottest code path and the
// centrepiece of the engine (§4.B).
//
// dest is the mixer's interleaved 6-wide accumulator (L,R,C,Rl,Rr,LFE per
// frame); it must have room for at least maxFrames frames and is
// accumulated into, never overwritten. pos and stop are frame positions in
// the source buffer (stop < 0 means "loop forever"). pitchQ14 already
// folds in direction (its sign selects playback direction). levels holds
// the per-canonical-channel gain, center/rear the Playback's downmix
// attenuation, and volume the combined soft-master × local-volume scalar.
//
// Returns the new source position, the number of frames actually produced
// (== writtenFrames in this implementation, kept distinct for parity with
// the spec's signature), how many frames were written into dest, and
// whether the source reached its configured stop position.
func (b *SoundBuffer) MixInto(
	dest []sample.Sample,
	destRate int,
	destMode sample.ChannelMode,
	maxFrames int,
	pos int64,
	stop int64,
	levels [6]sample.Sample,
	pitchQ14 int64,
	volume sample.Sample,
	center, rear sample.Sample,
) (newPos int64, mixedFrames int, writtenFrames int, done bool) {

	lengthQ14 := int64(b.lengthFrames) << Q14Shift
	inc := (int64(b.sampleRate) * pitchQ14) / int64(destRate)

	cursor := qmod(pos<<Q14Shift, lengthQ14)

	limit := maxFrames
	reachesStop := false
	if stop >= 0 {
		stopQ14 := qmod(stop<<Q14Shift, lengthQ14)
		absInc := inc
		if absInc < 0 {
			absInc = -absInc
		}
		var dist int64
		if inc >= 0 {
			dist = qmod(stopQ14-cursor, lengthQ14)
		} else {
			dist = qmod(cursor-stopQ14, lengthQ14)
		}
		if absInc == 0 {
			if dist == 0 {
				limit = 0
				reachesStop = true
			}
		} else {
			framesToStop := int(ceilDiv(dist, absInc))
			if framesToStop <= maxFrames {
				limit = framesToStop
				reachesStop = true
			}
		}
	}

	for t := 0; t < limit; t++ {
		srcIndex := int(cursor >> Q14Shift)
		if srcIndex >= b.lengthFrames {
			srcIndex = srcIndex % b.lengthFrames
		}
		can := b.expandToCanonical(srcIndex)
		can = foldToDest(can, destMode, center, rear)

		base := t * int(sample.CanCount)
		for c := 0; c < int(sample.CanCount); c++ {
			if levels[c] == 0 {
				continue
			}
			dest[base+c] += can[c] * levels[c] * volume
		}

		cursor = qmod(cursor+inc, lengthQ14)
	}

	return int64(cursor >> Q14Shift), limit, limit, reachesStop
}

// expandToCanonical reads the source frame at srcIndex and expands it into
// the canonical six-channel intermediate (§4.B step 1), synthesising any
// channel the source's own mode does not carry physically (mono replicates
// L into R; a single discrete rear channel replicates into Rl and Rr;
// an absent centre becomes the L/R average).
func (b *SoundBuffer) expandToCanonical(srcIndex int) [6]sample.Sample {
	var can [6]sample.Sample
	raw := b.rawFrame(srcIndex)
	layout := sample.Layout(b.channelMode)
	for i, slot := range layout {
		can[slot] += sample.DecodeFrame(b.format, raw, b.channels, i)
	}

	if b.channelMode == sample.Mono {
		can[sample.CanR] = can[sample.CanL]
	}
	if !sample.HasCenter(b.channelMode) {
		can[sample.CanC] = (can[sample.CanL] + can[sample.CanR]).Shr(1)
	}
	switch sample.Rears(b.channelMode) {
	case 0:
		// no rear content in this source; canonical rears stay silent.
	case 1:
		can[sample.CanRr] = can[sample.CanRl]
	}
	if !sample.HasLFE(b.channelMode) {
		can[sample.CanLFE] = 0
	}
	return can
}

// foldToDest folds canonical channels the destination mode cannot carry
// into the channels it does carry, per the downmix matrix in §4.B. A
// discrete centre or rear pair the destination lacks is attenuated by
// downmixCoeff × the Playback's center/rear scalar and summed into the
// front L/R pair; a destination with a single rear channel instead
// receives the Rl/Rr average in both canonical rear slots (read by
// whichever physical channel the final device pass maps it to).
func foldToDest(can [6]sample.Sample, destMode sample.ChannelMode, center, rear sample.Sample) [6]sample.Sample {
	out := can

	if !sample.HasCenter(destMode) && can[sample.CanC] != 0 {
		contrib := can[sample.CanC] * downmixCoeff * center
		out[sample.CanL] += contrib
		out[sample.CanR] += contrib
		out[sample.CanC] = 0
	}

	switch sample.Rears(destMode) {
	case 0:
		if can[sample.CanRl] != 0 || can[sample.CanRr] != 0 {
			out[sample.CanL] += can[sample.CanRl] * downmixCoeff * rear
			out[sample.CanR] += can[sample.CanRr] * downmixCoeff * rear
			out[sample.CanRl] = 0
			out[sample.CanRr] = 0
		}
	case 1:
		avg := (can[sample.CanRl] + can[sample.CanRr]).Shr(1)
		out[sample.CanRl] = avg
		out[sample.CanRr] = avg
	}

	if !sample.HasLFE(destMode) {
		out[sample.CanLFE] = 0
	}

	return out
}

// qmod reduces x modulo m into [0, m), matching the wrap-around rule in
// §4.B (the cursor is reduced modulo src.length<<14 after every step).
func qmod(x, m int64) int64 {
	x %= m
	if x < 0 {
		x += m
	}
	return x
}

// ceilDiv returns ceil(a/b) for positive a, b.
func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}
