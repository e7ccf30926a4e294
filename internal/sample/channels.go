package sample

// ChannelMode is one of FusionSound's 13 canonical channel layouts (§6).
type ChannelMode uint8

const (
	Mono ChannelMode = iota
	Stereo
	Stereo21
	Stereo30
	Stereo31
	Surround30
	Surround31
	Surround40_2F2R
	Surround41_2F2R
	Surround40_3F1R
	Surround41_3F1R
	Surround50
	Surround51
)

func (m ChannelMode) String() string {
	if info, ok := channelModeTable[m]; ok {
		return info.name
	}
	return "unknown"
}

// Canonical is an index into the mixer's fixed 6-wide accumulator layout:
// L, R, C, Rl, Rr, LFE (§4.B).
type Canonical int

const (
	CanL Canonical = iota
	CanR
	CanC
	CanRl
	CanRr
	CanLFE
	CanCount
)

type channelModeInfo struct {
	name     string
	channels int
	layout   []Canonical // physical channel i maps to layout[i]
	hasC     bool
	rears    int // 0, 1 (single Rear) or 2 (Rl/Rr)
	hasLFE   bool
}

var channelModeTable = map[ChannelMode]channelModeInfo{
	Mono:            {"mono", 1, []Canonical{CanL}, false, 0, false},
	Stereo:          {"stereo", 2, []Canonical{CanL, CanR}, false, 0, false},
	Stereo21:        {"stereo2.1", 3, []Canonical{CanL, CanR, CanLFE}, false, 0, true},
	Stereo30:        {"stereo3.0", 3, []Canonical{CanL, CanC, CanR}, true, 0, false},
	Stereo31:        {"stereo3.1", 4, []Canonical{CanL, CanC, CanR, CanLFE}, true, 0, true},
	Surround30:      {"surround3.0", 3, []Canonical{CanL, CanR, CanRl}, false, 1, false},
	Surround31:      {"surround3.1", 4, []Canonical{CanL, CanR, CanRl, CanLFE}, false, 1, true},
	Surround40_2F2R: {"surround4.0-2f2r", 4, []Canonical{CanL, CanR, CanRl, CanRr}, false, 2, false},
	Surround41_2F2R: {"surround4.1-2f2r", 5, []Canonical{CanL, CanR, CanRl, CanRr, CanLFE}, false, 2, true},
	Surround40_3F1R: {"surround4.0-3f1r", 4, []Canonical{CanL, CanC, CanR, CanRl}, true, 1, false},
	Surround41_3F1R: {"surround4.1-3f1r", 5, []Canonical{CanL, CanC, CanR, CanRl, CanLFE}, true, 1, true},
	Surround50:      {"surround5.0", 5, []Canonical{CanL, CanC, CanR, CanRl, CanRr}, true, 2, false},
	Surround51:      {"surround5.1", 6, []Canonical{CanL, CanC, CanR, CanRl, CanRr, CanLFE}, true, 2, true},
}

// ValidChannelMode reports whether m is one of the 13 recognised layouts.
func ValidChannelMode(m ChannelMode) bool {
	_, ok := channelModeTable[m]
	return ok
}

// Channels returns the physical channel count for m.
func Channels(m ChannelMode) int {
	return channelModeTable[m].channels
}

// Layout returns, for each physical channel of m in order, which canonical
// accumulator slot it feeds.
func Layout(m ChannelMode) []Canonical {
	return channelModeTable[m].layout
}

// HasCenter, Rears and HasLFE report which canonical channels m carries as
// distinct physical channels (as opposed to ones synthesised on downmix).
func HasCenter(m ChannelMode) bool { return channelModeTable[m].hasC }
func Rears(m ChannelMode) int      { return channelModeTable[m].rears }
func HasLFE(m ChannelMode) bool    { return channelModeTable[m].hasLFE }

// ChannelModeTag packs m's layout into a bit field
// [channels:6][center:1][rears:2][lfe:1], per §6.
func ChannelModeTag(m ChannelMode) uint32 {
	info := channelModeTable[m]
	center := uint32(0)
	if info.hasC {
		center = 1
	}
	lfe := uint32(0)
	if info.hasLFE {
		lfe = 1
	}
	return uint32(info.channels&0x3f)<<4 | center<<3 | uint32(info.rears&0x3)<<1 | lfe
}
