package mixer

import (
	"testing"

	"github.com/fusionsound/fusionsound/internal/buffer"
	"github.com/fusionsound/fusionsound/internal/playback"
	"github.com/fusionsound/fusionsound/internal/sample"
)

func newTestPlayback(t *testing.T, pl *Playlist) *playback.Playback {
	t.Helper()
	buf, err := buffer.New(buffer.Descriptor{
		LengthFrames:  100,
		ChannelMode:   sample.Stereo,
		Format:        sample.FormatS16,
		SampleRate:    44100,
		LengthPresent: true,
		ModePresent:   true,
		FormatPresent: true,
		RatePresent:   true,
	})
	if err != nil {
		t.Fatalf("buffer.New: %v", err)
	}
	return playback.New(buf, pl, 1.0, false)
}

func TestPlaylistAddRemoveLen(t *testing.T) {
	pl := NewPlaylist()
	pb := newTestPlayback(t, pl)

	if pl.Len() != 0 {
		t.Fatalf("expected empty playlist, got len=%d", pl.Len())
	}
	pl.Add(pb)
	if pl.Len() != 1 {
		t.Fatalf("expected len=1 after Add, got %d", pl.Len())
	}
	pl.Remove(pb)
	if pl.Len() != 0 {
		t.Fatalf("expected len=0 after Remove, got %d", pl.Len())
	}
}

func TestPlaylistSnapshotIsACopy(t *testing.T) {
	pl := NewPlaylist()
	pb := newTestPlayback(t, pl)
	pl.Add(pb)

	snap := pl.snapshot()
	if len(snap) != 1 || snap[0] != pb {
		t.Fatalf("expected snapshot to contain the added Playback, got %v", snap)
	}
	pl.Remove(pb)
	if len(snap) != 1 {
		t.Fatalf("snapshot should be unaffected by later Remove, got len=%d", len(snap))
	}
}

func TestPlaylistDrainEmptiesAndReturnsMembers(t *testing.T) {
	pl := NewPlaylist()
	a := newTestPlayback(t, pl)
	b := newTestPlayback(t, pl)
	pl.Add(a)
	pl.Add(b)

	drained := pl.Drain()
	if len(drained) != 2 {
		t.Fatalf("expected 2 drained members, got %d", len(drained))
	}
	if pl.Len() != 0 {
		t.Fatalf("expected playlist empty after Drain, got len=%d", pl.Len())
	}
}
