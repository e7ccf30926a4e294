package mixer

import (
	"sync"
	"time"

	"github.com/fusionsound/fusionsound/internal/playback"
)

// Playlist is the Mixer's playback.Playlist: the set of currently running
// Playbacks, guarded by one lock plus a condition the mixer thread waits
// on when empty (§5).
type Playlist struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []*playback.Playback
}

// NewPlaylist returns an empty Playlist.
func NewPlaylist() *Playlist {
	p := &Playlist{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Add registers pb, waking any mixer thread blocked waiting for work.
func (p *Playlist) Add(pb *playback.Playback) {
	p.mu.Lock()
	p.items = append(p.items, pb)
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Remove unregisters pb if present.
func (p *Playlist) Remove(pb *playback.Playback) {
	p.mu.Lock()
	for i, cur := range p.items {
		if cur == pb {
			p.items = append(p.items[:i], p.items[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
}

// Len reports how many Playbacks are currently registered.
func (p *Playlist) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// Drain empties the playlist, dropping the engine's strong references to
// every member (§4.F destroy ordering: "drain playlist dropping strong
// references"). It does not stop the Playbacks; callers that need that
// should Stop() each returned member first.
func (p *Playlist) Drain() []*playback.Playback {
	p.mu.Lock()
	out := p.items
	p.items = nil
	p.cond.Broadcast()
	p.mu.Unlock()
	return out
}

// snapshot returns a copy of the current members. The Mixer iterates the
// snapshot rather than the live list, per §5's allowance for splitting the
// single playlist lock into "a coarser iterate-snapshot lock + per-Playback
// lock" — this lets a Playback's own MixTick call Remove without the
// Mixer holding the same lock re-entrantly.
func (p *Playlist) snapshot() []*playback.Playback {
	p.mu.Lock()
	out := append([]*playback.Playback(nil), p.items...)
	p.mu.Unlock()
	return out
}

// waitForWork blocks until the playlist is non-empty or timeout elapses.
// A zero timeout waits forever.
func (p *Playlist) waitForWork(timeout time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.items) > 0 {
		return
	}
	if timeout <= 0 {
		p.cond.Wait()
		return
	}
	timer := time.AfterFunc(timeout, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	p.cond.Wait()
	timer.Stop()
}
