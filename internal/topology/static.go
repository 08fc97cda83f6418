package topology

import (
	"context"
	"fmt"
	"sync"
)

// StaticProvider serves snapshots held in memory. Replacing a snapshot never
// mutates one already handed out.
type StaticProvider struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

// NewStaticProvider seeds a provider with snapshots.
func NewStaticProvider(snapshots ...Snapshot) *StaticProvider {
	p := &StaticProvider{snapshots: make(map[string]Snapshot, len(snapshots))}
	for _, s := range snapshots {
		p.snapshots[s.containerID] = s
	}
	return p
}

// Put installs or replaces the snapshot for its container.
func (p *StaticProvider) Put(s Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots[s.containerID] = s
}

// Snapshot implements Provider.
func (p *StaticProvider) Snapshot(ctx context.Context, containerID string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.snapshots[containerID]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownContainer, containerID)
	}
	return s, nil
}

// Containers lists the known container ids.
func (p *StaticProvider) Containers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.snapshots))
	for id := range p.snapshots {
		out = append(out, id)
	}
	return out
}
