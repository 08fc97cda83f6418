// Package topology describes the content hierarchy a learner moves through:
// containers hold ordered leaves, and each leaf belongs to one grouping.
// Snapshots are immutable and versioned so callers can reason about a
// structure that may change between requests.
package topology

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownContainer is returned when a provider has no snapshot for an id.
var ErrUnknownContainer = errors.New("unknown container")

// Child is one leaf position inside a container.
type Child struct {
	LeafID     string
	GroupingID string
	Required   bool
	Title      string
}

// Provider returns the current snapshot for a container. Implementations are
// read-only from the tracker's point of view.
type Provider interface {
	Snapshot(ctx context.Context, containerID string) (Snapshot, error)
}

// Snapshot is an immutable view of one container's children.
type Snapshot struct {
	containerID string
	version     string
	title       string
	children    []Child
	byLeaf      map[string]int
}

// NewSnapshot validates children and builds a Snapshot. Leaf ids must be
// unique within the container and every child needs a grouping.
func NewSnapshot(containerID, version string, children []Child) (Snapshot, error) {
	return newSnapshot(containerID, version, "", children)
}

func newSnapshot(containerID, version, title string, children []Child) (Snapshot, error) {
	if containerID == "" {
		return Snapshot{}, errors.New("container id is required")
	}
	byLeaf := make(map[string]int, len(children))
	for i, c := range children {
		if c.LeafID == "" {
			return Snapshot{}, fmt.Errorf("container %s: child %d has no leaf id", containerID, i)
		}
		if c.GroupingID == "" {
			return Snapshot{}, fmt.Errorf("container %s: leaf %s has no grouping id", containerID, c.LeafID)
		}
		if c.GroupingID == containerID || c.LeafID == containerID || c.LeafID == c.GroupingID {
			return Snapshot{}, fmt.Errorf("container %s: leaf %s reuses an ancestor id", containerID, c.LeafID)
		}
		if _, dup := byLeaf[c.LeafID]; dup {
			return Snapshot{}, fmt.Errorf("container %s: duplicate leaf %s", containerID, c.LeafID)
		}
		byLeaf[c.LeafID] = i
	}
	return Snapshot{
		containerID: containerID,
		version:     version,
		title:       title,
		children:    append([]Child(nil), children...),
		byLeaf:      byLeaf,
	}, nil
}

// ContainerID returns the container this snapshot describes.
func (s Snapshot) ContainerID() string { return s.containerID }

// Version identifies the structure revision.
func (s Snapshot) Version() string { return s.version }

// Title is the optional display title of the container.
func (s Snapshot) Title() string { return s.title }

// Children returns a copy of the ordered children.
func (s Snapshot) Children() []Child {
	return append([]Child(nil), s.children...)
}

// Leaf locates a leaf.
func (s Snapshot) Leaf(leafID string) (Child, bool) {
	i, ok := s.byLeaf[leafID]
	if !ok {
		return Child{}, false
	}
	return s.children[i], true
}

// HasGrouping reports whether any child belongs to groupingID.
func (s Snapshot) HasGrouping(groupingID string) bool {
	for _, c := range s.children {
		if c.GroupingID == groupingID {
			return true
		}
	}
	return false
}

// Groupings returns the grouping ids in first-appearance order.
func (s Snapshot) Groupings() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range s.children {
		if _, ok := seen[c.GroupingID]; ok {
			continue
		}
		seen[c.GroupingID] = struct{}{}
		out = append(out, c.GroupingID)
	}
	return out
}

// RequiredInGrouping returns the required leaf ids of a grouping in order.
func (s Snapshot) RequiredInGrouping(groupingID string) []string {
	var out []string
	for _, c := range s.children {
		if c.Required && c.GroupingID == groupingID {
			out = append(out, c.LeafID)
		}
	}
	return out
}

// RequiredInContainer returns every required leaf id in order.
func (s Snapshot) RequiredInContainer() []string {
	var out []string
	for _, c := range s.children {
		if c.Required {
			out = append(out, c.LeafID)
		}
	}
	return out
}
