package topology

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/learner-progress/internal/hash/sha256"
)

const versionLength = 12

type catalogFile struct {
	Containers []catalogContainer `yaml:"containers"`
}

type catalogContainer struct {
	ID       string         `yaml:"id"`
	Title    string         `yaml:"title"`
	Children []catalogChild `yaml:"children"`
}

type catalogChild struct {
	Leaf     string `yaml:"leaf"`
	Grouping string `yaml:"grouping"`
	Title    string `yaml:"title"`
	// Required defaults to true when omitted.
	Required *bool `yaml:"required"`
}

// LoadCatalog reads a YAML catalog from path.
func LoadCatalog(path string) (*StaticProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a catalog document. Every snapshot it yields carries
// the same version, derived from the document bytes.
func ParseCatalog(data []byte) (*StaticProvider, error) {
	var file catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode topology catalog: %w", err)
	}
	digest, err := sha256.New().Hash(data)
	if err != nil {
		return nil, fmt.Errorf("fingerprint topology catalog: %w", err)
	}
	version := sha256.Short(digest, versionLength)

	provider := NewStaticProvider()
	seen := make(map[string]struct{}, len(file.Containers))
	for _, c := range file.Containers {
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("duplicate container %s", c.ID)
		}
		seen[c.ID] = struct{}{}
		children := make([]Child, 0, len(c.Children))
		for _, ch := range c.Children {
			required := true
			if ch.Required != nil {
				required = *ch.Required
			}
			children = append(children, Child{
				LeafID:     ch.Leaf,
				GroupingID: ch.Grouping,
				Required:   required,
				Title:      ch.Title,
			})
		}
		snap, err := newSnapshot(c.ID, version, c.Title, children)
		if err != nil {
			return nil, err
		}
		provider.Put(snap)
	}
	return provider, nil
}
