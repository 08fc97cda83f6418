package topology

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogYAML = `
containers:
  - id: course-1
    title: Intro
    children:
      - leaf: lesson-a
        grouping: module-1
      - leaf: lesson-b
        grouping: module-1
      - leaf: quiz-extra
        grouping: module-1
        required: false
      - leaf: lesson-c
        grouping: module-2
`

func TestSnapshotQueries(t *testing.T) {
	t.Parallel()

	snap, err := NewSnapshot("course-1", "v1", []Child{
		{LeafID: "a", GroupingID: "g1", Required: true},
		{LeafID: "opt", GroupingID: "g1", Required: false},
		{LeafID: "b", GroupingID: "g2", Required: true},
	})
	require.NoError(t, err)

	leaf, ok := snap.Leaf("opt")
	require.True(t, ok)
	assert.Equal(t, "g1", leaf.GroupingID)
	_, ok = snap.Leaf("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"a"}, snap.RequiredInGrouping("g1"))
	assert.Equal(t, []string{"a", "b"}, snap.RequiredInContainer())
	assert.Equal(t, []string{"g1", "g2"}, snap.Groupings())
	assert.True(t, snap.HasGrouping("g2"))
	assert.False(t, snap.HasGrouping("g3"))

	children := snap.Children()
	children[0].LeafID = "mutated"
	_, ok = snap.Leaf("a")
	assert.True(t, ok, "Children must return a copy")
}

func TestNewSnapshotRejectsBadChildren(t *testing.T) {
	t.Parallel()

	cases := map[string][]Child{
		"duplicate leaf":   {{LeafID: "a", GroupingID: "g"}, {LeafID: "a", GroupingID: "g"}},
		"missing grouping": {{LeafID: "a"}},
		"missing leaf":     {{GroupingID: "g"}},
		"reused ancestor":  {{LeafID: "g", GroupingID: "g"}},
	}
	for name, children := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := NewSnapshot("c", "v", children)
			require.Error(t, err)
		})
	}

	_, err := NewSnapshot("", "v", nil)
	require.Error(t, err)
}

func TestParseCatalog(t *testing.T) {
	t.Parallel()

	provider, err := ParseCatalog([]byte(catalogYAML))
	require.NoError(t, err)

	snap, err := provider.Snapshot(context.Background(), "course-1")
	require.NoError(t, err)
	assert.Equal(t, "Intro", snap.Title())
	assert.Len(t, snap.Version(), versionLength)
	assert.Equal(t, []string{"lesson-a", "lesson-b", "lesson-c"}, snap.RequiredInContainer())

	extra, ok := snap.Leaf("quiz-extra")
	require.True(t, ok)
	assert.False(t, extra.Required)

	_, err = provider.Snapshot(context.Background(), "nope")
	require.ErrorIs(t, err, ErrUnknownContainer)
}

func TestParseCatalogVersionTracksContent(t *testing.T) {
	t.Parallel()

	first, err := ParseCatalog([]byte(catalogYAML))
	require.NoError(t, err)
	second, err := ParseCatalog([]byte(catalogYAML + "      - leaf: lesson-d\n        grouping: module-2\n"))
	require.NoError(t, err)

	a, err := first.Snapshot(context.Background(), "course-1")
	require.NoError(t, err)
	b, err := second.Snapshot(context.Background(), "course-1")
	require.NoError(t, err)
	assert.NotEqual(t, a.Version(), b.Version())
	assert.Len(t, b.Children(), 5)
	assert.Len(t, a.Children(), 4)
}

func TestParseCatalogErrors(t *testing.T) {
	t.Parallel()

	_, err := ParseCatalog([]byte("containers:\n  - id: c\n    bogus: 1\n"))
	require.Error(t, err)

	_, err = ParseCatalog([]byte("containers:\n  - id: c\n  - id: c\n"))
	require.ErrorContains(t, err, "duplicate container")
}

func TestLoadCatalogFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "topology.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o600))

	provider, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"course-1"}, provider.Containers())

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestStaticProviderPutReplaces(t *testing.T) {
	t.Parallel()

	v1, err := NewSnapshot("c", "v1", []Child{{LeafID: "a", GroupingID: "g", Required: true}})
	require.NoError(t, err)
	provider := NewStaticProvider(v1)

	v2, err := NewSnapshot("c", "v2", []Child{
		{LeafID: "a", GroupingID: "g", Required: true},
		{LeafID: "b", GroupingID: "g", Required: true},
	})
	require.NoError(t, err)
	provider.Put(v2)

	got, err := provider.Snapshot(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Version())
	assert.Len(t, v1.Children(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = provider.Snapshot(ctx, "c")
	require.ErrorIs(t, err, context.Canceled)
}
