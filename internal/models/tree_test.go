package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() *Folder {
	return &Folder{
		Subfolders: map[string]*Folder{
			"Docs": {
				Files: []FileRef{{MessageID: 1}},
			},
			"Media": {
				Subfolders: map[string]*Folder{
					"Photos": {},
					"Videos": {Files: []FileRef{{MessageID: 7}, {MessageID: 9}}},
				},
			},
		},
	}
}

func TestWalkResolvesNestedPaths(t *testing.T) {
	root := sampleTree()

	node, ok := root.Walk(nil)
	require.True(t, ok)
	assert.Same(t, root, node)

	node, ok = root.Walk([]string{"Media", "Videos"})
	require.True(t, ok)
	assert.Len(t, node.Files, 2)

	_, ok = root.Walk([]string{"Media", "Missing"})
	assert.False(t, ok)

	_, ok = root.Walk([]string{"Docs", "Deeper"})
	assert.False(t, ok)
}

func TestWalkOnNilFolder(t *testing.T) {
	var root *Folder

	_, ok := root.Walk([]string{"anything"})
	assert.False(t, ok)

	_, ok = root.Walk(nil)
	assert.False(t, ok)
}

func TestChildNames(t *testing.T) {
	root := sampleTree()
	assert.ElementsMatch(t, []string{"Docs", "Media"}, root.ChildNames())

	var nilFolder *Folder
	assert.Empty(t, nilFolder.ChildNames())
	assert.Empty(t, (&Folder{}).ChildNames())
}

func TestValidateRejectsReservedCharacters(t *testing.T) {
	tests := []struct {
		name string
		tree *Folder
		ok   bool
	}{
		{name: "nil tree", tree: nil, ok: true},
		{name: "plain names", tree: sampleTree(), ok: true},
		{
			name: "pipe in name",
			tree: &Folder{Subfolders: map[string]*Folder{"a|b": {}}},
			ok:   false,
		},
		{
			name: "slash in name",
			tree: &Folder{Subfolders: map[string]*Folder{"a/b": {}}},
			ok:   false,
		},
		{
			name: "reserved character in nested name",
			tree: &Folder{Subfolders: map[string]*Folder{
				"ok": {Subfolders: map[string]*Folder{"bad|nested": {}}},
			}},
			ok: false,
		},
		{
			name: "empty name",
			tree: &Folder{Subfolders: map[string]*Folder{"": {}}},
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tree.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestTreeJSONRoundTrip(t *testing.T) {
	raw := `{"subfolders":{"Docs":{"files":[{"messageId":12}]}}}`

	var tree Folder
	require.NoError(t, json.Unmarshal([]byte(raw), &tree))

	docs, ok := tree.Walk([]string{"Docs"})
	require.True(t, ok)
	require.Len(t, docs.Files, 1)
	assert.Equal(t, 12, docs.Files[0].MessageID)
}
