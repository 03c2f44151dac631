package nav

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFolder(t *testing.T) {
	data := EncodeFolder([]string{"a", "b", "c"})
	assert.Equal(t, "folder|a/b/c", data)

	cb, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, ActionFolder, cb.Action)
	assert.Equal(t, []string{"a", "b", "c"}, cb.Path)
}

func TestEncodeDecodeMain(t *testing.T) {
	cb, err := Decode(EncodeMain())
	require.NoError(t, err)
	assert.Equal(t, ActionMain, cb.Action)
	assert.Empty(t, cb.Path)
}

func TestEncodeDecodePage(t *testing.T) {
	data := EncodePage(2, []string{"docs", "2024"})
	assert.Equal(t, "page|2|docs/2024", data)

	cb, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, ActionPage, cb.Action)
	assert.Equal(t, 2, cb.Page)
	assert.Equal(t, []string{"docs", "2024"}, cb.Path)
}

func TestDecodePageAtRoot(t *testing.T) {
	// The root page payload carries an empty path field.
	assert.Equal(t, "page|1|", EncodePage(1, nil))

	cb, err := Decode("page|1|")
	require.NoError(t, err)
	assert.Equal(t, ActionPage, cb.Action)
	assert.Equal(t, 1, cb.Page)
	assert.Empty(t, cb.Path)
}

func TestDecodeDropsEmptyPathSegments(t *testing.T) {
	cb, err := Decode("folder|a//b/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, cb.Path)
}

func TestDecodeMalformedPayloads(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty", data: ""},
		{name: "unknown action", data: "bogus|a"},
		{name: "folder without path field", data: "folder"},
		{name: "page without path field", data: "page|1"},
		{name: "page with non-numeric index", data: "page|x|a"},
		{name: "main with trailing fields", data: "main|extra"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}
