package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		input string
		want  string
	}{
		{"~/.nexbot", filepath.Join(home, ".nexbot")},
		{"~", home},
		{"/srv/nexbotd", "/srv/nexbotd"},
		{"~other/x", "~other/x"},
	}
	for _, tt := range tests {
		ws := New(tt.input)
		assert.Equal(t, tt.want, ws.Path(), tt.input)
		assert.Equal(t, tt.input, ws.BasePath())
	}
}

func TestEnsureLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "ws")
	ws := New(root)

	require.NoError(t, ws.EnsureLayout())
	for _, name := range Layout {
		info, err := os.Stat(ws.Subpath(name))
		require.NoError(t, err)
		assert.True(t, info.IsDir(), name)
	}

	// Idempotent.
	require.NoError(t, ws.EnsureLayout())
}

func TestEnsureDir_Errors(t *testing.T) {
	assert.Error(t, New("").EnsureDir())

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	err := New(file).EnsureDir()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")

	ws := New(t.TempDir())
	require.NoError(t, os.WriteFile(ws.Subpath(SubdirRun), nil, 0644))
	assert.Error(t, ws.EnsureSubpath(SubdirRun))
	assert.Error(t, ws.EnsureSubpath(""))
}
