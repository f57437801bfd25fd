package templates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinTemplates(t *testing.T) {
	r := Builtin()
	names := []string{}
	for _, tpl := range r.List() {
		names = append(names, tpl.Name)
	}
	assert.Equal(t, []string{"blank", "grid", "landscape"}, names)

	landscape, ok := r.Get("landscape")
	require.True(t, ok)
	assert.Contains(t, landscape.CanvasJS, "// ELEMENT: sun")
	assert.Contains(t, landscape.CanvasJS, "// END ELEMENT: sun")
}

func TestLoadFileMergesAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`templates:
  - name: blank
    description: overridden blank
    canvas_js: "// custom blank"
  - name: portrait
    canvas_js: "// portrait"
`), 0o644))

	r := Builtin()
	require.NoError(t, r.LoadFile(path))

	blank, ok := r.Get("blank")
	require.True(t, ok)
	assert.Equal(t, "// custom blank", blank.CanvasJS)

	_, ok = r.Get("portrait")
	assert.True(t, ok)
	// Builtins not named in the file survive.
	_, ok = r.Get("landscape")
	assert.True(t, ok)
}

func TestLoadYAMLRejectsNamelessTemplate(t *testing.T) {
	r := NewRegistry()
	err := r.LoadYAML([]byte("templates:\n  - canvas_js: '// no name'\n"))
	require.Error(t, err)
}

func TestGetMissing(t *testing.T) {
	_, ok := NewRegistry().Get("nope")
	assert.False(t, ok)
}
