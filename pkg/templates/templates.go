package templates

import (
	"os"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Template is a named starter canvas: element-tagged JavaScript the user
// can begin a session from instead of a blank document.
type Template struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	CanvasJS    string `yaml:"canvas_js" json:"canvas_js"`
}

type templateFile struct {
	Templates []Template `yaml:"templates"`
}

// Registry holds the loaded templates, keyed by name.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Template
}

func NewRegistry() *Registry {
	return &Registry{templates: make(map[string]Template)}
}

// LoadFile reads a YAML template file and merges its templates into the
// registry. Later loads overwrite same-named templates.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read templates file %s", path)
	}
	return r.LoadYAML(data)
}

func (r *Registry) LoadYAML(data []byte) error {
	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return errors.Wrap(err, "parse templates yaml")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range f.Templates {
		if t.Name == "" {
			return errors.New("template without a name")
		}
		r.templates[t.Name] = t
	}
	return nil
}

// Get returns the named template.
func (r *Registry) Get(name string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[name]
	return t, ok
}

// List returns all templates sorted by name.
func (r *Registry) List() []Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Template, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Builtin returns a registry preloaded with the stock templates.
func Builtin() *Registry {
	r := NewRegistry()
	// Builtin templates are code, not config; a parse failure here is a
	// programming error.
	if err := r.LoadYAML([]byte(builtinYAML)); err != nil {
		panic(err)
	}
	return r
}

const builtinYAML = `templates:
  - name: blank
    description: An empty canvas.
    canvas_js: ""
  - name: landscape
    description: A simple landscape scene with sky, sun, and ground.
    canvas_js: |
      // ELEMENT: sky
      ctx.fillStyle = '#87ceeb';
      ctx.fillRect(0, 0, canvas.width, canvas.height * 0.7);
      // END ELEMENT: sky

      // ELEMENT: sun
      ctx.fillStyle = '#ffd700';
      ctx.beginPath();
      ctx.arc(canvas.width - 120, 100, 50, 0, Math.PI * 2);
      ctx.fill();
      // END ELEMENT: sun

      // ELEMENT: ground
      ctx.fillStyle = '#228b22';
      ctx.fillRect(0, canvas.height * 0.7, canvas.width, canvas.height * 0.3);
      // END ELEMENT: ground
  - name: grid
    description: A light grid useful for diagrams.
    canvas_js: |
      // ELEMENT: grid
      ctx.strokeStyle = '#ddd';
      ctx.lineWidth = 1;
      for (let x = 0; x <= canvas.width; x += 40) {
        ctx.beginPath();
        ctx.moveTo(x, 0);
        ctx.lineTo(x, canvas.height);
        ctx.stroke();
      }
      for (let y = 0; y <= canvas.height; y += 40) {
        ctx.beginPath();
        ctx.moveTo(0, y);
        ctx.lineTo(canvas.width, y);
        ctx.stroke();
      }
      // END ELEMENT: grid
`
