package gates

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PluginProvider returns an ordered list of gate descriptors discovered
// from some source. The executor depends only on this interface, not on
// filesystem scanning.
type PluginProvider interface {
	Discover() []PluginDescriptor
}

// PluginDescriptor names a discovered plugin and the command that runs it.
type PluginDescriptor struct {
	Name    string
	Command string
}

// DirProvider discovers plugins from a directory: each .sh or .py file
// becomes a gate named "plugin:<stem>", in alphabetical filename order.
type DirProvider struct {
	dir string
}

// NewDirProvider creates a provider scanning dir. An empty dir yields
// no plugins.
func NewDirProvider(dir string) *DirProvider {
	return &DirProvider{dir: dir}
}

// interpreters maps plugin file extensions to their invocation command.
var interpreters = map[string]string{
	".sh": "bash",
	".py": "python3",
}

// Discover lists the plugin gates in the directory. A missing or
// unreadable directory yields none.
func (p *DirProvider) Discover() []PluginDescriptor {
	if p.dir == "" {
		return nil
	}
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil
	}

	// os.ReadDir returns entries sorted by filename, which fixes the
	// discovery order.
	var plugins []PluginDescriptor
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		interp, ok := interpreters[filepath.Ext(e.Name())]
		if !ok {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		plugins = append(plugins, PluginDescriptor{
			Name:    "plugin:" + stem,
			Command: interp + " " + filepath.Join(p.dir, e.Name()),
		})
	}
	return plugins
}

// Gates materializes the provider's descriptors into command gates.
func Gates(provider PluginProvider, runner CommandRunner, timeout time.Duration) []Gate {
	var out []Gate
	for _, d := range provider.Discover() {
		out = append(out, NewCommandGate(d.Name, d.Command, runner, timeout))
	}
	return out
}
