package lang

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RegistryConfig is the YAML shape for extending the registry: extra
// extensions, trivia types, or field names per language, plus fully
// static language declarations for link-only use.
//
//	languages:
//	  - name: javascript
//	    extensions: [".es6"]
//	  - name: toy
//	    static: true
//	    fields: [lhs, rhs]
//	    nodes:
//	      - {id: 1, name: program, named: true}
type RegistryConfig struct {
	Languages []LanguageConfig `yaml:"languages"`
}

// LanguageConfig extends or declares one language.
type LanguageConfig struct {
	Name       string     `yaml:"name"`
	Static     bool       `yaml:"static"`
	Extensions []string   `yaml:"extensions"`
	Fields     []string   `yaml:"fields"`
	Trivia     []string   `yaml:"trivia"`
	Nodes      []NodeDecl `yaml:"nodes"`
}

// NodeDecl declares one node type of a static language.
type NodeDecl struct {
	ID    uint16 `yaml:"id"`
	Name  string `yaml:"name"`
	Named bool   `yaml:"named"`
}

// LoadConfig reads a registry config file.
func LoadConfig(path string) (*RegistryConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading registry config: %w", err)
	}
	var cfg RegistryConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing registry config %s: %w", path, err)
	}
	return &cfg, nil
}

// Apply merges the config into the registry. Known languages gain the
// extra extensions, fields, and trivia types; static declarations are
// registered as new grammars.
func (r *Registry) Apply(cfg *RegistryConfig) error {
	for _, lc := range cfg.Languages {
		if lc.Name == "" {
			return fmt.Errorf("registry config: language with empty name")
		}
		if lc.Static {
			nodes := make([]NodeType, 0, len(lc.Nodes))
			for _, n := range lc.Nodes {
				nodes = append(nodes, NodeType{ID: n.ID, Name: n.Name, Named: n.Named})
			}
			r.Register(Static(Config{
				Name:       lc.Name,
				Extensions: lc.Extensions,
				Fields:     lc.Fields,
				Trivia:     lc.Trivia,
			}, nodes))
			continue
		}
		g, ok := r.Get(lc.Name)
		if !ok {
			return fmt.Errorf("registry config: unknown language %q (not compiled in and not static)", lc.Name)
		}
		g.extensions = append(g.extensions, lc.Extensions...)
		for _, f := range lc.Fields {
			g.fields[f] = true
		}
		for _, t := range lc.Trivia {
			g.trivia[t] = true
		}
	}
	return nil
}

// DefaultRegistry returns a registry with all bundled grammars.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Go())
	r.Register(JavaScript())
	r.Register(Python())
	return r
}
