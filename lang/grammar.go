// Package lang maps language names and file extensions to tree-sitter
// grammars plus the metadata linking needs: node-type ids, declared field
// names, and trivia node types.
package lang

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// NodeType describes one node kind of a grammar.
type NodeType struct {
	ID    uint16
	Name  string
	Named bool
}

// Grammar bundles a tree-sitter language with the metadata the linker and
// VM need. Static grammars (no compiled language) support linking and are
// used by tests; execution requires a compiled language.
type Grammar struct {
	name       string
	extensions []string
	language   *sitter.Language

	nodeTypes []NodeType
	// byName maps a node-type name to candidate ids. Grammars may reuse a
	// name for a named and an anonymous node (e.g. JS "in").
	byName map[string][]NodeType
	fields map[string]bool
	trivia map[string]bool
}

// Config declares the metadata for a grammar wrapper.
type Config struct {
	Name       string
	Extensions []string
	// Fields lists the field names the grammar declares.
	Fields []string
	// Trivia lists node types navigation may skip (comments etc).
	Trivia []string
}

// FromSitter builds a Grammar by enumerating the compiled language's
// symbols.
func FromSitter(lang *sitter.Language, cfg Config) *Grammar {
	g := newGrammar(cfg)
	g.language = lang
	count := lang.SymbolCount()
	for i := uint32(0); i < count; i++ {
		sym := sitter.Symbol(i)
		st := lang.SymbolType(sym)
		if st != sitter.SymbolTypeRegular && st != sitter.SymbolTypeAnonymous {
			continue
		}
		g.addNodeType(NodeType{
			ID:    uint16(i),
			Name:  lang.SymbolName(sym),
			Named: st == sitter.SymbolTypeRegular,
		})
	}
	return g
}

// Static builds a Grammar from explicit node-type tables. Used by tests
// and by registry configs that describe languages without a compiled
// grammar.
func Static(cfg Config, nodeTypes []NodeType) *Grammar {
	g := newGrammar(cfg)
	for _, nt := range nodeTypes {
		g.addNodeType(nt)
	}
	return g
}

func newGrammar(cfg Config) *Grammar {
	g := &Grammar{
		name:       cfg.Name,
		extensions: cfg.Extensions,
		byName:     make(map[string][]NodeType),
		fields:     make(map[string]bool, len(cfg.Fields)),
		trivia:     make(map[string]bool, len(cfg.Trivia)),
	}
	for _, f := range cfg.Fields {
		g.fields[f] = true
	}
	for _, t := range cfg.Trivia {
		g.trivia[t] = true
	}
	return g
}

func (g *Grammar) addNodeType(nt NodeType) {
	g.nodeTypes = append(g.nodeTypes, nt)
	g.byName[nt.Name] = append(g.byName[nt.Name], nt)
}

// Name returns the language identifier, e.g. "javascript".
func (g *Grammar) Name() string { return g.name }

// Extensions returns the file extensions the grammar claims.
func (g *Grammar) Extensions() []string { return g.extensions }

// Language returns the compiled tree-sitter language, or nil for a
// static grammar.
func (g *Grammar) Language() *sitter.Language { return g.language }

// NodeTypes returns all node types in id order.
func (g *Grammar) NodeTypes() []NodeType { return g.nodeTypes }

// LookupNode resolves a node-type name to the entry whose namedness
// matches wantNamed; there is no fallback to the other kind.
func (g *Grammar) LookupNode(name string, wantNamed bool) (NodeType, bool) {
	for _, nt := range g.byName[name] {
		if nt.Named == wantNamed {
			return nt, true
		}
	}
	return NodeType{}, false
}

// HasField reports whether the grammar declares the field name.
func (g *Grammar) HasField(name string) bool { return g.fields[name] }

// FieldNames returns the declared field names sorted.
func (g *Grammar) FieldNames() []string {
	out := make([]string, 0, len(g.fields))
	for f := range g.fields {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// NodeTypeNames returns the distinct names of the named (or, with false,
// anonymous) node types, sorted. Used for suggestion candidates.
func (g *Grammar) NodeTypeNames(named bool) []string {
	seen := map[string]bool{}
	var out []string
	for _, nt := range g.nodeTypes {
		if nt.Named == named && !seen[nt.Name] {
			seen[nt.Name] = true
			out = append(out, nt.Name)
		}
	}
	sort.Strings(out)
	return out
}

// IsTrivia reports whether the node-type name counts as trivia.
func (g *Grammar) IsTrivia(name string) bool { return g.trivia[name] }

// TriviaTypes returns the ids of trivia node types present in the grammar.
func (g *Grammar) TriviaTypes() []uint16 {
	var out []uint16
	for _, nt := range g.nodeTypes {
		if g.trivia[nt.Name] {
			out = append(out, nt.ID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Parse parses source with the grammar's compiled language.
func (g *Grammar) Parse(source []byte) (*sitter.Tree, error) {
	if g.language == nil {
		return nil, fmt.Errorf("grammar %q has no compiled language", g.name)
	}
	parser := sitter.NewParser()
	parser.SetLanguage(g.language)
	tree, err := parser.ParseCtx(context.TODO(), nil, source)
	if err != nil || tree == nil {
		return nil, fmt.Errorf("parsing with grammar %q failed: %v", g.name, err)
	}
	return tree, nil
}

// Registry maps language names and extensions to grammars.
type Registry struct {
	grammars map[string]*Grammar
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{grammars: make(map[string]*Grammar)}
}

// Register adds a grammar, replacing any previous grammar with the name.
func (r *Registry) Register(g *Grammar) {
	r.grammars[g.Name()] = g
}

// Get retrieves a grammar by language name.
func (r *Registry) Get(name string) (*Grammar, bool) {
	g, ok := r.grammars[name]
	return g, ok
}

// ForExtension finds the grammar claiming a file extension (with or
// without the leading dot).
func (r *Registry) ForExtension(ext string) (*Grammar, bool) {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	for _, g := range r.grammars {
		for _, e := range g.extensions {
			if e == ext {
				return g, true
			}
		}
	}
	return nil, false
}

// Languages returns the registered language names sorted.
func (r *Registry) Languages() []string {
	out := make([]string, 0, len(r.grammars))
	for name := range r.grammars {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
