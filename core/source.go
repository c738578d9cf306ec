package core

import "fmt"

// SourceID identifies a query source within a SourceMap.
type SourceID uint32

// SourceKind distinguishes where query text came from.
type SourceKind uint8

const (
	// SourceFile is a query loaded from a file on disk.
	SourceFile SourceKind = iota
	// SourceStdin is a query read from standard input.
	SourceStdin
	// SourceInline is a query passed directly as a string.
	SourceInline
)

// Source is one query source: its origin and full content.
type Source struct {
	Kind SourceKind
	// Path is set for SourceFile only.
	Path    string
	Content string
}

// Name returns a human-readable identifier for diagnostics headers.
func (s Source) Name() string {
	switch s.Kind {
	case SourceFile:
		return s.Path
	case SourceStdin:
		return "<stdin>"
	default:
		return "<query>"
	}
}

// SourceMap maps dense SourceIDs to sources. Created once per compilation
// and never mutated afterwards.
type SourceMap struct {
	sources []Source
}

// NewSourceMap creates an empty source map.
func NewSourceMap() *SourceMap {
	return &SourceMap{}
}

// AddFile registers a file source and returns its id.
func (m *SourceMap) AddFile(path, content string) SourceID {
	return m.add(Source{Kind: SourceFile, Path: path, Content: content})
}

// AddStdin registers a stdin source and returns its id.
func (m *SourceMap) AddStdin(content string) SourceID {
	return m.add(Source{Kind: SourceStdin, Content: content})
}

// AddInline registers an inline source and returns its id.
func (m *SourceMap) AddInline(content string) SourceID {
	return m.add(Source{Kind: SourceInline, Content: content})
}

func (m *SourceMap) add(s Source) SourceID {
	id := SourceID(len(m.sources))
	m.sources = append(m.sources, s)
	return id
}

// Get returns the source for id. Panics on an unknown id, which indicates
// a SourceID from a different map.
func (m *SourceMap) Get(id SourceID) Source {
	if int(id) >= len(m.sources) {
		panic(fmt.Sprintf("unknown source id %d (map has %d sources)", id, len(m.sources)))
	}
	return m.sources[id]
}

// Content returns the text of the source for id.
func (m *SourceMap) Content(id SourceID) string {
	return m.Get(id).Content
}

// Len returns the number of registered sources.
func (m *SourceMap) Len() int { return len(m.sources) }
