package lang

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticToy() *Grammar {
	return Static(Config{
		Name:       "toy",
		Extensions: []string{".toy"},
		Fields:     []string{"left", "right"},
		Trivia:     []string{"comment"},
	}, []NodeType{
		{ID: 1, Name: "program", Named: true},
		{ID: 2, Name: "identifier", Named: true},
		{ID: 3, Name: "comment", Named: true},
		{ID: 4, Name: "+", Named: false},
		{ID: 5, Name: "in", Named: true},
		{ID: 6, Name: "in", Named: false},
	})
}

func TestGrammarLookup(t *testing.T) {
	g := staticToy()

	nt, ok := g.LookupNode("identifier", true)
	require.True(t, ok)
	assert.Equal(t, uint16(2), nt.ID)

	_, ok = g.LookupNode("identifier", false)
	assert.False(t, ok, "no anonymous identifier")

	named, ok := g.LookupNode("in", true)
	require.True(t, ok)
	anon, ok2 := g.LookupNode("in", false)
	require.True(t, ok2)
	assert.NotEqual(t, named.ID, anon.ID, "named/anonymous homonyms resolve separately")
}

func TestGrammarFieldsAndTrivia(t *testing.T) {
	g := staticToy()
	assert.True(t, g.HasField("left"))
	assert.False(t, g.HasField("body"))
	assert.Equal(t, []string{"left", "right"}, g.FieldNames())

	assert.True(t, g.IsTrivia("comment"))
	assert.Equal(t, []uint16{3}, g.TriviaTypes())
}

func TestGrammarNodeTypeNames(t *testing.T) {
	g := staticToy()
	assert.Equal(t, []string{"comment", "identifier", "in", "program"}, g.NodeTypeNames(true))
	assert.Equal(t, []string{"+", "in"}, g.NodeTypeNames(false))
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	r.Register(staticToy())

	g, ok := r.Get("toy")
	require.True(t, ok)
	assert.Equal(t, "toy", g.Name())

	g, ok = r.ForExtension(".toy")
	require.True(t, ok)
	assert.Equal(t, "toy", g.Name())

	g, ok = r.ForExtension("toy")
	require.True(t, ok, "extension lookup tolerates a missing dot")

	_, ok = r.Get("cobol")
	assert.False(t, ok)
	assert.Equal(t, []string{"toy"}, r.Languages())
}

func TestRegistryConfigApply(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "langs.yaml")
	content := `
languages:
  - name: toy
    extensions: [".ty"]
    fields: [body]
  - name: mini
    static: true
    extensions: [".mini"]
    fields: [head]
    trivia: [ws]
    nodes:
      - {id: 1, name: root, named: true}
      - {id: 2, name: ws, named: true}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	r := NewRegistry()
	r.Register(staticToy())
	require.NoError(t, r.Apply(cfg))

	toy, _ := r.Get("toy")
	assert.True(t, toy.HasField("body"))
	_, ok := r.ForExtension(".ty")
	assert.True(t, ok)

	mini, ok := r.Get("mini")
	require.True(t, ok)
	assert.True(t, mini.HasField("head"))
	assert.Equal(t, []uint16{2}, mini.TriviaTypes())
}

func TestRegistryConfigUnknownLanguage(t *testing.T) {
	r := NewRegistry()
	err := r.Apply(&RegistryConfig{Languages: []LanguageConfig{{Name: "nope"}}})
	assert.Error(t, err)
}
