package lang

import "github.com/smacker/go-tree-sitter/golang"

// Go declares the metadata for the bundled Go grammar.
func Go() *Grammar {
	return FromSitter(golang.GetLanguage(), Config{
		Name:       "go",
		Extensions: []string{".go"},
		Trivia:     []string{"comment"},
		Fields: []string{
			"alias", "alternative", "arguments", "body", "capacity",
			"channel", "communication", "condition", "consequence",
			"element", "end", "field", "function", "index", "initializer",
			"key", "label", "left", "length", "name", "operand", "operator",
			"package", "parameters", "path", "receiver", "result", "right",
			"start", "tag", "type", "type_arguments", "type_parameters",
			"update", "value",
		},
	})
}
