package lang

import "github.com/smacker/go-tree-sitter/javascript"

// JavaScript declares the metadata for the bundled JavaScript grammar.
func JavaScript() *Grammar {
	return FromSitter(javascript.GetLanguage(), Config{
		Name:       "javascript",
		Extensions: []string{".js", ".jsx", ".mjs", ".cjs"},
		Trivia:     []string{"comment", "html_comment"},
		Fields: []string{
			"alias", "alternate", "arguments", "body", "close", "condition",
			"consequent", "constructor", "decorator", "finalizer", "flags",
			"function", "increment", "index", "key", "kind", "label", "left",
			"name", "object", "open", "operand", "operator", "optional_chain",
			"parameter", "parameters", "pattern", "property", "right",
			"source", "tag", "template", "test", "update", "value",
		},
	})
}
