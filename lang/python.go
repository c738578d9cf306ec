package lang

import "github.com/smacker/go-tree-sitter/python"

// Python declares the metadata for the bundled Python grammar.
func Python() *Grammar {
	return FromSitter(python.GetLanguage(), Config{
		Name:       "python",
		Extensions: []string{".py", ".pyi"},
		Trivia:     []string{"comment"},
		Fields: []string{
			"alias", "alternative", "argument", "arguments", "attribute",
			"body", "cause", "code", "condition", "consequence", "definition",
			"function", "guard", "key", "left", "module_name", "name",
			"object", "operator", "operators", "parameters", "pattern",
			"return_type", "right", "subject", "subscript", "superclasses",
			"type", "value",
		},
	})
}
