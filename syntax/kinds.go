// Package syntax implements the query language front end: lexer, lossless
// concrete syntax tree, resilient parser, and typed AST accessors.
//
// The CST is a green/red tree. Green nodes are immutable and own their
// children; red nodes are light cursors carrying parent pointers and
// absolute offsets. Cloning a parse result is cheap because the green
// tree is shared.
package syntax

// Kind tags every token and node in the syntax tree.
type Kind uint8

const (
	KindInvalid Kind = iota

	// Tokens.
	KindLParen    // (
	KindRParen    // )
	KindLBracket  // [
	KindRBracket  // ]
	KindLBrace    // {
	KindRBrace    // }
	KindEq        // =
	KindColon     // :
	KindColonCol  // ::
	KindAt        // @
	KindBang      // !
	KindDot       // .
	KindStar      // *
	KindPlus      // +
	KindQuestion  // ?
	KindSlash     // /
	KindUnder     // _
	KindIdent     // lowercase identifier (node types, fields, capture names)
	KindUpper     // Uppercase identifier (definitions, refs, branch labels)
	KindPredOp    // #== #!= #^= #$= #*= #=~ #!~
	KindDQuote    // "
	KindSQuote    // '
	KindStrVal    // string literal body (between quotes)
	KindGarbage   // coalesced unrecognized bytes

	// Trivia tokens.
	KindWhitespace
	KindNewline
	KindLineComment  // // ... or ; ...
	KindBlockComment // /* ... */

	// Nodes.
	KindRoot
	KindDef
	KindTreeExpr  // (type item*)
	KindAltExpr   // [branch*]
	KindBranch    // label? expr
	KindSeqExpr   // {item*}
	KindCaptured  // expr @name (:: type)?
	KindQuantified
	KindFieldExpr    // name: expr
	KindNegField     // !name
	KindRefExpr      // (Name)
	KindStrExpr      // "text"
	KindWildcard     // _
	KindAnchor       // .
	KindPredicate    // (#op @cap arg)
	KindTypeAnnot    // :: type
	KindError

	kindMax
)

var kindNames = [...]string{
	KindInvalid:      "Invalid",
	KindLParen:       "LParen",
	KindRParen:       "RParen",
	KindLBracket:     "LBracket",
	KindRBracket:     "RBracket",
	KindLBrace:       "LBrace",
	KindRBrace:       "RBrace",
	KindEq:           "Eq",
	KindColon:        "Colon",
	KindColonCol:     "ColonColon",
	KindAt:           "At",
	KindBang:         "Bang",
	KindDot:          "Dot",
	KindStar:         "Star",
	KindPlus:         "Plus",
	KindQuestion:     "Question",
	KindSlash:        "Slash",
	KindUnder:        "Underscore",
	KindIdent:        "Ident",
	KindUpper:        "UpperIdent",
	KindPredOp:       "PredOp",
	KindDQuote:       "DoubleQuote",
	KindSQuote:       "SingleQuote",
	KindStrVal:       "StrVal",
	KindGarbage:      "Garbage",
	KindWhitespace:   "Whitespace",
	KindNewline:      "Newline",
	KindLineComment:  "LineComment",
	KindBlockComment: "BlockComment",
	KindRoot:         "Root",
	KindDef:          "Def",
	KindTreeExpr:     "TreeExpr",
	KindAltExpr:      "AltExpr",
	KindBranch:       "Branch",
	KindSeqExpr:      "SeqExpr",
	KindCaptured:     "CapturedExpr",
	KindQuantified:   "QuantifiedExpr",
	KindFieldExpr:    "FieldExpr",
	KindNegField:     "NegFieldExpr",
	KindRefExpr:      "RefExpr",
	KindStrExpr:      "StrExpr",
	KindWildcard:     "Wildcard",
	KindAnchor:       "Anchor",
	KindPredicate:    "Predicate",
	KindTypeAnnot:    "TypeAnnotation",
	KindError:        "Error",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "Kind(?)"
}

// IsTrivia reports whether the kind is whitespace, newline, or a comment.
func (k Kind) IsTrivia() bool {
	switch k {
	case KindWhitespace, KindNewline, KindLineComment, KindBlockComment:
		return true
	}
	return false
}

// IsToken reports whether the kind tags a token rather than a node.
func (k Kind) IsToken() bool {
	return k > KindInvalid && k < KindRoot
}

// IsExpr reports whether the kind is an expression node.
func (k Kind) IsExpr() bool {
	switch k {
	case KindTreeExpr, KindAltExpr, KindSeqExpr, KindCaptured, KindQuantified,
		KindFieldExpr, KindNegField, KindRefExpr, KindStrExpr, KindWildcard,
		KindAnchor, KindPredicate:
		return true
	}
	return false
}
