package tree

import "fmt"

// Tag classifies a node at some stage of resolution.
type Tag int

const (
	TagUnknown            Tag = iota // Bare word not yet classified
	TagStringLiteral                 // "quoted"
	TagNumericLiteral                // 42, 0x1F, 1.5e3
	TagOperatorUnresolved            // Operator run, fixity not yet known
	TagOperatorPrefix                // Left-unary operator (-x, !x)
	TagOperatorPostfix               // Right-unary operator (x++)
	TagOperatorBinary                // a + b
	TagReservedWord                  // Language keyword
	TagFunction                      // name(args)
	TagFunctionArgument              // Wrapper around one call argument
	TagDeclaration                   // <a, b, c> angle-bracket literal
	TagDeclarationArgument           // Wrapper around one declaration/list element
	TagVectorLiteral                 // Folded constant vector
	TagRotationLiteral               // Folded constant rotation
	TagSeparator                     // Argument separator
	TagLevelOpenMarker               // Transient: open bracket before sorting
	TagLevelCloseMarker              // Transient: close bracket before sorting
	TagLevel                         // Balanced bracket group
	TagExpressionRoot                // Root of an expression
	TagVariable                      // Known variable name
	TagList                          // [a, b] list literal
)

var tagNames = [...]string{
	TagUnknown:             "unknown",
	TagStringLiteral:       "string",
	TagNumericLiteral:      "number",
	TagOperatorUnresolved:  "operator",
	TagOperatorPrefix:      "prefix",
	TagOperatorPostfix:     "postfix",
	TagOperatorBinary:      "binary",
	TagReservedWord:        "reserved",
	TagFunction:            "function",
	TagFunctionArgument:    "argument",
	TagDeclaration:         "declaration",
	TagDeclarationArgument: "element",
	TagVectorLiteral:       "vector",
	TagRotationLiteral:     "rotation",
	TagSeparator:           "separator",
	TagLevelOpenMarker:     "open",
	TagLevelCloseMarker:    "close",
	TagLevel:               "level",
	TagExpressionRoot:      "root",
	TagVariable:            "variable",
	TagList:                "list",
}

// String returns the short lowercase name used in dumps and JSON.
func (t Tag) String() string {
	if t >= 0 && int(t) < len(tagNames) {
		return tagNames[t]
	}
	return fmt.Sprintf("tag(%d)", int(t))
}

// MarshalText encodes the tag by name.
func (t Tag) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a tag name produced by MarshalText.
func (t *Tag) UnmarshalText(b []byte) error {
	name := string(b)
	for i, n := range tagNames {
		if n == name {
			*t = Tag(i)
			return nil
		}
	}
	return fmt.Errorf("tree: unknown tag %q", name)
}

// IsOperator reports whether the tag is one of the operator tags.
func (t Tag) IsOperator() bool {
	switch t {
	case TagOperatorUnresolved, TagOperatorPrefix, TagOperatorPostfix, TagOperatorBinary:
		return true
	}
	return false
}
