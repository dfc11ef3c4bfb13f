// Copyright (C) 2025 Hearth Labs.
// See LICENSE for copying information.

package dbschema

import (
	"regexp"
	"strings"
)

// DefaultKind describes how a default value must be rendered into DDL.
type DefaultKind string

const (
	// DefaultNone means the column declares no default.
	DefaultNone DefaultKind = "none"
	// DefaultLiteral is a plain literal, e.g. 0 or 'draft'.
	DefaultLiteral DefaultKind = "literal"
	// DefaultKeyword is one of the special SQL keywords, e.g. CURRENT_TIMESTAMP.
	DefaultKeyword DefaultKind = "keyword"
	// DefaultExpression is an arbitrary expression, e.g. (lower(hex(randomblob(16)))).
	DefaultExpression DefaultKind = "expression"
)

// Default is a column default as stored in the catalog.
type Default struct {
	Kind  DefaultKind `json:"kind"`
	Value string      `json:"value,omitempty"`
}

var defaultKeywords = map[string]bool{
	"NULL":              true,
	"TRUE":              true,
	"FALSE":             true,
	"CURRENT_TIME":      true,
	"CURRENT_DATE":      true,
	"CURRENT_TIMESTAMP": true,
}

var (
	rxNumericLiteral = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)
	rxBlobLiteral    = regexp.MustCompile(`^[xX]'[0-9A-Fa-f]*'$`)
	rxBareWord       = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// expressionChars never occur in the literal shapes above, so any remaining
// text containing one must be an expression. The catalog strips the outer
// parentheses from expression defaults, which is why the shape of the text
// is the only signal left.
const expressionChars = "()+-*/%|<>=~"

// ClassifyDefault interprets the raw default text reported by the catalog
// (or supplied by a caller) into a renderable Default. A bare word counts as
// a string literal, matching how SQLite reads it in a DEFAULT clause.
func ClassifyDefault(raw string) Default {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return Default{Kind: DefaultNone}
	case defaultKeywords[strings.ToUpper(raw)]:
		return Default{Kind: DefaultKeyword, Value: strings.ToUpper(raw)}
	case literalShaped(raw):
		return Default{Kind: DefaultLiteral, Value: raw}
	case strings.ContainsAny(raw, expressionChars):
		return Default{Kind: DefaultExpression, Value: raw}
	default:
		return Default{Kind: DefaultLiteral, Value: raw}
	}
}

// IsZero reports whether no default is set.
func (def Default) IsZero() bool {
	return def.Kind == "" || def.Kind == DefaultNone
}

// Render returns the text following the DEFAULT keyword in a column
// definition, or the empty string when no default is set.
func (def Default) Render() string {
	switch def.Kind {
	case DefaultKeyword:
		return def.Value
	case DefaultExpression:
		if parenWrapped(def.Value) {
			return def.Value
		}
		return "(" + def.Value + ")"
	case DefaultLiteral:
		if literalShaped(def.Value) && !rxBareWord.MatchString(def.Value) {
			return def.Value
		}
		return "'" + strings.ReplaceAll(def.Value, "'", "''") + "'"
	default:
		return ""
	}
}

// literalShaped reports whether the text is one of the self-delimiting
// literal forms: a number, a blob literal, a quoted string, or a bare word.
func literalShaped(s string) bool {
	return rxNumericLiteral.MatchString(s) ||
		rxBlobLiteral.MatchString(s) ||
		quotedString(s, '\'') ||
		quotedString(s, '"') ||
		rxBareWord.MatchString(s)
}

// quotedString reports whether the whole text is a single well-formed
// quoted string, with embedded quotes doubled. Text like 'a' || 'b' starts
// and ends with a quote but is not one string, so the interior matters.
func quotedString(s string, quote byte) bool {
	if len(s) < 2 || s[0] != quote || s[len(s)-1] != quote {
		return false
	}
	body := s[1 : len(s)-1]
	for i := 0; i < len(body); i++ {
		if body[i] != quote {
			continue
		}
		if i+1 >= len(body) || body[i+1] != quote {
			return false
		}
		i++
	}
	return true
}

// parenWrapped reports whether the whole expression is already enclosed by a
// single pair of parentheses, so that Render never double-wraps catalog text.
func parenWrapped(s string) bool {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return false
	}
	depth := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return false
			}
		}
	}
	return depth == 0
}
