package transform

import (
	"fmt"
	"strings"
)

// Resolver maps a dotted identifier path found in an expression to the
// Starlark expression that reads it.
type Resolver func(path string) string

var exprKeywords = map[string]string{
	"true":  "True",
	"false": "False",
	"null":  "None",
	"nil":   "None",
	"True":  "True",
	"False": "False",
	"None":  "None",
	"and":   "and",
	"or":    "or",
	"not":   "not",
	"in":    "in",
	"if":    "if",
	"else":  "else",
}

// Expr rewrites a node condition or expression value into Starlark.
// Identifier paths such as "user.address.city" go through resolve; names
// followed by "(" are left alone as function calls. The C-style operators
// &&, || and ! become and, or and not.
func Expr(src string, resolve Resolver) (string, error) {
	var b strings.Builder
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '"' || c == '\'':
			j := i + 1
			for j < len(src) && src[j] != c {
				if src[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(src) {
				return "", fmt.Errorf("unterminated string in %q", src)
			}
			b.WriteString(src[i : j+1])
			i = j + 1

		case isIdentStart(c):
			j := i
			for j < len(src) && (isIdentPart(src[j]) || (src[j] == '.' && j+1 < len(src) && isIdentStart(src[j+1]))) {
				j++
			}
			word := src[i:j]
			switch kw, ok := exprKeywords[word]; {
			case ok:
				b.WriteString(kw)
			case nextNonSpace(src, j) == '(':
				b.WriteString(word)
			default:
				b.WriteString(resolve(word))
			}
			i = j

		case isDigit(c):
			j := i
			for j < len(src) && (isDigit(src[j]) || src[j] == '.') {
				j++
			}
			b.WriteString(src[i:j])
			i = j

		case strings.HasPrefix(src[i:], "&&"):
			writeWord(&b, src, i+2, "and")
			i += 2
		case strings.HasPrefix(src[i:], "||"):
			writeWord(&b, src, i+2, "or")
			i += 2
		case strings.HasPrefix(src[i:], "==="):
			b.WriteString("==")
			i += 3
		case strings.HasPrefix(src[i:], "!=="):
			b.WriteString("!=")
			i += 3
		case strings.HasPrefix(src[i:], "!="):
			b.WriteString("!=")
			i += 2
		case c == '!':
			writeWord(&b, src, i+1, "not")
			i++

		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

// writeWord emits an operator keyword, padding it with single spaces where
// the surrounding text has none.
func writeWord(b *strings.Builder, src string, next int, word string) {
	if out := b.String(); out != "" && !isSpaceByte(out[len(out)-1]) {
		b.WriteByte(' ')
	}
	b.WriteString(word)
	if next < len(src) && !isSpaceByte(src[next]) {
		b.WriteByte(' ')
	}
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t'
}

func nextNonSpace(s string, i int) byte {
	for ; i < len(s); i++ {
		if !isSpaceByte(s[i]) {
			return s[i]
		}
	}
	return 0
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
