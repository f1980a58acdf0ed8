package mapping

import (
	"errors"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokString
)

// token is a whitespace-delimited word or a double-quoted string.
// start and end are byte offsets into the scanned line; text is the raw
// source slice, quotes included.
type token struct {
	kind  tokenKind
	text  string
	start int
	end   int
}

var errUnterminatedString = errors.New("unterminated string")

// scanner walks a single DSL line token by token. Clauses that take the
// remainder of the line verbatim (IF) read it through rest.
type scanner struct {
	src string
	pos int
}

func newScanner(src string) *scanner {
	return &scanner{src: src}
}

func (s *scanner) skipSpace() {
	for s.pos < len(s.src) && isSpace(s.src[s.pos]) {
		s.pos++
	}
}

func (s *scanner) next() (token, error) {
	s.skipSpace()
	start := s.pos
	if start >= len(s.src) {
		return token{kind: tokEOF, start: start, end: start}, nil
	}

	if s.src[start] == '"' {
		i := start + 1
		for i < len(s.src) {
			switch s.src[i] {
			case '\\':
				i += 2
				continue
			case '"':
				s.pos = i + 1
				return token{kind: tokString, text: s.src[start:s.pos], start: start, end: s.pos}, nil
			}
			i++
		}
		return token{}, errUnterminatedString
	}

	i := start
	for i < len(s.src) && !isSpace(s.src[i]) {
		i++
	}
	s.pos = i
	return token{kind: tokWord, text: s.src[start:i], start: start, end: i}, nil
}

func (s *scanner) peek() (token, error) {
	saved := s.pos
	tok, err := s.next()
	s.pos = saved
	return tok, err
}

// rest consumes and returns the remainder of the line, trimmed.
func (s *scanner) rest() string {
	r := strings.TrimSpace(s.src[s.pos:])
	s.pos = len(s.src)
	return r
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t'
}

// findArrow returns the offset of the first "->" outside a quoted string, or -1.
func findArrow(line string) int {
	inString := false
	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case inString && c == '\\':
			i++
		case c == '"':
			inString = !inString
		case !inString && c == '-' && i+1 < len(line) && line[i+1] == '>':
			return i
		}
	}
	return -1
}

// Unquote strips surrounding double quotes and resolves backslash escapes.
// \n, \r and \t decode to their control characters; any other escaped
// byte stands for itself.
func Unquote(raw string) string {
	if len(raw) < 2 || raw[0] != '"' || raw[len(raw)-1] != '"' {
		return raw
	}
	body := raw[1 : len(raw)-1]
	if !strings.ContainsRune(body, '\\') {
		return body
	}
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c == '\\' && i+1 < len(body) {
			i++
			c = body[i]
			switch c {
			case 'n':
				c = '\n'
			case 'r':
				c = '\r'
			case 't':
				c = '\t'
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Quote is the inverse of Unquote. The result never spans more than one line.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
