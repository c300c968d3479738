// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package sql

import (
	"fmt"
	"strings"
)

// Location is a 1-based line/column position in the tokenizer's input.
type Location struct {
	Line int
	Col  int
}

func startLocation() Location { return Location{Line: 1, Col: 1} }

// ErrorKind distinguishes the shapes of syntax error the Tokenizer can
// report.
type ErrorKind int

const (
	UnexpectedOrUnsupportedToken ErrorKind = iota
	UnexpectedWhileParsingOperator
	OperatorNotClosed
	StringNotClosed
	OtherError
)

// TokenizerError carries the failing rune/operator together with the
// location it was found at and the full input, so callers can render a
// caret diagnostic without re-threading the original string.
type TokenizerError struct {
	Kind       ErrorKind
	Unexpected rune
	Operator   Token
	Location   Location
	Input      string
	Message    string
}

func (e *TokenizerError) Error() string {
	switch e.Kind {
	case UnexpectedOrUnsupportedToken:
		return fmt.Sprintf("unexpected or unsupported token %q", e.Unexpected)
	case UnexpectedWhileParsingOperator:
		return fmt.Sprintf("unexpected token %q while parsing %q operator", e.Unexpected, e.Operator)
	case OperatorNotClosed:
		return fmt.Sprintf("%q operator not closed", e.Operator)
	case StringNotClosed:
		return "string not closed"
	default:
		return e.Message
	}
}

// stream wraps the input as a rune slice with one rune of lookahead and
// tracks the current Location as runes are consumed, mirroring the Rust
// tokenizer's Peekable<Chars> stream.
type stream struct {
	input    string
	runes    []rune
	pos      int
	location Location
}

func newStream(input string) *stream {
	return &stream{input: input, runes: []rune(input), location: startLocation()}
}

func (s *stream) peek() (rune, bool) {
	if s.pos >= len(s.runes) {
		return 0, false
	}
	return s.runes[s.pos], true
}

func (s *stream) next() (rune, bool) {
	r, ok := s.peek()
	if !ok {
		return 0, false
	}
	s.pos++
	if r == '\n' {
		s.location.Line++
		s.location.Col = 1
	} else {
		s.location.Col++
	}
	return r, true
}

// peekNext consumes the current rune and returns the following one without
// consuming it, matching Stream::peek_next.
func (s *stream) peekNext() (rune, bool) {
	s.next()
	return s.peek()
}

func (s *stream) takeWhile(pred func(rune) bool) string {
	var b strings.Builder
	for {
		r, ok := s.peek()
		if !ok || !pred(r) {
			break
		}
		s.next()
		b.WriteRune(r)
	}
	return b.String()
}

// Tokenizer produces Tokens one at a time from a SQL input string.
type Tokenizer struct {
	stream     *stream
	reachedEOF bool
}

// New creates a Tokenizer over input. Nothing is scanned until Next or
// Tokenize is called.
func New(input string) *Tokenizer {
	return &Tokenizer{stream: newStream(input)}
}

// Tokenize scans the entire input and returns the full token sequence,
// stopping and returning an error at the first malformed token. The
// returned slice always ends with exactly one Eof token on success.
func Tokenize(input string) ([]Token, error) {
	t := New(input)
	var out []Token
	for {
		tok, err := t.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.Kind == Eof {
			return out, nil
		}
	}
}

// Next returns the next Token in the stream, or a *TokenizerError if the
// input is malformed at the current position. Calling Next again after Eof
// has been returned keeps yielding Eof.
func (t *Tokenizer) Next() (Token, error) {
	return t.nextToken()
}

func (t *Tokenizer) nextToken() (Token, error) {
	r, ok := t.stream.peek()
	if !ok {
		t.reachedEOF = true
		return TEof(), nil
	}

	switch {
	case r == ' ':
		return t.consume(TWhitespace(Space))
	case r == '\t':
		return t.consume(TWhitespace(Tab))
	case r == '\n':
		return t.consume(TWhitespace(Newline))
	case r == '\r':
		if nr, ok := t.stream.peekNext(); ok && nr == '\n' {
			return t.consume(TWhitespace(Newline))
		}
		return TWhitespace(Newline), nil
	case r == '<':
		if nr, ok := t.stream.peekNext(); ok && nr == '=' {
			return t.consume(TSimple(LtEq))
		}
		return TSimple(Lt), nil
	case r == '>':
		if nr, ok := t.stream.peekNext(); ok && nr == '=' {
			return t.consume(TSimple(GtEq))
		}
		return TSimple(Gt), nil
	case r == '*':
		return t.consume(TSimple(Mul))
	case r == '/':
		return t.consume(TSimple(Div))
	case r == '+':
		return t.consume(TSimple(Plus))
	case r == '-':
		return t.consume(TSimple(Minus))
	case r == '=':
		return t.consume(TSimple(Eq))
	case r == '!':
		nr, ok := t.stream.peekNext()
		if ok && nr == '=' {
			return t.consume(TSimple(Neq))
		}
		if ok {
			return t.errorTok(&TokenizerError{
				Kind:       UnexpectedWhileParsingOperator,
				Unexpected: nr,
				Operator:   TSimple(Neq),
			})
		}
		return t.errorTok(&TokenizerError{Kind: OperatorNotClosed, Operator: TSimple(Neq)})
	case r == '(':
		return t.consume(TSimple(LeftParen))
	case r == ')':
		return t.consume(TSimple(RightParen))
	case r == ',':
		return t.consume(TSimple(Comma))
	case r == ';':
		return t.consume(TSimple(SemiColon))
	case r == '"' || r == '\'':
		return t.tokenizeString()
	case r >= '0' && r <= '9':
		return t.tokenizeNumber(), nil
	case IsIdentOrKeywordRune(r):
		return t.tokenizeKeywordOrIdentifier(), nil
	default:
		return t.errorTok(&TokenizerError{Kind: UnexpectedOrUnsupportedToken, Unexpected: r})
	}
}

func (t *Tokenizer) consume(tok Token) (Token, error) {
	t.stream.next()
	return tok, nil
}

func (t *Tokenizer) errorTok(e *TokenizerError) (Token, error) {
	e.Location = t.stream.location
	e.Input = t.stream.input
	return Token{}, e
}

func (t *Tokenizer) tokenizeString() (Token, error) {
	quote, _ := t.stream.next()
	s := t.stream.takeWhile(func(r rune) bool { return r != quote })
	if closing, ok := t.stream.next(); ok && closing == quote {
		return TString(s), nil
	}
	return t.errorTok(&TokenizerError{Kind: StringNotClosed})
}

func (t *Tokenizer) tokenizeNumber() Token {
	digits := t.stream.takeWhile(func(r rune) bool { return r >= '0' && r <= '9' })
	return TNumber(digits)
}

func (t *Tokenizer) tokenizeKeywordOrIdentifier() Token {
	value := t.stream.takeWhile(IsIdentOrKeywordRune)
	if kw, ok := keywordLookup[strings.ToUpper(value)]; ok {
		return TKeyword(kw)
	}
	return TIdentifier(value)
}
