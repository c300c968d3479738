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

import "fmt"

// Kind identifies the class of a Token.
type Kind int

const (
	Eof Kind = iota
	Whitespace
	Identifier
	Number
	String
	KeywordTok
	Eq
	Neq
	Lt
	LtEq
	Gt
	GtEq
	Plus
	Minus
	Mul
	Div
	LeftParen
	RightParen
	Comma
	SemiColon
)

// WhitespaceKind distinguishes the three whitespace tokens the tokenizer
// folds CR/CRLF/LF into.
type WhitespaceKind int

const (
	Space WhitespaceKind = iota
	Tab
	Newline
)

// Keyword enumerates every reserved word recognized by the tokenizer.
type Keyword int

const (
	NoKeyword Keyword = iota
	Select
	CreateKw
	Update
	Delete
	Insert
	Values
	Into
	Set
	DropKw
	From
	Where
	And
	Or
	Primary
	Key
	Unique
	Table
	Database
	Int
	BigInt
	Unsigned
	VarcharKw
	Bool
	True
	False
	Order
	By
	Index
	On
	Start
	Transaction
	Rollback
	Commit
	Explain
)

var keywordText = map[Keyword]string{
	Select: "SELECT", CreateKw: "CREATE", Update: "UPDATE", Delete: "DELETE",
	Insert: "INSERT", Values: "VALUES", Into: "INTO", Set: "SET",
	DropKw: "DROP", From: "FROM", Where: "WHERE", And: "AND", Or: "OR",
	Primary: "PRIMARY", Key: "KEY", Unique: "UNIQUE", Table: "TABLE",
	Database: "DATABASE", Int: "INT", BigInt: "BIGINT", Unsigned: "UNSIGNED",
	VarcharKw: "VARCHAR", Bool: "BOOL", True: "TRUE", False: "FALSE",
	Order: "ORDER", By: "BY", Index: "INDEX", On: "ON", Start: "START",
	Transaction: "TRANSACTION", Rollback: "ROLLBACK", Commit: "COMMIT",
	Explain: "EXPLAIN",
}

// keywordLookup maps the upper-cased spelling of a keyword to its Keyword
// value; it is the table the tokenizer's tokenizeKeywordOrIdentifier looks
// words up in.
var keywordLookup = func() map[string]Keyword {
	m := make(map[string]Keyword, len(keywordText))
	for k, v := range keywordText {
		m[v] = k
	}
	return m
}()

func (k Keyword) String() string {
	if s, ok := keywordText[k]; ok {
		return s
	}
	return "NONE"
}

// Token is a single lexical unit produced by the Tokenizer. Only the fields
// relevant to Kind are populated; the rest are left at their zero value,
// matching the Rust tokenizer's enum-with-payload Token type one field per
// payload instead of a true sum type.
type Token struct {
	Kind       Kind
	Whitespace WhitespaceKind
	Ident      string
	Num        string
	Str        string
	Keyword    Keyword
}

func TEof() Token                       { return Token{Kind: Eof} }
func TWhitespace(w WhitespaceKind) Token { return Token{Kind: Whitespace, Whitespace: w} }
func TIdentifier(s string) Token        { return Token{Kind: Identifier, Ident: s} }
func TNumber(s string) Token            { return Token{Kind: Number, Num: s} }
func TString(s string) Token            { return Token{Kind: String, Str: s} }
func TKeyword(k Keyword) Token          { return Token{Kind: KeywordTok, Keyword: k} }
func TSimple(k Kind) Token              { return Token{Kind: k} }

// IsIdentOrKeywordRune reports whether r can appear in an identifier or
// keyword: ASCII letters, digits, and underscore, with a letter or
// underscore required as the first rune (the tokenizer only calls this
// after having already rejected digits as the start of an identifier via
// the '0'..'9' arm, so this predicate itself does not need to special-case
// the first rune).
func IsIdentOrKeywordRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}

func (t Token) String() string {
	switch t.Kind {
	case Eof:
		return "EOF"
	case Whitespace:
		return " "
	case Identifier:
		return t.Ident
	case Number:
		return t.Num
	case String:
		return fmt.Sprintf("%q", t.Str)
	case KeywordTok:
		return t.Keyword.String()
	case Eq:
		return "="
	case Neq:
		return "!="
	case Lt:
		return "<"
	case LtEq:
		return "<="
	case Gt:
		return ">"
	case GtEq:
		return ">="
	case Plus:
		return "+"
	case Minus:
		return "-"
	case Mul:
		return "*"
	case Div:
		return "/"
	case LeftParen:
		return "("
	case RightParen:
		return ")"
	case Comma:
		return ","
	case SemiColon:
		return ";"
	default:
		return "?"
	}
}
