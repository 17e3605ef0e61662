package filter

import (
	"strings"

	"github.com/lib/pq"
)

// TagsColumn is the JSONB column holding the OSM tags of each row.
const TagsColumn = "tags"

type Op int

const (
	OpOr Op = iota
	OpAnd
)

func (op Op) String() string {
	if op == OpAnd {
		return "AND"
	}
	return "OR"
}

// Expr is a tag predicate. The variants are Equality, Membership,
// Existence, And and Or. Render is the only way to turn an Expr into SQL.
type Expr interface {
	expr()
}

// Equality matches rows where key has exactly Value.
type Equality struct {
	Key   string
	Value string
}

// Membership matches rows where the value of key is one of Values.
type Membership struct {
	Key    string
	Values []string
}

// Existence matches rows that have key, regardless of its value.
type Existence struct {
	Key string
}

type And struct {
	Terms []Expr
}

type Or struct {
	Terms []Expr
}

func (Equality) expr()   {}
func (Membership) expr() {}
func (Existence) expr()  {}
func (And) expr()        {}
func (Or) expr()         {}

// Join combines terms with op. Terms of the same operator are flattened,
// nil terms are skipped and a single remaining term is returned as is.
func Join(op Op, terms ...Expr) Expr {
	var flat []Expr
	for _, t := range terms {
		switch t := t.(type) {
		case nil:
			continue
		case And:
			if op == OpAnd {
				flat = append(flat, t.Terms...)
				continue
			}
		case Or:
			if op == OpOr {
				flat = append(flat, t.Terms...)
				continue
			}
		}
		flat = append(flat, t)
	}
	switch len(flat) {
	case 0:
		return nil
	case 1:
		return flat[0]
	}
	if op == OpAnd {
		return And{flat}
	}
	return Or{flat}
}

// Render returns the SQL text of e. The result contains no outer
// parentheses and is empty for a nil expression.
func Render(e Expr) string {
	b := &strings.Builder{}
	render(b, e)
	return b.String()
}

func render(b *strings.Builder, e Expr) {
	switch e := e.(type) {
	case nil:
	case Equality:
		b.WriteString(valueOf(e.Key))
		b.WriteString(" = ")
		b.WriteString(pq.QuoteLiteral(e.Value))
	case Membership:
		b.WriteString(valueOf(e.Key))
		b.WriteString(" IN (")
		for i, v := range e.Values {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pq.QuoteLiteral(v))
		}
		b.WriteString(")")
	case Existence:
		b.WriteString(TagsColumn)
		b.WriteString(" ? ")
		b.WriteString(pq.QuoteLiteral(e.Key))
	case And:
		renderTerms(b, OpAnd, e.Terms)
	case Or:
		renderTerms(b, OpOr, e.Terms)
	}
}

func renderTerms(b *strings.Builder, op Op, terms []Expr) {
	sep := " " + op.String() + " "
	for i, t := range terms {
		if i > 0 {
			b.WriteString(sep)
		}
		_, isAnd := t.(And)
		_, isOr := t.(Or)
		if isAnd || isOr {
			b.WriteString("(")
			render(b, t)
			b.WriteString(")")
		} else {
			render(b, t)
		}
	}
}

func valueOf(key string) string {
	return TagsColumn + " ->> " + pq.QuoteLiteral(key)
}
