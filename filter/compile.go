package filter

import (
	"sort"

	"github.com/lib/pq"
)

// Wildcard as the only value of a key matches any value.
const Wildcard = "*"

// TagFilter selects rows by tag. Or keys are combined with OR, And keys
// with AND. A key with no values (or the wildcard) only requires the key
// to be present.
type TagFilter struct {
	Or  map[string][]string `json:"join_or" yaml:"join_or"`
	And map[string][]string `json:"join_and" yaml:"join_and"`
}

func (tf *TagFilter) Empty() bool {
	return tf == nil || (len(tf.Or) == 0 && len(tf.And) == 0)
}

// KeyExpr returns the predicate for a single key: existence for no
// values, equality for one value and membership for more.
func KeyExpr(key string, values []string) Expr {
	for _, v := range values {
		if v == Wildcard {
			return Existence{Key: key}
		}
	}
	switch len(values) {
	case 0:
		return Existence{Key: key}
	case 1:
		return Equality{Key: key, Value: values[0]}
	default:
		vs := make([]string, len(values))
		copy(vs, values)
		return Membership{Key: key, Values: vs}
	}
}

func keyExprs(group map[string][]string) []Expr {
	keys := make([]string, 0, len(group))
	for k := range group {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	exprs := make([]Expr, 0, len(keys))
	for _, k := range keys {
		exprs = append(exprs, KeyExpr(k, group[k]))
	}
	return exprs
}

// Compile translates tf into a predicate. The or group and the and group
// are combined with join. An and group with a single key is folded into
// join directly. Keys are visited in sorted order, so equal filters
// always compile to the same expression.
func Compile(tf *TagFilter, join Op) Expr {
	if tf.Empty() {
		return nil
	}
	orGroup := Join(OpOr, keyExprs(tf.Or)...)

	var andGroup Expr
	andTerms := keyExprs(tf.And)
	if len(andTerms) == 1 {
		andGroup = andTerms[0]
	} else if len(andTerms) > 1 {
		andGroup = And{andTerms}
	}
	return Join(join, orGroup, andGroup)
}

// CompileString returns the rendered predicate of tf, joined with OR.
// The result can be appended to a WHERE clause as " AND (" + pred + ")".
func CompileString(tf *TagFilter) string {
	return Render(Compile(tf, OpOr))
}

// Columns projects each tag key as a column of the same name.
func Columns(keys []string) []string {
	cols := make([]string, 0, len(keys))
	for _, k := range keys {
		cols = append(cols, valueOf(k)+" AS "+pq.QuoteIdentifier(k))
	}
	return cols
}
