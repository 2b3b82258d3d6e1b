package postgres

import (
	"strconv"
	"strings"
)

// predicates accumulates AND-combined WHERE clauses and their bound arguments.
// Clause text is always a constant; values only ever travel as positional parameters.
type predicates struct {
	clauses []string
	args    []any
}

// add appends clause, replacing each '?' with the placeholder of the next argument.
func (p *predicates) add(clause string, args ...any) {
	var b strings.Builder
	n := 0
	for _, r := range clause {
		if r != '?' {
			b.WriteRune(r)
			continue
		}
		if n >= len(args) {
			panic("predicates: fewer arguments than placeholders in " + clause)
		}
		b.WriteString(p.bind(args[n]))
		n++
	}
	if n != len(args) {
		panic("predicates: more arguments than placeholders in " + clause)
	}
	p.clauses = append(p.clauses, b.String())
}

// bind registers an argument outside a clause (e.g. LIMIT) and returns its placeholder.
func (p *predicates) bind(v any) string {
	p.args = append(p.args, v)
	return "$" + strconv.Itoa(len(p.args))
}

// where renders the WHERE clause, or an empty string when there are no predicates.
func (p *predicates) where() string {
	if len(p.clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(p.clauses, " AND ")
}
