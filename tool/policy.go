package tool

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// DefaultPolicy rejects write clauses in free-form graph queries. Keywords
// inside string literals or comments do not count. Every other call is
// allowed.
const DefaultPolicy = `tool != "query_neo4j" || !has(args.query) || ` +
	`!args.query.stripLiterals().matches("(?i)\\b(create|merge|delete|detach|set|remove|drop|load)\\b")`

// Policy is a CEL expression deciding whether a tool call may run. The
// expression sees three variables: tool (string), args (map) and stage
// (string, empty in single-agent runs) and must evaluate to a bool.
// Strings have an extra stripLiterals() method that blanks out Cypher
// string literals, quoted identifiers and comments.
type Policy struct {
	expr string
	prg  cel.Program
}

// NewPolicy compiles expr.
func NewPolicy(expr string) (*Policy, error) {
	env, err := cel.NewEnv(
		cel.Variable("tool", cel.StringType),
		cel.Variable("args", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("stage", cel.StringType),
		cel.Function("stripLiterals",
			cel.MemberOverload("string_strip_literals", []*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					s, ok := v.(types.String)
					if !ok {
						return types.MaybeNoSuchOverloadErr(v)
					}
					return types.String(StripLiterals(string(s)))
				}),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create policy environment: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile policy: %w", iss.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build policy program: %w", err)
	}

	return &Policy{expr: expr, prg: prg}, nil
}

// Allow evaluates the policy for one call.
func (p *Policy) Allow(name string, args map[string]any, stage string) (bool, error) {
	if args == nil {
		args = map[string]any{}
	}

	out, _, err := p.prg.Eval(map[string]any{
		"tool":  name,
		"args":  args,
		"stage": stage,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate policy: %w", err)
	}

	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("policy must evaluate to bool, got %T", out.Value())
	}

	return allowed, nil
}

// String returns the policy expression.
func (p *Policy) String() string { return p.expr }

// StripLiterals empties the quoted parts of a Cypher query ('...', "..." and
// `...`) and drops its comments, so keyword checks only see clauses. An
// unterminated quote or comment leaves the rest of the query untouched.
func StripLiterals(query string) string {
	var b strings.Builder
	b.Grow(len(query))

	for i := 0; i < len(query); {
		c := query[i]

		switch {
		case c == '\'' || c == '"' || c == '`':
			end := closingQuote(query, i+1, c)
			if end < 0 {
				b.WriteString(query[i:])
				return b.String()
			}
			b.WriteByte(c)
			b.WriteByte(c)
			i = end + 1
		case strings.HasPrefix(query[i:], "//"):
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				return b.String()
			}
			i += end
		case strings.HasPrefix(query[i:], "/*"):
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				b.WriteString(query[i:])
				return b.String()
			}
			b.WriteByte(' ')
			i += 2 + end + 2
		default:
			b.WriteByte(c)
			i++
		}
	}

	return b.String()
}

// closingQuote returns the index of the quote closing a literal that opens
// before from, or -1. Backslash escapes apply to string literals; a doubled
// backtick escapes one inside a quoted identifier.
func closingQuote(query string, from int, q byte) int {
	for i := from; i < len(query); i++ {
		switch query[i] {
		case '\\':
			if q != '`' {
				i++
			}
		case q:
			if q == '`' && i+1 < len(query) && query[i+1] == '`' {
				i++
				continue
			}
			return i
		}
	}
	return -1
}
