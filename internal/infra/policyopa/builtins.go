package policyopa

import "github.com/open-policy-agent/opa/ast"

// allowedBuiltins keeps enforcement policies pure: no time, randomness or I/O.
var allowedBuiltins = map[string]struct{}{
	"abs":               {},
	"assign":            {},
	"ceil":              {},
	"concat":            {},
	"count":             {},
	"endswith":          {},
	"eq":                {},
	"equal":             {},
	"floor":             {},
	"format_int":        {},
	"gt":                {},
	"gte":               {},
	"internal.member_2": {},
	"internal.member_3": {},
	"lower":             {},
	"lt":                {},
	"lte":               {},
	"max":               {},
	"min":               {},
	"minus":             {},
	"mul":               {},
	"neq":               {},
	"object.get":        {},
	"plus":              {},
	"round":             {},
	"sprintf":           {},
	"startswith":        {},
	"sum":               {},
	"upper":             {},
}

func filterBuiltins(builtins []*ast.Builtin) []*ast.Builtin {
	allowed := make([]*ast.Builtin, 0, len(builtins))
	for _, builtin := range builtins {
		if _, ok := allowedBuiltins[builtin.Name]; !ok {
			continue
		}
		allowed = append(allowed, builtin)
	}
	return allowed
}
