package catalog

import "regexp"

// defaultFuncRe matches a default expression that starts with a call:
// an optionally schema-qualified, unquoted identifier followed by "(".
//
// It is a heuristic, not an expression parser:
//
//	nextval('s'::regclass)       -> nextval
//	pg_catalog.now()             -> now
//	now() + '1 day'::interval    -> now   (only the head is inspected)
//	(now() + '1 day'::interval)  -> none  (leading parenthesis)
//	'x'::text, 0, CURRENT_DATE   -> none
//	"MixedCase"()                -> none  (quoted identifiers are not matched)
var defaultFuncRe = regexp.MustCompile(`(?i)^\s*(?:[a-z_][\w$]*\.)?([a-z_][\w$]*)\s*\(`)

// ExtractDefaultFunc returns the name of the function a column default
// starts with, or nil when the expression is not a call.
func ExtractDefaultFunc(expr string) *string {
	m := defaultFuncRe.FindStringSubmatch(expr)
	if m == nil {
		return nil
	}
	name := m[1]
	return &name
}
