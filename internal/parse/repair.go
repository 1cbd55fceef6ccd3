package parse

import "regexp"

// repairTransform is one pure, independently testable JSON repair. Transforms
// are applied in order, cumulatively, retrying the parse after each.
type repairTransform struct {
	name  string
	apply func(string) string
}

var (
	trailingCommaRe  = regexp.MustCompile(`,\s*([}\]])`)
	leadingCommaRe   = regexp.MustCompile(`([\[{])\s*,`)
	repeatedCommaRe  = regexp.MustCompile(`,\s*,`)
	commaOnlyArrayRe = regexp.MustCompile(`\[\s*(?:,\s*)+\]`)
)

// repairs is the fixed, ordered repair chain for common backend malformations.
var repairs = []repairTransform{
	{
		// {"a": 1,} and [1, 2,]
		name: "trailing-comma",
		apply: func(s string) string {
			return trailingCommaRe.ReplaceAllString(s, "$1")
		},
	},
	{
		// [ , , , ] — arrays of nothing produced by some backends
		name: "comma-only-array",
		apply: func(s string) string {
			return commaOnlyArrayRe.ReplaceAllString(s, "[]")
		},
	},
	{
		// [ , "x"] and { , "k": 1 }
		name: "leading-comma",
		apply: func(s string) string {
			return leadingCommaRe.ReplaceAllString(s, "$1")
		},
	},
	{
		// ["a", , "b"] — empty elements collapse until stable
		name: "repeated-comma",
		apply: func(s string) string {
			for {
				next := repeatedCommaRe.ReplaceAllString(s, ",")
				if next == s {
					return s
				}
				s = next
			}
		},
	},
}
