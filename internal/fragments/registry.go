// # internal/fragments/registry.go
package fragments

import (
	"regexp"
	"strings"

	"gqlshift/internal/core/errors"
	"gqlshift/internal/shared/util"
)

// Definition is one named fragment found in a source file. Body holds the
// selection text between the braces, opaque except for nested spreads;
// interpolated expressions inside it are preserved verbatim.
type Definition struct {
	Name          string
	TypeCondition string
	Body          string
	DeclaringFile string
}

// Registry is a name-keyed fragment map for one extraction run. It is built
// once per run and passed through the pipeline; it is never process-global,
// so concurrent runs cannot interfere.
type Registry struct {
	defs map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds a fragment definition. A name collision across files is a
// hard error carrying both declaring files: silently picking one definition
// would make inlining nondeterministic.
func (r *Registry) Register(def Definition) error {
	if existing, ok := r.defs[def.Name]; ok {
		if existing.DeclaringFile == def.DeclaringFile && existing.Body == def.Body {
			return nil
		}
		err := errors.Newf(errors.CodeValidationError,
			"fragment %q defined in both %s and %s", def.Name, existing.DeclaringFile, def.DeclaringFile)
		return errors.AddContext(err, errors.CtxFragment, def.Name)
	}
	r.defs[def.Name] = def
	return nil
}

func (r *Registry) Lookup(name string) (Definition, bool) {
	def, ok := r.defs[name]
	return def, ok
}

func (r *Registry) Len() int {
	return len(r.defs)
}

// Names returns registered fragment names in sorted order.
func (r *Registry) Names() []string {
	return util.SortedStringKeys(r.defs)
}

var fragmentHeadRe = regexp.MustCompile(`\bfragment\s+([A-Za-z_][A-Za-z0-9_]*)\s+on\s+([A-Za-z_][A-Za-z0-9_]*)\s*\{`)

// ParseDefinitions scans literal text for fragment definitions. Bodies are
// captured by brace balancing, not by GraphQL parsing, so literals containing
// un-evaluated interpolations still yield usable definitions.
func ParseDefinitions(raw, declaringFile string) []Definition {
	var defs []Definition
	for _, m := range fragmentHeadRe.FindAllStringSubmatchIndex(raw, -1) {
		name := raw[m[2]:m[3]]
		typeCond := raw[m[4]:m[5]]
		openBrace := m[1] - 1
		body, ok := balancedBody(raw, openBrace)
		if !ok {
			continue
		}
		defs = append(defs, Definition{
			Name:          name,
			TypeCondition: typeCond,
			Body:          strings.TrimSpace(body),
			DeclaringFile: declaringFile,
		})
	}
	return defs
}

// balancedBody returns the text between the brace at openBrace and its match.
func balancedBody(raw string, openBrace int) (string, bool) {
	depth := 0
	for i := openBrace; i < len(raw); i++ {
		switch raw[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[openBrace+1 : i], true
			}
		}
	}
	return "", false
}

var spreadRe = regexp.MustCompile(`\.\.\.\s*([A-Za-z_][A-Za-z0-9_]*)`)

// SpreadNames lists named-fragment spreads in a selection text. Inline
// fragments (`... on Type`) and masked placeholders are not dependencies.
func SpreadNames(body string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range spreadRe.FindAllStringSubmatch(body, -1) {
		name := m[1]
		if name == "on" || strings.HasPrefix(name, "__ph") {
			continue
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}
