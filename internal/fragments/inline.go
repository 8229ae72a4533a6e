// # internal/fragments/inline.go
package fragments

import (
	"fmt"
	"strings"
)

// Inliner replaces named spreads with their fragment bodies, recursively,
// bounded by MaxDepth so a missing cycle check can never expand unbounded.
type Inliner struct {
	registry *Registry
	MaxDepth int
}

func NewInliner(registry *Registry, maxDepth int) *Inliner {
	if maxDepth <= 0 {
		maxDepth = 10
	}
	return &Inliner{registry: registry, MaxDepth: maxDepth}
}

// InlineResult carries the resolved text plus per-spread problems. Problems
// are warnings: an unresolved spread is left in place, never dropped.
type InlineResult struct {
	Text    string
	Missing []string
	TooDeep []string
}

// Inline resolves every named spread in text. Each spread becomes an inline
// fragment on the definition's type condition so type context survives.
func (in *Inliner) Inline(text string) InlineResult {
	res := InlineResult{}
	res.Text = in.inline(text, 0, &res)
	return res
}

func (in *Inliner) inline(text string, depth int, res *InlineResult) string {
	return spreadRe.ReplaceAllStringFunc(text, func(spread string) string {
		m := spreadRe.FindStringSubmatch(spread)
		name := m[1]
		if name == "on" || strings.HasPrefix(name, "__ph") {
			return spread
		}
		def, ok := in.registry.Lookup(name)
		if !ok {
			res.Missing = append(res.Missing, name)
			return spread
		}
		if depth >= in.MaxDepth {
			res.TooDeep = append(res.TooDeep, name)
			return spread
		}
		body := in.inline(def.Body, depth+1, res)
		return fmt.Sprintf("... on %s { %s }", def.TypeCondition, body)
	})
}
