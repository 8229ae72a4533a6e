// # internal/extract/structural.go
package extract

import (
	"errors"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// StructuralExtractor walks the syntax tree to find marker-tagged template
// literals precisely. Required whenever the result must be written back to
// source, since only the tree gives exact byte spans for literal content and
// substitutions.
type StructuralExtractor struct {
	loader     *GrammarLoader
	markerTags map[string]bool
}

func NewStructuralExtractor(loader *GrammarLoader, markerTags []string) *StructuralExtractor {
	tags := make(map[string]bool, len(markerTags))
	for _, t := range markerTags {
		tags[t] = true
	}
	return &StructuralExtractor{loader: loader, markerTags: tags}
}

type extractionContext struct {
	source   []byte
	filePath string
	literals []TemplateLiteral
}

func (c *extractionContext) text(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	return string(c.source[node.StartByte():node.EndByte()])
}

func (e *StructuralExtractor) ExtractFile(path string, content []byte) ([]TemplateLiteral, error) {
	langName := DetectLanguage(path)
	if langName == "" {
		return nil, errors.New("unsupported language")
	}
	lang, err := e.loader.Language(langName)
	if err != nil {
		return nil, err
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree := parser.Parse(content, nil)
	if tree == nil {
		return nil, errors.New("parse failed")
	}
	defer tree.Close()

	// An errored tree may still contain the literals, but its spans are not
	// trustworthy for write-back. Callers fall back to the pattern strategy.
	if tree.RootNode().HasError() {
		return nil, errors.New("source contains syntax errors")
	}

	ctx := &extractionContext{source: content, filePath: path}
	e.walk(ctx, tree.RootNode())
	return ctx.literals, nil
}

// ParseCheck reports whether the file content parses without syntax errors.
// Used by the applicator to validate rewritten files before writing.
func (e *StructuralExtractor) ParseCheck(path string, content []byte) (bool, error) {
	langName := DetectLanguage(path)
	if langName == "" {
		return false, errors.New("unsupported language")
	}
	lang, err := e.loader.Language(langName)
	if err != nil {
		return false, err
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree := parser.Parse(content, nil)
	if tree == nil {
		return false, errors.New("parse failed")
	}
	defer tree.Close()

	return !tree.RootNode().HasError(), nil
}

func (e *StructuralExtractor) walk(ctx *extractionContext, node *sitter.Node) {
	if node == nil {
		return
	}

	if node.Kind() == "call_expression" {
		if lit, ok := e.taggedTemplate(ctx, node); ok {
			ctx.literals = append(ctx.literals, lit)
			// Substitutions inside the literal may themselves contain
			// nested templates; those are opaque and not descended into.
			return
		}
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		e.walk(ctx, node.Child(i))
	}
}

// taggedTemplate matches gql`...` style calls: a call_expression whose
// arguments child is a template_string and whose function is a marker tag.
func (e *StructuralExtractor) taggedTemplate(ctx *extractionContext, node *sitter.Node) (TemplateLiteral, bool) {
	fn := node.ChildByFieldName("function")
	args := node.ChildByFieldName("arguments")
	if fn == nil || args == nil || args.Kind() != "template_string" {
		return TemplateLiteral{}, false
	}

	tag := tagName(ctx.text(fn))
	if !e.markerTags[tag] {
		return TemplateLiteral{}, false
	}

	segments := templateSegments(ctx, args)

	// Content span excludes the backticks.
	start := int(args.StartByte()) + 1
	end := int(args.EndByte()) - 1
	raw := string(ctx.source[start:end])

	return TemplateLiteral{
		FilePath: ctx.filePath,
		Tag:      tag,
		Span:     SourceSpan{Start: start, End: end},
		Segments: segments,
		RawText:  raw,
		Line:     int(args.StartPosition().Row) + 1,
	}, true
}

// tagName reduces `graphql.experimental` or `api.gql` to the trailing
// identifier so member-expression tags still match marker config.
func tagName(fnText string) string {
	fnText = strings.TrimSpace(fnText)
	if idx := strings.LastIndex(fnText, "."); idx >= 0 {
		return fnText[idx+1:]
	}
	return fnText
}

func templateSegments(ctx *extractionContext, template *sitter.Node) []Segment {
	segments := make([]Segment, 0, template.ChildCount())
	for i := uint(0); i < template.ChildCount(); i++ {
		child := template.Child(i)
		switch child.Kind() {
		case "string_fragment":
			segments = append(segments, Segment{Text: ctx.text(child)})
		case "template_substitution":
			// Text is `${expr}`; keep only the inner expression, verbatim.
			full := ctx.text(child)
			expr := strings.TrimSuffix(strings.TrimPrefix(full, "${"), "}")
			segments = append(segments, Segment{Expr: expr})
		}
	}
	return segments
}
