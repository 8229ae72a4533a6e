// # internal/extract/pattern.go
package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// PatternExtractor locates marker-tagged literals with a regular expression.
// Fast and tolerant of files the structural parser rejects, but its spans are
// best-effort: results from this strategy are suitable for analysis, while
// write-back re-resolves spans structurally first (see apply).
type PatternExtractor struct {
	re *regexp.Regexp
}

func NewPatternExtractor(markerTags []string) (*PatternExtractor, error) {
	if len(markerTags) == 0 {
		return nil, fmt.Errorf("at least one marker tag is required")
	}
	quoted := make([]string, 0, len(markerTags))
	for _, t := range markerTags {
		quoted = append(quoted, regexp.QuoteMeta(t))
	}
	// Backtick literal bodies never contain a bare backtick, so a lazy
	// match up to the next backtick is exact for the tagged form.
	re, err := regexp.Compile("(?s)\\b(" + strings.Join(quoted, "|") + ")`(.*?)`")
	if err != nil {
		return nil, err
	}
	return &PatternExtractor{re: re}, nil
}

func (e *PatternExtractor) ExtractFile(path string, content []byte) ([]TemplateLiteral, error) {
	matches := e.re.FindAllSubmatchIndex(content, -1)
	literals := make([]TemplateLiteral, 0, len(matches))
	for _, m := range matches {
		tag := string(content[m[2]:m[3]])
		start, end := m[4], m[5]
		raw := string(content[start:end])
		literals = append(literals, TemplateLiteral{
			FilePath: path,
			Tag:      tag,
			Span:     SourceSpan{Start: start, End: end},
			Segments: splitSegments(raw),
			RawText:  raw,
			Line:     1 + strings.Count(string(content[:start]), "\n"),
		})
	}
	return literals, nil
}

// splitSegments separates plain text from ${...} substitutions, balancing
// braces so nested object literals inside an expression stay intact.
func splitSegments(raw string) []Segment {
	segments := make([]Segment, 0, 4)
	var text strings.Builder

	for i := 0; i < len(raw); {
		if raw[i] == '$' && i+1 < len(raw) && raw[i+1] == '{' {
			depth := 1
			j := i + 2
			for j < len(raw) && depth > 0 {
				switch raw[j] {
				case '{':
					depth++
				case '}':
					depth--
				}
				j++
			}
			if depth != 0 {
				// Unterminated substitution: treat the rest as text.
				text.WriteString(raw[i:])
				i = len(raw)
				break
			}
			if text.Len() > 0 {
				segments = append(segments, Segment{Text: text.String()})
				text.Reset()
			}
			segments = append(segments, Segment{Expr: raw[i+2 : j-1]})
			i = j
			continue
		}
		text.WriteByte(raw[i])
		i++
	}
	if text.Len() > 0 {
		segments = append(segments, Segment{Text: text.String()})
	}
	return segments
}
