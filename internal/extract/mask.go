// # internal/extract/mask.go
package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// Interpolated expressions are opaque: before handing literal text to the
// GraphQL parser each `${expr}` is masked to a sentinel name token, and the
// sentinel is swapped back verbatim on output. Expressions are never
// evaluated.

var sentinelRe = regexp.MustCompile(`__ph(\d+)__`)

func sentinel(i int) string {
	return fmt.Sprintf("__ph%d__", i)
}

// MaskedText is the parseable form of a template literal plus the mapping
// needed to translate parser offsets back onto the raw text.
type MaskedText struct {
	Text  string
	exprs []string
	spans []maskSpan
}

type maskSpan struct {
	maskedStart int
	maskedLen   int
	rawLen      int
}

// Mask builds the parseable text from literal segments. Sentinels are valid
// GraphQL names, so `...${expr}` masks to a well-formed fragment spread and a
// bare `${expr}` masks to a field.
func Mask(segments []Segment) MaskedText {
	var b strings.Builder
	m := MaskedText{}
	for _, seg := range segments {
		if !seg.IsPlaceholder() {
			b.WriteString(seg.Text)
			continue
		}
		idx := len(m.exprs)
		tok := sentinel(idx)
		m.spans = append(m.spans, maskSpan{
			maskedStart: b.Len(),
			maskedLen:   len(tok),
			rawLen:      len(seg.Expr) + 3, // ${ expr }
		})
		m.exprs = append(m.exprs, seg.Expr)
		b.WriteString(tok)
	}
	m.Text = b.String()
	return m
}

// ToRawOffset maps an offset in the masked text to the corresponding offset
// in the raw literal text. Offsets inside a sentinel map to its start.
func (m *MaskedText) ToRawOffset(maskedOff int) int {
	delta := 0
	for _, s := range m.spans {
		if maskedOff <= s.maskedStart {
			break
		}
		if maskedOff < s.maskedStart+s.maskedLen {
			maskedOff = s.maskedStart
			break
		}
		delta += s.rawLen - s.maskedLen
	}
	return maskedOff + delta
}

// Restore replaces every sentinel in a (possibly transformed) masked text
// with its original `${expr}` form.
func (m *MaskedText) Restore(text string) string {
	return sentinelRe.ReplaceAllStringFunc(text, func(tok string) string {
		var idx int
		if _, err := fmt.Sscanf(tok, "__ph%d__", &idx); err != nil || idx >= len(m.exprs) {
			return tok
		}
		return "${" + m.exprs[idx] + "}"
	})
}

// RawText rebuilds the original literal content from its segments.
func RawText(segments []Segment) string {
	var b strings.Builder
	for _, seg := range segments {
		if seg.IsPlaceholder() {
			b.WriteString("${")
			b.WriteString(seg.Expr)
			b.WriteString("}")
		} else {
			b.WriteString(seg.Text)
		}
	}
	return b.String()
}
