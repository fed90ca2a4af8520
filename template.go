package promptflow

import (
	"strconv"
	"strings"
)

// RenderPrompt substitutes the numbered placeholders of text with context values.
//
// Placeholders are one-based: {N} reads context[N-1], and {0} is clamped to the first value.
// "{{" and "}}" produce literal braces, and an escaped placeholder {{N}} keeps the
// shift, rendering as the literal {N-1}. Any other brace text is copied as is.
// A placeholder past the end of context fails with *TemplateRenderError.
func RenderPrompt(text string, context []string) (string, error) {
	var b strings.Builder
	b.Grow(len(text))

	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == '{' && i+1 < len(text) && text[i+1] == '{':
			// An escaped placeholder is still shifted: {{2}} renders as {1}.
			if n, end, ok := escapedPlaceholder(text, i); ok {
				b.WriteByte('{')
				b.WriteString(strconv.Itoa(max(n-1, 0)))
				b.WriteByte('}')
				i = end
				continue
			}
			b.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(text) && text[i+1] == '}':
			b.WriteByte('}')
			i += 2
		case c == '{':
			j := i + 1
			for j < len(text) && text[j] >= '0' && text[j] <= '9' {
				j++
			}
			if j == i+1 || j >= len(text) || text[j] != '}' {
				b.WriteByte(c)
				i++
				continue
			}
			digits := text[i+1 : j]
			idx, ok := placeholderIndex(digits, len(context))
			if !ok {
				return "", &TemplateRenderError{Index: digits, Available: len(context)}
			}
			b.WriteString(context[idx])
			i = j + 1
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

// placeholderIndex shifts a one-based placeholder to a context index.
func placeholderIndex(digits string, available int) (int, bool) {
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	idx := n - 1
	if idx < 0 {
		idx = 0
	}
	return idx, idx < available
}

// escapedPlaceholder matches "{{digits}}" at text[i:], returning the number and the
// offset just past the closing braces.
func escapedPlaceholder(text string, i int) (int, int, bool) {
	j := i + 2
	for j < len(text) && text[j] >= '0' && text[j] <= '9' {
		j++
	}
	if j == i+2 || j+1 >= len(text) || text[j] != '}' || text[j+1] != '}' {
		return 0, 0, false
	}
	n, err := strconv.Atoi(text[i+2 : j])
	if err != nil {
		return 0, 0, false
	}
	return n, j + 2, true
}
