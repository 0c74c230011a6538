// Package transcript assembles recognized speech segments into answer text.
package transcript

import (
	"strings"

	"github.com/rbright/rehearse/internal/modeltext"
)

// Options controls transcript formatting.
type Options struct {
	CapitalizeSentences bool
}

// Assemble merges recognizer segments and applies configured normalization.
func Assemble(segments []string, opts Options) string {
	merged := Merge(segments)
	if len(merged) == 0 {
		return ""
	}

	text := modeltext.Normalize(strings.Join(merged, " "))
	if opts.CapitalizeSentences {
		text = capitalize(text)
	}
	return text
}

// Merge drops blank segments and folds continuation segments into their
// predecessor so repeated partial results do not duplicate text.
func Merge(segments []string) []string {
	out := make([]string, 0, len(segments))
	for _, raw := range segments {
		seg := modeltext.Normalize(raw)
		if seg == "" {
			continue
		}
		if len(out) == 0 {
			out = append(out, seg)
			continue
		}

		last := out[len(out)-1]
		switch {
		case seg == last, strings.HasPrefix(last, seg):
		case strings.HasPrefix(seg, last):
			out[len(out)-1] = seg
		default:
			out = append(out, seg)
		}
	}
	return out
}
