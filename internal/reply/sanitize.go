package reply

import (
	"regexp"
	"strings"
)

var (
	emojiPattern   = regexp.MustCompile(`[\x{1F300}-\x{1F9FF}]`)
	hashtagPattern = regexp.MustCompile(`#\w+`)
	punctuationRun = regexp.MustCompile(`[!?.]{2,}`)
	defaultFiller  = regexp.MustCompile(`(?i)oh,?\s*darling\s*`)
)

// Sanitizer strips decorative content from generated text.
// Sanitize is idempotent.
type Sanitizer struct {
	fillers []*regexp.Regexp
}

// NewSanitizer builds a sanitizer for the given filler phrases. With no
// phrases the default "oh, darling" filler is used.
func NewSanitizer(fillerPhrases ...string) *Sanitizer {
	s := &Sanitizer{}
	for _, p := range fillerPhrases {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		words := strings.Fields(p)
		for i, w := range words {
			words[i] = regexp.QuoteMeta(strings.TrimRight(w, ","))
		}
		s.fillers = append(s.fillers, regexp.MustCompile(`(?i)`+strings.Join(words, `,?\s*`)+`\s*`))
	}
	if len(s.fillers) == 0 {
		s.fillers = []*regexp.Regexp{defaultFiller}
	}
	return s
}

// Sanitize removes emoji and hashtags, keeps only the first occurrence of a
// repeated filler phrase, collapses runs of terminal punctuation to their
// last mark and trims.
func (s *Sanitizer) Sanitize(text string) string {
	text = emojiPattern.ReplaceAllString(text, "")
	text = hashtagPattern.ReplaceAllString(text, "")
	for _, f := range s.fillers {
		text = keepFirst(f, text)
	}
	text = punctuationRun.ReplaceAllStringFunc(text, func(run string) string { return run[len(run)-1:] })
	return strings.TrimSpace(text)
}

// keepFirst strips every match of re after the first one, repeating until
// removals stop creating new matches.
func keepFirst(re *regexp.Regexp, text string) string {
	for {
		locs := re.FindAllStringIndex(text, -1)
		if len(locs) < 2 {
			return text
		}
		var b strings.Builder
		b.WriteString(text[:locs[1][0]])
		for i := 1; i < len(locs); i++ {
			end := len(text)
			if i+1 < len(locs) {
				end = locs[i+1][0]
			}
			b.WriteString(text[locs[i][1]:end])
		}
		text = b.String()
	}
}
