// Package chunk fits text into length-limited channel messages.
// Lengths are measured in runes.
package chunk

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Ellipsis marks truncated text.
const Ellipsis = "..."

// Split breaks text into ordered chunks of at most maxLen runes, packing whole
// lines greedily. Lines longer than maxLen are hard-cut; joining the result
// with "\n" yields text with a newline inserted only at those cuts.
// A non-positive maxLen disables splitting.
func Split(text string, maxLen int) []string {
	if text == "" {
		return nil
	}
	if maxLen <= 0 {
		return []string{text}
	}

	var (
		chunks []string
		cur    strings.Builder
		curLen int
		open   bool
	)
	for _, line := range strings.Split(text, "\n") {
		for _, piece := range hardCut(line, maxLen) {
			n := utf8.RuneCountInString(piece)
			if open && curLen+n+1 <= maxLen {
				cur.WriteByte('\n')
				cur.WriteString(piece)
				curLen += n + 1
				continue
			}
			if open {
				chunks = append(chunks, cur.String())
			}
			cur.Reset()
			cur.WriteString(piece)
			curLen = n
			open = true
		}
	}
	if open {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// hardCut splits a single line into pieces of at most maxLen runes.
func hardCut(line string, maxLen int) []string {
	if utf8.RuneCountInString(line) <= maxLen {
		return []string{line}
	}
	r := []rune(line)
	var out []string
	for len(r) > maxLen {
		out = append(out, string(r[:maxLen]))
		r = r[maxLen:]
	}
	return append(out, string(r))
}

// Truncate shortens text to at most maxLen runes. It prefers ending on the
// last '.' within the limit, then on the last whitespace (adding Ellipsis),
// and finally hard-cuts at maxLen-len(Ellipsis) and adds Ellipsis.
func Truncate(text string, maxLen int) string {
	r := []rune(text)
	if len(r) <= maxLen {
		return text
	}
	if maxLen <= 0 {
		return ""
	}
	ell := utf8.RuneCountInString(Ellipsis)
	if maxLen <= ell {
		return string(r[:maxLen])
	}

	if i := lastIndex(r[:maxLen], func(c rune) bool { return c == '.' }); i >= 0 {
		if out := strings.TrimSpace(string(r[:i+1])); out != "" {
			return out
		}
	}

	// whitespace at index <= maxLen-ell keeps the ellipsis inside the limit
	if i := lastIndex(r[:maxLen-ell+1], unicode.IsSpace); i >= 0 {
		if out := strings.TrimSpace(string(r[:i])); out != "" {
			return out + Ellipsis
		}
	}

	return strings.TrimSpace(string(r[:maxLen-ell])) + Ellipsis
}

func lastIndex(r []rune, match func(rune) bool) int {
	for i := len(r) - 1; i >= 0; i-- {
		if match(r[i]) {
			return i
		}
	}
	return -1
}
