package reply

import (
	"encoding/json"
	"strings"

	"herald/internal/domain"
)

// parseContent turns raw model output into Content. Models asked for a
// structured reply may answer with a JSON object carrying "text" and
// "action", bare or code-fenced, with chatter around it; anything else is
// taken as plain text.
func parseContent(raw string) domain.Content {
	raw = strings.TrimSpace(raw)

	body := raw
	if strings.HasPrefix(body, "```") {
		lines := strings.Split(body, "\n")
		if len(lines) >= 3 && strings.HasPrefix(lines[len(lines)-1], "```") {
			body = strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
		}
	}

	if c, ok := tryParseContentJSON(body); ok {
		return c
	}
	if start, end := findObjectBounds(body); start >= 0 {
		if c, ok := tryParseContentJSON(body[start:end]); ok {
			return c
		}
	}
	return domain.Content{Text: raw}
}

func tryParseContentJSON(s string) (domain.Content, bool) {
	var obj struct {
		Text   *string `json:"text"`
		Action string  `json:"action"`
	}
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj.Text == nil {
		return domain.Content{}, false
	}
	return domain.Content{Text: strings.TrimSpace(*obj.Text), Action: obj.Action}, true
}

// findObjectBounds locates the first top-level JSON object in s and returns
// its start and end+1 offsets, or (-1, -1).
func findObjectBounds(s string) (int, int) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return -1, -1
	}
	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			if ch == '\\' {
				i++
				continue
			}
			if ch == '"' {
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return start, i + 1
			}
		}
	}
	return -1, -1
}
