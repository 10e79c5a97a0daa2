// Package prompt renders prompt templates over conversation state.
package prompt

import (
	"regexp"

	"herald/internal/domain"
)

var placeholder = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Compose replaces every {{key}} in template with the state variable of the
// same name. Unknown keys render as the empty string.
func Compose(template string, state *domain.ConversationState) string {
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		if state == nil {
			return ""
		}
		return state.Get(placeholder.FindStringSubmatch(m)[1])
	})
}
