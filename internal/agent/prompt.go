package agent

import (
	"strings"
	"time"
)

// DefaultSystemPrompt is the base system prompt used when none is configured.
const DefaultSystemPrompt = `<SYSTEM_CAPABILITY>
* You are operating a computer through the tools provided to you.
* Use the bash tool to run shell commands. Prefer commands that keep output short, for example by piping through head or grep.
* Use the str_replace_editor tool to view, create and edit files.
* When a tool call fails, read the error, adjust the input and try again instead of repeating the same call.
* The current date is {{date}}.
</SYSTEM_CAPABILITY>`

// dateLayout renders dates like "Monday, January 2, 2006".
const dateLayout = "Monday, January 2, 2006"

// BuildSystemPrompt expands the {{date}} placeholder of base and appends
// suffix separated by a single space when suffix is non-empty.
func BuildSystemPrompt(base, suffix string, now time.Time) string {
	prompt := strings.ReplaceAll(base, "{{date}}", now.Format(dateLayout))
	if suffix != "" {
		prompt += " " + suffix
	}
	return prompt
}
