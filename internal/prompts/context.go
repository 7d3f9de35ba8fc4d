package prompts

import (
	"fmt"
	"strings"
)

// ItemizedContext lists every displayed result with its number so the
// model can match descriptions to positions.
func ItemizedContext(noun string, total int, lines []string, selected string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Current results\n%d %s are displayed:\n", total, noun)
	for _, l := range lines {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	if selected != "" {
		sb.WriteString(selected)
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

// CompactContext summarizes the displayed results without listing them.
// Used for purely positional requests where the numbers are enough.
func CompactContext(noun string, total int, filters string, selected string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Current results\n%d %s are displayed, numbered 1 to %d.", total, noun, total)
	if filters != "" {
		fmt.Fprintf(&sb, " Filters: %s.", filters)
	}
	if selected != "" {
		sb.WriteByte('\n')
		sb.WriteString(selected)
	}
	return sb.String()
}

// SelectionLine describes the current selection.
func SelectionLine(count int, noun string) string {
	if count == 0 {
		return "Nothing is selected."
	}
	return fmt.Sprintf("Selected: %d %s.", count, noun)
}
