package internal

import "strings"

// SplitLines splits document content on line feeds. A final line feed does
// not produce a trailing empty line and a carriage return before each line
// feed is dropped.
func SplitLines(content string) []string {
	if content == "" {
		return []string{}
	}
	content = strings.TrimSuffix(content, "\n")
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// JoinLines joins lines with eol and terminates the last one with eol too.
func JoinLines(lines []string, eol string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, eol) + eol
}
