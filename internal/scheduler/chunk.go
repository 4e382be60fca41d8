package scheduler

import "strings"

// chunk splits text into pieces no longer than maxLen runes, preferring to
// split on line boundaries and hard-splitting only when a single line
// itself exceeds maxLen.
func chunk(text string, maxLen int) []string {
	if maxLen <= 0 || len([]rune(text)) <= maxLen {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	lines := strings.Split(text, "\n")
	for _, line := range lines {
		lineRunes := []rune(line)
		for len(lineRunes) > maxLen {
			flush()
			chunks = append(chunks, string(lineRunes[:maxLen]))
			lineRunes = lineRunes[maxLen:]
		}
		segment := string(lineRunes)
		segLen := len([]rune(segment))
		extra := 0 // separator newline written before segment in a non-empty chunk
		if current.Len() > 0 {
			extra = 1
		}
		if currentLen+segLen+extra > maxLen {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
			currentLen++
		}
		current.WriteString(segment)
		currentLen += segLen
	}
	flush()
	return chunks
}
