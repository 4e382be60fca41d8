package scheduler

import "strings"

// defaultFallbackLines is how many trailing lines to emit when the new
// capture is not a proper extension of the previous one (e.g. the pane
// scrolled past the old content).
const defaultFallbackLines = 30

func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimRight(text, "\n")
}

// incrementalTail computes the suffix of newText following the longest
// common prefix with prevText, measured in UTF-8 code points so multi-byte
// sequences are never split. If newText is not an extension of prevText
// (the common prefix doesn't cover all of prevText), it falls back to the
// trailing fallbackLines of newText.
func incrementalTail(prevText, newText string, fallbackLines int) (tail string, usedFallback bool) {
	prev := normalize(prevText)
	cur := normalize(newText)

	prevRunes := []rune(prev)
	curRunes := []rune(cur)

	n := 0
	for n < len(prevRunes) && n < len(curRunes) && prevRunes[n] == curRunes[n] {
		n++
	}

	if n == len(prevRunes) {
		tail := curRunes[n:]
		// prev was right-trimmed of trailing newlines, so the first rune of
		// the suffix is the separator reintroduced by that trim, not new
		// content.
		if len(tail) > 0 && tail[0] == '\n' {
			tail = tail[1:]
		}
		return string(tail), false
	}

	if fallbackLines <= 0 {
		fallbackLines = defaultFallbackLines
	}
	return trailingLines(cur, fallbackLines), true
}

func trailingLines(text string, n int) string {
	lines := strings.Split(text, "\n")
	if len(lines) <= n {
		return text
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
