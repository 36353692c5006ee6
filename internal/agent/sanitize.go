package agent

import (
	"log/slog"
	"regexp"
	"strings"
)

// silentToken is the reply an agent gives when nothing should be posted
// back to the callback.
const silentToken = "NO_REPLY"

// contentCleaners run in order over model output.
var contentCleaners = []func(string) string{
	stripReasoning,
	stripFinalTags,
	stripSystemEcho,
	dedupeParagraphs,
	strings.TrimSpace,
}

// SanitizeAssistantContent cleans model output before it is posted to a
// callback: reasoning tags are removed, <final> wrappers unwrapped, echoed
// system blocks dropped and repeated paragraphs collapsed.
func SanitizeAssistantContent(content string) string {
	if content == "" {
		return content
	}
	cleaned := content
	for _, clean := range contentCleaners {
		cleaned = clean(cleaned)
	}
	if cleaned != content {
		slog.Debug("agent: sanitized reply", "before", len(content), "after", len(cleaned))
	}
	return cleaned
}

// No backreferences in RE2, so one pattern per tag name.
var reasoningPatterns = func() []*regexp.Regexp {
	var out []*regexp.Regexp
	for _, tag := range []string{"think", "thinking", "thought", "antthinking"} {
		out = append(out, regexp.MustCompile(`(?is)<`+tag+`>.*?</`+tag+`>`))
	}
	return out
}()

func stripReasoning(s string) string {
	lower := strings.ToLower(s)
	if !strings.Contains(lower, "<think") && !strings.Contains(lower, "<thought") && !strings.Contains(lower, "<antthinking") {
		return s
	}
	for _, re := range reasoningPatterns {
		s = re.ReplaceAllString(s, "")
	}
	return strings.TrimSpace(s)
}

var finalTag = regexp.MustCompile(`(?i)<\s*/?\s*final\s*>`)

func stripFinalTags(s string) string {
	return finalTag.ReplaceAllString(s, "")
}

// stripSystemEcho drops "[System Message]" blocks, each running to the next
// blank line.
func stripSystemEcho(s string) string {
	const marker = "[System Message]"
	if !strings.Contains(s, marker) {
		return s
	}
	var kept []string
	inBlock := false
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, marker):
			inBlock = true
		case inBlock:
			inBlock = trimmed != ""
		default:
			kept = append(kept, line)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func dedupeParagraphs(s string) string {
	paragraphs := strings.Split(s, "\n\n")
	if len(paragraphs) < 2 {
		return s
	}
	kept := paragraphs[:0]
	prev := ""
	for _, p := range paragraphs {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" || trimmed == prev {
			continue
		}
		kept = append(kept, p)
		prev = trimmed
	}
	return strings.Join(kept, "\n\n")
}

// IsSilentReply reports whether text is the NO_REPLY token, alone or at
// either end of the text as a whole word.
func IsSilentReply(text string) bool {
	trimmed := strings.TrimSpace(text)
	if !strings.Contains(trimmed, silentToken) {
		return false
	}
	if trimmed == silentToken {
		return true
	}
	if rest, ok := strings.CutPrefix(trimmed, silentToken); ok && !isWordChar(rest[0]) {
		return true
	}
	if before, ok := strings.CutSuffix(trimmed, silentToken); ok && !isWordChar(before[len(before)-1]) {
		return true
	}
	return false
}

func isWordChar(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}
