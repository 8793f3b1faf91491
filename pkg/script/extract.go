// Package script pulls fenced AppleScript blocks and the user goal out of LLM output.
package script

import (
	"regexp"
	"strings"
)

var (
	blockPattern = regexp.MustCompile("(?s)```applescript(.*?)```")
	goalPattern  = regexp.MustCompile(`(?s)<user_goal>(.*?)</user_goal>`)
)

// Block is one unique script body and its first-seen position.
type Block struct {
	Index int
	Text  string
}

// Extract returns the unique, trimmed script bodies of payload in first-seen order.
// Empty bodies are skipped. A nil result means the payload holds no script.
func Extract(payload string) []Block {
	matches := blockPattern.FindAllStringSubmatch(payload, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	var blocks []Block
	for _, m := range matches {
		text := strings.TrimSpace(m[1])
		if text == "" {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		blocks = append(blocks, Block{Index: len(blocks), Text: text})
	}
	return blocks
}

// ExtractGoal returns the first <user_goal> body, or "" when absent.
func ExtractGoal(payload string) string {
	m := goalPattern.FindStringSubmatch(payload)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
