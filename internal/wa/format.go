package wa

import (
	"fmt"
	"log"
	"regexp"
	"strings"
)

// MaxMessageLen is WhatsApp's per-message body limit in bytes.
const MaxMessageLen = 4096

// Compiled once at startup.
var (
	reBold       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reItalic     = regexp.MustCompile(`\*(.+?)\*`)
	reStrike     = regexp.MustCompile(`~~(.+?)~~`)
	reHeading    = regexp.MustCompile(`(?m)^#{1,3} +(.+)$`)
	reBlockquote = regexp.MustCompile(`(?m)^> ?`)
)

// SendLong converts Markdown to WhatsApp formatting, splits the text into
// message-sized chunks, and sends them in order. Analysis summaries are
// often longer than one message.
func (c *Client) SendLong(to, text string) error {
	if !strings.HasPrefix(to, "+") {
		to = "+" + to
	}

	text = MarkdownToWhatsApp(text)
	chunks := SplitMessage(text, MaxMessageLen)
	for i, chunk := range chunks {
		if _, err := c.SendText(to, chunk); err != nil {
			return fmt.Errorf("send chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	log.Printf("wa: sent %d chunk(s) to %s", len(chunks), to)
	return nil
}

// MarkdownToWhatsApp converts Markdown formatting to WhatsApp-compatible
// formatting (**b**→*b*, *i*→_i_, ~~s~~→~s~, headings→bold, strip quotes).
func MarkdownToWhatsApp(text string) string {
	const boldMarker = "\x01"

	result := reBold.ReplaceAllString(text, boldMarker+"$1"+boldMarker)
	// "_$1_" would parse as the named group ${1_}; brace the index.
	result = reItalic.ReplaceAllString(result, "_${1}_")
	result = strings.ReplaceAll(result, boldMarker, "*")
	result = reStrike.ReplaceAllString(result, "~$1~")
	result = reHeading.ReplaceAllString(result, "*$1*")
	result = reBlockquote.ReplaceAllString(result, "")

	return result
}

// SplitMessage splits text into chunks of at most maxLen bytes, preferring
// paragraph, line, sentence, then word boundaries.
func SplitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	minSplit := maxLen / 4
	var chunks []string

	for len(text) > maxLen {
		chunk := text[:maxLen]

		if i := strings.LastIndex(chunk, "\n\n"); i >= minSplit {
			chunks = append(chunks, strings.TrimSpace(text[:i]))
			text = strings.TrimSpace(text[i:])
			continue
		}

		if i := strings.LastIndex(chunk, "\n"); i >= minSplit {
			chunks = append(chunks, strings.TrimSpace(text[:i]))
			text = strings.TrimSpace(text[i:])
			continue
		}

		splitPos := -1
		for _, sep := range []string{". ", "? ", "! "} {
			if i := strings.LastIndex(chunk, sep); i >= minSplit {
				pos := i + 1
				if pos > splitPos {
					splitPos = pos
				}
			}
		}
		if splitPos >= 0 {
			chunks = append(chunks, strings.TrimSpace(text[:splitPos]))
			text = strings.TrimSpace(text[splitPos:])
			continue
		}

		if i := strings.LastIndex(chunk, " "); i >= minSplit {
			chunks = append(chunks, strings.TrimSpace(text[:i]))
			text = strings.TrimSpace(text[i:])
			continue
		}

		chunks = append(chunks, strings.TrimSpace(text[:maxLen]))
		text = strings.TrimSpace(text[maxLen:])
	}

	if text != "" {
		chunks = append(chunks, strings.TrimSpace(text))
	}

	return chunks
}
