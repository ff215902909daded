package analyze

import "strings"

// SplitChunks splits text into ordered chunks no longer than maxChars,
// cutting at sentence boundaries. A single sentence longer than maxChars
// is hard-split so the sequence always terminates. Concatenating the
// chunks (separated by the spaces removed between sentences) covers the
// whole input in order.
func SplitChunks(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxChars <= 0 || len(text) <= maxChars {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}

	for _, sentence := range splitSentences(text) {
		for len(sentence) > maxChars {
			flush()
			chunks = append(chunks, strings.TrimSpace(sentence[:maxChars]))
			sentence = strings.TrimSpace(sentence[maxChars:])
		}
		if sentence == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+1+len(sentence) > maxChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}
	flush()

	return chunks
}

// splitSentences cuts at terminal punctuation followed by whitespace.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	runes := []byte(text)

	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
			end := i + 1
			// swallow trailing closers like quotes or repeated punctuation
			for end < len(runes) && (runes[end] == '.' || runes[end] == '!' || runes[end] == '?' || runes[end] == '"' || runes[end] == '\'') {
				end++
			}
			if end >= len(runes) || runes[end] == ' ' || runes[end] == '\n' || runes[end] == '\t' {
				sentence := strings.TrimSpace(text[start:end])
				if sentence != "" {
					sentences = append(sentences, sentence)
				}
				start = end
				i = end - 1
			}
		}
	}

	if tail := strings.TrimSpace(text[start:]); tail != "" {
		sentences = append(sentences, tail)
	}

	return sentences
}
