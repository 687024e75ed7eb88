package knowledge

import (
	"strings"
	"unicode"
)

// DefaultMaxChunkSize is the chunk size used when the caller does not choose one.
// Sized so a chunk stays comfortably within the embedder's token limit.
const DefaultMaxChunkSize = 1000

// SplitIntoChunks splits text into chunks of at most maxChunkSize bytes by
// greedily packing whole sentences.
//
// Sentences are delimited by sentence-terminal punctuation followed by
// whitespace. When appending the next sentence would push the running buffer
// over maxChunkSize and the buffer is non-empty, the buffer is flushed as a
// chunk and the sentence starts a new one. A single sentence longer than
// maxChunkSize becomes its own over-length chunk; sentences are never split.
//
// The returned order is the source order; the position of a chunk in the
// slice is its chunk index.
func SplitIntoChunks(text string, maxChunkSize int) []string {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var buf strings.Builder
	for _, sentence := range sentences {
		// +1 accounts for the joining space.
		if buf.Len() > 0 && buf.Len()+1+len(sentence) > maxChunkSize {
			chunks = append(chunks, buf.String())
			buf.Reset()
		}
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(sentence)
	}
	if buf.Len() > 0 {
		chunks = append(chunks, buf.String())
	}
	return chunks
}

// splitSentences slices text into sentences. A sentence ends at a run of
// terminal punctuation (. ! ?) followed by whitespace; trailing text without
// terminal punctuation forms a final sentence.
func splitSentences(text string) []string {
	var sentences []string
	var buf strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		buf.WriteRune(runes[i])
		if !isSentenceTerminal(runes[i]) {
			continue
		}
		// Consume the rest of the punctuation run ("?!", "...").
		for i+1 < len(runes) && isSentenceTerminal(runes[i+1]) {
			i++
			buf.WriteRune(runes[i])
		}
		if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
			if s := strings.TrimSpace(buf.String()); s != "" {
				sentences = append(sentences, s)
			}
			buf.Reset()
			for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				i++
			}
		}
	}
	if s := strings.TrimSpace(buf.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isSentenceTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
