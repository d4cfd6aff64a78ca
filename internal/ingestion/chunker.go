package ingestion

import "strings"

const (
	defaultChunkSize    = 120
	defaultChunkOverlap = 20
)

// ChunkWords splits text into overlapping word windows. chunkSize is
// the number of words per chunk and overlap the number of trailing
// words shared with the next chunk. The window always advances by at
// least one word, so chunking terminates for any input; identical text
// and parameters always produce the identical chunk sequence.
func ChunkWords(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize - 1
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := chunkSize - overlap

	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + chunkSize
		if end > len(words) {
			end = len(words)
		}

		chunks = append(chunks, strings.Join(words[start:end], " "))

		if end == len(words) {
			break
		}
	}

	return chunks
}
