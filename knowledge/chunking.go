package knowledge

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

type chunker struct {
	size    int
	overlap int
}

func newChunker(size int, overlap int) *chunker {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	return &chunker{size: size, overlap: overlap}
}

func (c *chunker) split(text string) []string {
	if c == nil {
		return ChunkText(text, defaultChunkSize, defaultChunkOverlap)
	}
	return ChunkText(text, c.size, c.overlap)
}

// ChunkText cuts text into windows of size characters, each starting
// size-overlap characters after the previous one. The final window may be
// shorter. Windows are measured in runes so multi-byte text is never split
// inside a character.
func ChunkText(text string, size int, overlap int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = defaultChunkSize
	}

	step := size - overlap
	if step < 1 {
		step = 1
	}

	runes := []rune(text)
	total := len(runes)
	chunks := make([]string, 0, total/step+1)
	for start := 0; start < total; start += step {
		end := start + size
		if end > total {
			end = total
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == total {
			break
		}
	}
	return chunks
}
