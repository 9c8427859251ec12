package knowledge

import (
	"regexp"
	"strings"

	"concierge-api/internal/domain/entity"
)

// Piece is one chunk produced from extracted text, before persistence.
type Piece struct {
	Index     int
	Content   string
	Type      entity.ChunkType
	WordCount int
	CharCount int
}

// Chunker splits plain text into overlapping, ordered pieces. Section
// boundaries (headings, numbered items, bullets) are honored first; sections
// that exceed the max size are split by sentence aggregation, each new chunk
// seeded with the last overlapWords words of the previous one. Pure and
// deterministic: the same input always yields the same piece sequence.
type Chunker struct {
	maxSize      int
	overlapWords int
}

func NewChunker(maxSize, overlapWords int) *Chunker {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if overlapWords < 0 {
		overlapWords = 0
	}
	return &Chunker{
		maxSize:      maxSize,
		overlapWords: overlapWords,
	}
}

var (
	headingRe  = regexp.MustCompile(`^(#{1,6}\s+\S.*|\d+[.)]\s+\S.*|[-*•]\s+\S.*|[A-Z][A-Z0-9 &/'-]{3,})$`)
	sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]+|[^.!?]+$`)
)

type section struct {
	text   string
	headed bool
}

func (c *Chunker) Chunk(text string) []Piece {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var pieces []Piece
	for _, sec := range splitSections(text) {
		if len(sec.text) <= c.maxSize {
			pieces = appendPiece(pieces, sec.text, entity.ChunkTypeSection)
			continue
		}

		subType := entity.ChunkTypeParagraph
		if sec.headed {
			subType = entity.ChunkTypeSubsection
		}
		for _, content := range c.splitBySentences(sec.text) {
			pieces = appendPiece(pieces, content, subType)
		}
	}

	return pieces
}

func appendPiece(pieces []Piece, content string, chunkType entity.ChunkType) []Piece {
	content = strings.TrimSpace(content)
	if content == "" {
		return pieces
	}
	return append(pieces, Piece{
		Index:     len(pieces),
		Content:   content,
		Type:      chunkType,
		WordCount: len(strings.Fields(content)),
		CharCount: len(content),
	})
}

// splitSections groups lines into sections, opening a new section at every
// line that looks like a heading, numbered item, or bullet.
func splitSections(text string) []section {
	lines := strings.Split(text, "\n")

	var sections []section
	var current []string
	headed := false

	flush := func() {
		joined := strings.TrimSpace(strings.Join(current, "\n"))
		if joined != "" {
			sections = append(sections, section{text: joined, headed: headed})
		}
		current = current[:0]
	}

	for _, line := range lines {
		if headingRe.MatchString(strings.TrimSpace(line)) {
			flush()
			headed = true
		}
		current = append(current, line)
	}
	flush()

	return sections
}

// splitBySentences accumulates sentences into chunks of at most maxSize
// characters. The size is a soft target: a single sentence longer than
// maxSize is kept whole rather than truncated.
func (c *Chunker) splitBySentences(text string) []string {
	flat := strings.Join(strings.Fields(text), " ")

	var sentences []string
	for _, s := range sentenceRe.FindAllString(flat, -1) {
		s = strings.TrimSpace(s)
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var buf strings.Builder

	for _, sentence := range sentences {
		if buf.Len() > 0 && buf.Len()+1+len(sentence) > c.maxSize {
			chunks = append(chunks, buf.String())
			buf.Reset()
			// seed the next chunk with trailing words of the previous one
			// to preserve cross-boundary context
			if overlap := lastWords(chunks[len(chunks)-1], c.overlapWords); overlap != "" {
				buf.WriteString(overlap)
			}
		}
		if buf.Len() > 0 {
			buf.WriteString(" ")
		}
		buf.WriteString(sentence)
	}
	if buf.Len() > 0 {
		chunks = append(chunks, buf.String())
	}

	return chunks
}

func lastWords(text string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(text)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}
