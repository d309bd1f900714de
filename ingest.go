package papergen

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

// IngestResult summarizes one document ingestion.
type IngestResult struct {
	Filename       string `json:"filename"`
	FileHash       string `json:"file_hash"`
	ChunksUploaded int    `json:"chunks_uploaded"`
	Class          string `json:"class"`
	Subject        string `json:"subject"`
	Chapter        string `json:"chapter"`
}

// Ingestor splits syllabus documents into overlapping chunks, embeds them
// and upserts them into the vector index with curriculum metadata.
type Ingestor struct {
	index        *PineconeIndex
	embedder     Embedder
	chunkSize    int
	chunkOverlap int
}

// NewIngestor creates an ingestor writing to the given index.
func NewIngestor(index *PineconeIndex, embedder Embedder) *Ingestor {
	return &Ingestor{
		index:        index,
		embedder:     embedder,
		chunkSize:    defaultChunkSize,
		chunkOverlap: defaultChunkOverlap,
	}
}

// IngestDocument chunks, embeds, and uploads one document's text. The file
// hash identifies the document for later listing and deletion.
func (ing *Ingestor) IngestDocument(ctx context.Context, filename, content, class, subject, chapter string) (IngestResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return IngestResult{}, fmt.Errorf("document %s is empty", filename)
	}

	sum := sha256.Sum256([]byte(content))
	fileHash := hex.EncodeToString(sum[:])

	chunks := ChunkText(content, ing.chunkSize, ing.chunkOverlap)
	log.Printf("Ingesting %s: %d chunks", filename, len(chunks))

	vectors := make([]PineconeVector, 0, len(chunks))
	for i, chunk := range chunks {
		values, err := ing.embedder.Embed(ctx, chunk)
		if err != nil {
			return IngestResult{}, fmt.Errorf("failed to embed chunk %d of %s: %w", i, filename, err)
		}

		vectors = append(vectors, PineconeVector{
			ID:     fmt.Sprintf("%s-%d", fileHash, i),
			Values: values,
			Metadata: map[string]interface{}{
				"text":        chunk,
				"filename":    filename,
				"file_hash":   fileHash,
				"chunk_index": i,
				"class":       class,
				"subject":     subject,
				"chapter":     chapter,
			},
		})
	}

	if err := ing.index.Upsert(ctx, vectors); err != nil {
		return IngestResult{}, fmt.Errorf("failed to upsert %s: %w", filename, err)
	}

	log.Printf("Successfully ingested %s: %d chunks", filename, len(vectors))
	return IngestResult{
		Filename:       filename,
		FileHash:       fileHash,
		ChunksUploaded: len(vectors),
		Class:          class,
		Subject:        subject,
		Chapter:        chapter,
	}, nil
}

// ChunkText splits text into word windows of chunkSize words with overlap
// words shared between consecutive chunks.
func ChunkText(text string, chunkSize, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}

	if len(words) <= chunkSize {
		return []string{strings.Join(words, " ")}
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
