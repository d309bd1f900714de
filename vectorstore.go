package papergen

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	openai "github.com/sashabaranov/go-openai"
)

// embeddingDimension matches the text-embedding-3-small output size the
// index was created with.
const embeddingDimension = 1536

// Embedder turns text into a vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OpenAIEmbedder produces embeddings through the OpenAI API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIEmbedder creates an embedder using the given model name.
func NewOpenAIEmbedder(client *openai.Client, model string) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client: client,
		model:  openai.EmbeddingModel(model),
	}
}

// Embed generates the embedding vector for one text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.ReplaceAll(text, "\n", " ")

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding in response")
	}
	return resp.Data[0].Embedding, nil
}

// PineconeVector is one upsert record.
type PineconeVector struct {
	ID       string                 `json:"id"`
	Values   []float32              `json:"values"`
	Metadata map[string]interface{} `json:"metadata"`
}

// DocumentInfo describes one ingested document, unique by file hash.
type DocumentInfo struct {
	Filename string `json:"filename"`
	FileHash string `json:"file_hash"`
	Class    string `json:"class"`
	Subject  string `json:"subject"`
	Chapter  string `json:"chapter"`
}

// IndexStats summarizes the vector index.
type IndexStats struct {
	TotalVectors int `json:"total_vectors"`
	Dimension    int `json:"dimension"`
}

// PineconeIndex talks to a Pinecone index over its data-plane REST API and
// satisfies ContextIndex for the retrieval stage.
type PineconeIndex struct {
	http     *resty.Client
	embedder Embedder
}

// NewPineconeIndex creates a client for the index at host. The embedder is
// used to vectorize query text.
func NewPineconeIndex(host, apiKey string, embedder Embedder) *PineconeIndex {
	client := resty.New().
		SetBaseURL(host).
		SetHeader("Api-Key", apiKey).
		SetHeader("Content-Type", "application/json")

	return &PineconeIndex{
		http:     client,
		embedder: embedder,
	}
}

type pineconeMatch struct {
	ID       string                 `json:"id"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata"`
}

type pineconeQueryResponse struct {
	Matches []pineconeMatch `json:"matches"`
}

// Query embeds the query text and returns the top-k matches, restricted by
// the exact-match metadata filters. Empty filter values are skipped.
func (p *PineconeIndex) Query(ctx context.Context, query string, filters map[string]string, topK int) ([]ContextMatch, error) {
	vector, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"vector":          vector,
		"topK":            topK,
		"includeMetadata": true,
	}
	filter := map[string]interface{}{}
	for k, v := range filters {
		if v != "" {
			filter[k] = v
		}
	}
	if len(filter) > 0 {
		body["filter"] = filter
	}

	matches, err := p.rawQuery(ctx, body)
	if err != nil {
		return nil, err
	}

	results := make([]ContextMatch, 0, len(matches))
	for _, m := range matches {
		text, _ := m.Metadata["text"].(string)
		results = append(results, ContextMatch{
			Text:     text,
			Score:    m.Score,
			Metadata: m.Metadata,
		})
	}
	return results, nil
}

func (p *PineconeIndex) rawQuery(ctx context.Context, body map[string]interface{}) ([]pineconeMatch, error) {
	var out pineconeQueryResponse
	resp, err := p.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/query")
	if err != nil {
		return nil, fmt.Errorf("pinecone query failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("pinecone query failed: %s", resp.Status())
	}
	return out.Matches, nil
}

// Upsert writes vectors to the index in batches of 100.
func (p *PineconeIndex) Upsert(ctx context.Context, vectors []PineconeVector) error {
	const batchSize = 100

	for i := 0; i < len(vectors); i += batchSize {
		end := i + batchSize
		if end > len(vectors) {
			end = len(vectors)
		}

		resp, err := p.http.R().
			SetContext(ctx).
			SetBody(map[string]interface{}{"vectors": vectors[i:end]}).
			Post("/vectors/upsert")
		if err != nil {
			return fmt.Errorf("pinecone upsert failed: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("pinecone upsert failed: %s", resp.Status())
		}
	}
	return nil
}

// ListDocuments samples the index and returns the distinct ingested
// documents by file hash.
func (p *PineconeIndex) ListDocuments(ctx context.Context) ([]DocumentInfo, error) {
	matches, err := p.rawQuery(ctx, map[string]interface{}{
		"vector":          make([]float32, embeddingDimension),
		"topK":            100,
		"includeMetadata": true,
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var docs []DocumentInfo
	for _, m := range matches {
		hash, _ := m.Metadata["file_hash"].(string)
		if hash == "" || seen[hash] {
			continue
		}
		seen[hash] = true

		doc := DocumentInfo{FileHash: hash}
		doc.Filename, _ = m.Metadata["filename"].(string)
		doc.Class, _ = m.Metadata["class"].(string)
		doc.Subject, _ = m.Metadata["subject"].(string)
		doc.Chapter, _ = m.Metadata["chapter"].(string)
		docs = append(docs, doc)
	}
	return docs, nil
}

// DeleteDocument removes every vector belonging to the document with the
// given content hash and returns how many were deleted.
func (p *PineconeIndex) DeleteDocument(ctx context.Context, fileHash string) (int, error) {
	matches, err := p.rawQuery(ctx, map[string]interface{}{
		"vector":          make([]float32, embeddingDimension),
		"topK":            10000,
		"includeMetadata": false,
		"filter":          map[string]interface{}{"file_hash": fileHash},
	})
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}

	resp, err := p.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"ids": ids}).
		Post("/vectors/delete")
	if err != nil {
		return 0, fmt.Errorf("pinecone delete failed: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("pinecone delete failed: %s", resp.Status())
	}
	return len(ids), nil
}

// Stats returns index-level statistics.
func (p *PineconeIndex) Stats(ctx context.Context) (IndexStats, error) {
	var out struct {
		TotalVectorCount int `json:"totalVectorCount"`
		Dimension        int `json:"dimension"`
	}

	resp, err := p.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{}).
		SetResult(&out).
		Post("/describe_index_stats")
	if err != nil {
		return IndexStats{}, fmt.Errorf("pinecone stats failed: %w", err)
	}
	if resp.IsError() {
		return IndexStats{}, fmt.Errorf("pinecone stats failed: %s", resp.Status())
	}

	return IndexStats{
		TotalVectors: out.TotalVectorCount,
		Dimension:    out.Dimension,
	}, nil
}
