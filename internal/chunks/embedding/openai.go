package embedding

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ragplatform/chunksync/pkg/config"
	apperrors "github.com/ragplatform/chunksync/pkg/errors"
)

const defaultBatchSize = 100

// OpenAIEmbedder computes embeddings via the OpenAI embeddings API,
// batching requests to stay under the API's input limits.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     openai.EmbeddingModel
	dims      int
	batchSize int
	logger    *slog.Logger
}

func NewOpenAI(cfg config.EmbeddingConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding API key is required")
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &OpenAIEmbedder{
		client:    openai.NewClient(cfg.APIKey),
		model:     openai.EmbeddingModel(cfg.Model),
		dims:      cfg.Dimensions,
		batchSize: batchSize,
		logger:    slog.Default().With("component", "openai-embedder"),
	}, nil
}

func (e *OpenAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		batch := texts[start:end]

		req := openai.EmbeddingRequest{
			Input:          batch,
			Model:          e.model,
			EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		}
		if e.dims > 0 {
			req.Dimensions = e.dims
		}
		resp, err := e.client.CreateEmbeddings(ctx, req)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrEmbeddingFailed, 500,
				"embedding batch %d-%d: %v", start, end, err)
		}
		if len(resp.Data) != len(batch) {
			return nil, apperrors.Newf(apperrors.ErrEmbeddingFailed, 500,
				"embedding batch %d-%d: got %d vectors for %d inputs", start, end, len(resp.Data), len(batch))
		}
		for _, d := range resp.Data {
			embeddings = append(embeddings, d.Embedding)
		}
	}
	e.logger.Debug("embeddings generated", "texts", len(texts), "model", string(e.model))
	return embeddings, nil
}
