package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"lexingest/internal/chunker"
	"lexingest/internal/embedding"
	"lexingest/internal/extract"
	"lexingest/internal/store"
	"lexingest/internal/vector"
)

// embedBatchSize bounds how many chunk texts go to the embedding service
// in one request.
const embedBatchSize = 32

// Worker processes a single document job.
type Worker struct {
	store       *store.Store
	index       vector.Index
	embedder    embedding.Client
	log         *slog.Logger
	chunkCfg    chunker.Config
	pdfFallback bool
	backoff     func(int) time.Duration
}

func NewWorker(st *store.Store, index vector.Index, embedder embedding.Client, log *slog.Logger, chunkCfg chunker.Config, pdfFallback bool) *Worker {
	return &Worker{
		store:       st,
		index:       index,
		embedder:    embedder,
		log:         log,
		chunkCfg:    chunkCfg,
		pdfFallback: pdfFallback,
		backoff:     Backoff,
	}
}

// Process runs the full ingest pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	defer job.releaseFileData()
	log := w.log.With("job_id", job.ID, "doc_id", job.DocID)

	// Phase 1: Extract text blocks.
	job.SetStatus(StatusExtracting, "extracting")
	ex, err := extract.ForFile(job.Filename)
	if err != nil {
		log.Error("unsupported format", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "extracting")
		return
	}
	if pe, ok := ex.(*extract.PDFExtractor); ok {
		pe.FallbackPdftotext = w.pdfFallback
	}

	blocks, err := ex.Extract(bytes.NewReader(job.FileData()), job.Filename)
	if err != nil {
		log.Error("extraction failed", "error", err)
		job.AddError(fmt.Sprintf("extract: %s", err))
		job.SetStatus(StatusFailed, "extracting")
		return
	}

	fullText := flattenBlockText(blocks)
	job.SetContentHash(ContentHashHex([]byte(fullText)))
	pages := 0
	for _, b := range blocks {
		if b.Page > pages {
			pages = b.Page
		}
	}
	job.SetPages(pages)

	// Phase 1.5: Dedup check on extracted text.
	existing, err := w.store.FindByContentHash(job.ContentHash)
	switch {
	case err == nil && existing.Status != store.DocStatusError:
		log.Info("duplicate document, skipping", "existing_doc_id", existing.ID)
		job.DocID = existing.ID
		job.SetStatus(StatusDupSkipped, "dedup")
		return
	case err == nil:
		// A failed earlier ingest of the same content is replaced.
		log.Info("replacing failed ingest", "stale_doc_id", existing.ID)
		if derr := w.store.DeleteDocument(existing.ID); derr != nil {
			log.Warn("stale document cleanup failed", "error", derr)
		}
	case !errors.Is(err, store.ErrNotFound):
		log.Warn("dedup check failed, proceeding", "error", err)
	}

	// Phase 2: Chunk.
	job.SetStatus(StatusChunking, "chunking")
	results := chunker.Chunk(blocks, w.jobChunkConfig(job))
	job.SetTotalChunks(len(results))
	log.Info("chunked document", "blocks", len(blocks), "chunks", len(results))

	if len(results) == 0 {
		log.Warn("no chunks produced")
		job.AddError("no extractable content")
		job.SetStatus(StatusFailed, "chunking")
		return
	}

	chunks := make([]store.Chunk, len(results))
	for i, r := range results {
		chunks[i] = store.Chunk{
			DocumentID:    job.DocID,
			ChunkIndex:    r.ChunkIndex,
			Text:          r.Text,
			PageStart:     r.PageStart,
			PageEnd:       r.PageEnd,
			SectionPath:   r.SectionPath,
			TokenCount:    chunker.EstimateTokens(r.Text, 0),
			VectorPointID: vector.PointID(job.DocID, r.ChunkIndex),
		}
	}

	// Phase 3: Persist document and chunks before indexing, so a later
	// embedding failure leaves an inspectable record.
	job.SetStatus(StatusStoring, "storing")
	name := job.Title
	if name == "" {
		name = job.Filename
	}
	doc := store.Document{
		ID:          job.DocID,
		Name:        name,
		ContentHash: job.ContentHash,
		Language:    extract.DetectLanguage(fullText),
		Status:      store.DocStatusPending,
		Pages:       pages,
		ChunkCount:  len(chunks),
		SizeBytes:   int64(len(job.FileData())),
		CreatedAt:   job.CreatedAt,
	}
	if err := w.store.PutDocument(doc); err != nil {
		log.Error("store document failed", "error", err)
		job.AddError(fmt.Sprintf("store document: %s", err))
		job.SetStatus(StatusFailed, "storing")
		return
	}
	if err := w.store.PutChunks(doc.ID, chunks); err != nil {
		log.Error("store chunks failed", "error", err)
		job.AddError(fmt.Sprintf("store chunks: %s", err))
		job.SetStatus(StatusFailed, "storing")
		return
	}

	// Phase 4: Embed in bounded batches with retry, then index.
	job.SetStatus(StatusEmbedding, "embedding")
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, ch := range chunks[start:end] {
			texts = append(texts, ch.Text)
		}

		batch, err := w.embedBatch(ctx, texts, log)
		if err != nil {
			log.Error("embedding failed", "batch_start", start, "error", err)
			job.AddError(fmt.Sprintf("embed batch %d: %s", start/embedBatchSize, err))
			w.markDocumentError(doc, log)
			job.SetStatus(StatusFailed, "embedding")
			return
		}
		vectors = append(vectors, batch...)
		job.AddChunksEmbedded(len(batch))
	}

	if err := w.index.UpsertChunks(ctx, doc, chunks, vectors); err != nil {
		log.Error("index chunks failed", "error", err)
		job.AddError(fmt.Sprintf("index chunks: %s", err))
		w.markDocumentError(doc, log)
		job.SetStatus(StatusFailed, "embedding")
		return
	}

	doc.Status = store.DocStatusIndexed
	if err := w.store.PutDocument(doc); err != nil {
		log.Error("mark indexed failed", "error", err)
		job.AddError(fmt.Sprintf("mark indexed: %s", err))
		job.SetStatus(StatusFailed, "storing")
		return
	}

	log.Info("ingestion complete", "chunks", len(chunks), "pages", pages, "language", doc.Language)
	job.SetStatus(StatusCompleted, "done")
}

// jobChunkConfig applies the upload's chunking overrides to the defaults.
func (w *Worker) jobChunkConfig(job *Job) chunker.Config {
	cfg := w.chunkCfg
	if job.Overrides.TargetTokens > 0 {
		cfg.TargetTokens = job.Overrides.TargetTokens
	}
	if job.Overrides.MaxTokens > 0 {
		cfg.MaxTokens = job.Overrides.MaxTokens
	}
	if job.Overrides.MinTokens > 0 {
		cfg.MinTokens = job.Overrides.MinTokens
	}
	if job.Overrides.OverlapTokens > 0 {
		cfg.OverlapTokens = job.Overrides.OverlapTokens
	}
	return cfg
}

func (w *Worker) markDocumentError(doc store.Document, log *slog.Logger) {
	doc.Status = store.DocStatusError
	if err := w.store.PutDocument(doc); err != nil {
		log.Error("mark error status failed", "error", err)
	}
}

// embedBatch calls the embedding service, retrying transient failures.
func (w *Worker) embedBatch(ctx context.Context, texts []string, log *slog.Logger) ([][]float32, error) {
	var lastErr error
	for attempt := range MaxRetries {
		batch, err := w.embedder.GetEmbeddings(ctx, texts)
		if err == nil {
			return batch, nil
		}
		lastErr = err
		if attempt == MaxRetries-1 {
			break
		}
		log.Warn("retryable embedding error", "attempt", attempt, "error", err)
		select {
		case <-time.After(w.backoff(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// flattenBlockText joins all block text for hashing and language detection.
func flattenBlockText(blocks []chunker.TextBlock) string {
	var sb strings.Builder
	for _, b := range blocks {
		if b.Text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(b.Text)
	}
	return sb.String()
}
