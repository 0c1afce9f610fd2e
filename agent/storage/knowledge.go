package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SearchKnowledge runs a cosine similarity search over active documents.
// Scores are returned as similarity (1 - cosine distance), best first.
func (s *Store) SearchKnowledge(ctx context.Context, embedding []float32, topK int, category string) ([]KnowledgePassage, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("query embedding is empty")
	}
	if topK <= 0 {
		topK = 3
	}

	lit := VectorLiteral(embedding)

	query := `
		SELECT id, title, content, category, 1 - (embedding <=> ?::vector) AS similarity
		FROM knowledge_documents
		WHERE is_active = TRUE AND embedding IS NOT NULL`
	args := []any{lit}
	if c := strings.TrimSpace(category); c != "" {
		query += ` AND category = ?`
		args = append(args, c)
	}
	query += ` ORDER BY embedding <=> ?::vector LIMIT ?`
	args = append(args, lit, topK)

	var passages []KnowledgePassage
	if err := s.db.NewRaw(query, args...).Scan(ctx, &passages); err != nil {
		return nil, fmt.Errorf("knowledge search: %w", err)
	}
	return passages, nil
}

// AddKnowledgeDocument inserts an active document with a precomputed
// embedding.
func (s *Store) AddKnowledgeDocument(ctx context.Context, title, content, category string, embedding []float32) (*KnowledgeDocument, error) {
	if strings.TrimSpace(title) == "" || strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("title and content are required")
	}
	if strings.TrimSpace(category) == "" {
		category = "faq"
	}

	now := time.Now().UTC()
	doc := &KnowledgeDocument{
		ID:        uuid.New(),
		Title:     title,
		Content:   content,
		Category:  category,
		Embedding: VectorLiteral(embedding),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.db.NewInsert().Model(doc).Exec(ctx); err != nil {
		return nil, fmt.Errorf("add knowledge document: %w", err)
	}
	return doc, nil
}

// DeactivateKnowledgeDocument soft-deletes a document so it stops matching
// searches without losing history.
func (s *Store) DeactivateKnowledgeDocument(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.NewUpdate().
		Model((*KnowledgeDocument)(nil)).
		Set("is_active = FALSE").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("deactivate knowledge document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("knowledge document not found: %s", id)
	}
	return nil
}

// VectorLiteral renders an embedding as a pgvector input literal.
func VectorLiteral(embedding []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
