package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/facetrack/facetrack-api/internal/models"
)

// AIQueryRepository logs assistant exchanges for later review.
type AIQueryRepository struct {
	db *sqlx.DB
}

// NewAIQueryRepository constructs the repository.
func NewAIQueryRepository(db *sqlx.DB) *AIQueryRepository {
	return &AIQueryRepository{db: db}
}

// Create inserts a query/response pair.
func (r *AIQueryRepository) Create(ctx context.Context, entry *models.AIQuery) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO ai_queries (id, user_id, query, response, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(ctx, query, entry.ID, entry.UserID, entry.Query, entry.Response, entry.CreatedAt); err != nil {
		return fmt.Errorf("log ai query: %w", err)
	}
	return nil
}
