package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"example.com/healthsync/internal/domain"
)

// ErrJournalNotFound is returned when a journal entry cannot be located.
var ErrJournalNotFound = errors.New("journal entry not found")

// JournalUpdate carries partial updates; nil fields are left untouched.
type JournalUpdate struct {
	EntryDate *time.Time
	Category  *string
	Content   *string
	Rating    *int
	Tags      *string
}

// ListJournal returns entries newest first, optionally filtered by category.
func (r *Repository) ListJournal(ctx context.Context, category string, limit, offset int) ([]domain.JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT entry_id, entry_date, category, content, rating, tags, created_at, updated_at FROM journal`
	args := make([]any, 0, 3)
	if category != "" {
		args = append(args, category)
		query += argClause(" WHERE category = ", len(args))
	}
	args = append(args, limit)
	query += argClause(" ORDER BY entry_date DESC LIMIT ", len(args))
	args = append(args, offset)
	query += argClause(" OFFSET ", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.JournalEntry, 0)
	for rows.Next() {
		var entry domain.JournalEntry
		if err := rows.Scan(&entry.ID, &entry.EntryDate, &entry.Category, &entry.Content, &entry.Rating,
			&entry.Tags, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CreateJournal persists a new entry and returns it with generated fields.
func (r *Repository) CreateJournal(ctx context.Context, entry domain.JournalEntry) (*domain.JournalEntry, error) {
	now := time.Now().UTC()
	entry.ID = uuid.NewString()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	if entry.Category == "" {
		entry.Category = "general"
	}

	const stmt = `INSERT INTO journal (entry_id, entry_date, category, content, rating, tags, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	if _, err := r.pool.Exec(ctx, stmt, entry.ID, domain.DateOnly(entry.EntryDate), entry.Category,
		entry.Content, entry.Rating, entry.Tags, entry.CreatedAt, entry.UpdatedAt); err != nil {
		return nil, err
	}
	return &entry, nil
}

// UpdateJournal applies a partial update and returns the stored entry.
func (r *Repository) UpdateJournal(ctx context.Context, id string, update JournalUpdate) (*domain.JournalEntry, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const query = `SELECT entry_id, entry_date, category, content, rating, tags, created_at, updated_at
        FROM journal WHERE entry_id=$1 FOR UPDATE`

	var entry domain.JournalEntry
	if err := tx.QueryRow(ctx, query, id).Scan(&entry.ID, &entry.EntryDate, &entry.Category, &entry.Content,
		&entry.Rating, &entry.Tags, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJournalNotFound
		}
		return nil, err
	}

	if update.EntryDate != nil {
		entry.EntryDate = domain.DateOnly(*update.EntryDate)
	}
	if update.Category != nil {
		entry.Category = *update.Category
	}
	if update.Content != nil {
		entry.Content = *update.Content
	}
	if update.Rating != nil {
		entry.Rating = update.Rating
	}
	if update.Tags != nil {
		entry.Tags = update.Tags
	}
	entry.UpdatedAt = time.Now().UTC()

	const stmt = `UPDATE journal SET entry_date=$2, category=$3, content=$4, rating=$5, tags=$6, updated_at=$7
        WHERE entry_id=$1`

	if _, err := tx.Exec(ctx, stmt, entry.ID, entry.EntryDate, entry.Category, entry.Content,
		entry.Rating, entry.Tags, entry.UpdatedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &entry, nil
}

// DeleteJournal removes an entry.
func (r *Repository) DeleteJournal(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM journal WHERE entry_id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJournalNotFound
	}
	return nil
}
