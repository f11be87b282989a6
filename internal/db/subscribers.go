package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sms-broadcaster/internal/models"
)

// GetSubscriber returns the record for number, or ErrNotFound.
func (s *Store) GetSubscriber(ctx context.Context, number string) (models.Subscriber, error) {
	sub := models.Subscriber{}
	err := s.db.GetContext(ctx, &sub, "SELECT number, subscribed, created_at, updated_at FROM subscribers WHERE number = $1", number)
	if errors.Is(err, sql.ErrNoRows) {
		return sub, ErrNotFound
	}
	if err != nil {
		return sub, fmt.Errorf("failed to get subscriber: %w", err)
	}
	return sub, nil
}

// CreateSubscriber inserts number as subscribed. It reports false when a
// record for number already exists.
func (s *Store) CreateSubscriber(ctx context.Context, number string) (bool, error) {
	query := `
		INSERT INTO subscribers (number, subscribed)
		VALUES ($1, TRUE)
		ON CONFLICT (number) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query, number)
	if err != nil {
		return false, fmt.Errorf("failed to insert subscriber: %w", err)
	}
	return affectedOne(res)
}

// SetSubscribed sets the flag for number, but only if the stored value is
// still the opposite. It reports false when nothing changed.
func (s *Store) SetSubscribed(ctx context.Context, number string, subscribed bool) (bool, error) {
	query := `
		UPDATE subscribers
		SET subscribed = $2, updated_at = NOW()
		WHERE number = $1 AND subscribed = $3
	`
	res, err := s.db.ExecContext(ctx, query, number, subscribed, !subscribed)
	if err != nil {
		return false, fmt.Errorf("failed to update subscriber: %w", err)
	}
	return affectedOne(res)
}

// CountSubscribed returns the number of records with subscribed = true.
func (s *Store) CountSubscribed(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM subscribers WHERE subscribed = TRUE")
	if err != nil {
		return 0, fmt.Errorf("failed to count subscribers: %w", err)
	}
	return count, nil
}

// ListSubscribedNumbers returns every subscribed number in a stable order.
func (s *Store) ListSubscribedNumbers(ctx context.Context) ([]string, error) {
	var numbers []string
	err := s.db.SelectContext(ctx, &numbers, "SELECT number FROM subscribers WHERE subscribed = TRUE ORDER BY number")
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	return numbers, nil
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}
