package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/okhabit/okhabit/internal/models"
)

const journalColumns = `id, user_id, entry_date, title, text_content, day_quality, day_emoji,
	is_bookmarked, photo_urls, video_url, created_at, updated_at`

const defaultJournalListLimit = 100

// JournalEntryRepository handles journal persistence.
type JournalEntryRepository struct {
	q querier
}

// NewJournalEntryRepository creates a new journal entry repository.
func NewJournalEntryRepository(db *DB) *JournalEntryRepository {
	return &JournalEntryRepository{q: db}
}

// Upsert writes the entry for (user, date), replacing every editable field.
// The bookmark flag of an existing row is kept.
func (r *JournalEntryRepository) Upsert(ctx context.Context, e *models.JournalEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	photos := e.PhotoURLs
	if photos == nil {
		photos = []string{}
	}
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO journal_entries AS j (`+journalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		ON CONFLICT (user_id, entry_date) DO UPDATE SET
			title = EXCLUDED.title,
			text_content = EXCLUDED.text_content,
			day_quality = EXCLUDED.day_quality,
			day_emoji = EXCLUDED.day_emoji,
			photo_urls = EXCLUDED.photo_urls,
			video_url = EXCLUDED.video_url,
			updated_at = EXCLUDED.updated_at
		RETURNING j.id, j.is_bookmarked, j.created_at, j.updated_at
	`, e.ID, e.UserID, e.EntryDate, e.Title, e.TextContent, e.DayQuality, e.DayEmoji,
		e.IsBookmarked, pq.Array(photos), e.VideoURL, time.Now(),
	).Scan(&e.ID, &e.IsBookmarked, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save journal entry: %w", err)
	}
	e.PhotoURLs = photos
	return nil
}

// GetByDate returns the user's entry for date.
func (r *JournalEntryRepository) GetByDate(ctx context.Context, userID uuid.UUID, date models.Date) (*models.JournalEntry, error) {
	e, err := scanJournalEntry(r.q.QueryRowContext(ctx, `
		SELECT `+journalColumns+` FROM journal_entries WHERE user_id = $1 AND entry_date = $2
	`, userID, date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("journal entry", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get journal entry: %w", err)
	}
	return e, nil
}

// List returns entries matching filter, newest first.
func (r *JournalEntryRepository) List(ctx context.Context, userID uuid.UUID, filter models.JournalFilter) ([]*models.JournalEntry, error) {
	conds := []string{"user_id = $1"}
	args := []any{userID}
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if text := strings.TrimSpace(filter.Text); text != "" {
		add(`(title ILIKE $%[1]d ESCAPE '\' OR text_content ILIKE $%[1]d ESCAPE '\')`, "%"+escapeLike(text)+"%")
	}
	if filter.Quality != nil {
		add("day_quality = $%d", *filter.Quality)
	}
	if filter.Bookmarked != nil {
		add("is_bookmarked = $%d", *filter.Bookmarked)
	}
	if filter.HasPhotos != nil {
		add("(cardinality(photo_urls) > 0) = $%d", *filter.HasPhotos)
	}
	if filter.HasVideo != nil {
		add("(video_url IS NOT NULL) = $%d", *filter.HasVideo)
	}
	if filter.From != nil {
		add("entry_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("entry_date <= $%d", *filter.To)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultJournalListLimit
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT %s FROM journal_entries WHERE %s ORDER BY entry_date DESC LIMIT $%d`,
		journalColumns, strings.Join(conds, " AND "), len(args))

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.JournalEntry
	for rows.Next() {
		e, err := scanJournalEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal entries: %w", err)
	}
	return out, nil
}

// SetBookmarked sets the bookmark flag.
func (r *JournalEntryRepository) SetBookmarked(ctx context.Context, userID uuid.UUID, date models.Date, bookmarked bool) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE journal_entries SET is_bookmarked = $3, updated_at = $4 WHERE user_id = $1 AND entry_date = $2
	`, userID, date, bookmarked, time.Now())
	if err != nil {
		return fmt.Errorf("failed to bookmark journal entry: %w", err)
	}
	return expectRows(result, "journal entry")
}

// Delete removes the entry for date and returns it so its media can be cleaned up.
func (r *JournalEntryRepository) Delete(ctx context.Context, userID uuid.UUID, date models.Date) (*models.JournalEntry, error) {
	e, err := scanJournalEntry(r.q.QueryRowContext(ctx, `
		DELETE FROM journal_entries WHERE user_id = $1 AND entry_date = $2
		RETURNING `+journalColumns, userID, date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("journal entry", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete journal entry: %w", err)
	}
	return e, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanJournalEntry(row interface{ Scan(...any) error }) (*models.JournalEntry, error) {
	e := &models.JournalEntry{}
	var photos pq.StringArray
	if err := row.Scan(&e.ID, &e.UserID, &e.EntryDate, &e.Title, &e.TextContent, &e.DayQuality, &e.DayEmoji,
		&e.IsBookmarked, &photos, &e.VideoURL, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.PhotoURLs = []string(photos)
	if e.PhotoURLs == nil {
		e.PhotoURLs = []string{}
	}
	return e, nil
}
