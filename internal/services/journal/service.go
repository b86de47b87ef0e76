// Package journal manages the one-entry-per-day journal and its photo and video media.
package journal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/okhabit/okhabit/internal/blob"
	"github.com/okhabit/okhabit/internal/database"
	"github.com/okhabit/okhabit/internal/logger"
	"github.com/okhabit/okhabit/internal/models"
	"github.com/okhabit/okhabit/internal/queue"
	"go.uber.org/zap"
)

// EditWindowDays is how many days back an entry stays editable.
const EditWindowDays = 7

var (
	// ErrEntryLocked is returned when writing an entry older than the edit window.
	ErrEntryLocked = errors.New("journal entries older than 7 days cannot be edited")
	// ErrFutureDate is returned when writing an entry for a day that has not started yet.
	ErrFutureDate = errors.New("journal entries cannot be written for future dates")
)

var (
	photoExts = map[string]bool{"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true, "heic": true, "heif": true}
	videoExts = map[string]bool{"mp4": true, "mov": true, "webm": true, "m4v": true}
)

// URLSigner turns a stored blob path into a time-limited download URL.
type URLSigner interface {
	URL(bucket, path string) (string, error)
}

// Service runs journal operations.
type Service struct {
	store       database.Store
	blobs       blob.Store
	signer      URLSigner
	jobs        queue.Enqueuer
	defaultZone *time.Location
	logger      *zap.Logger
}

// NewService creates a journal service. jobs may be nil, in which case removed media is left in place.
func NewService(store database.Store, blobs blob.Store, signer URLSigner, jobs queue.Enqueuer, defaultZone *time.Location, logger *zap.Logger) *Service {
	if defaultZone == nil {
		defaultZone = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:       store,
		blobs:       blobs,
		signer:      signer,
		jobs:        jobs,
		defaultZone: defaultZone,
		logger:      logger,
	}
}

// Entry is a journal entry as returned to clients: media fields carry signed URLs.
type Entry struct {
	*models.JournalEntry
	PhotoPaths []string `json:"photo_paths"`
	VideoPath  *string  `json:"video_path,omitempty"`
	PhotoURLs  []string `json:"photo_urls"`
	VideoURL   *string  `json:"video_url,omitempty"`
	Editable   bool     `json:"editable"`
}

// Input is the full editable content of an entry. Saving replaces all of it.
type Input struct {
	Title       *string  `json:"title"`
	TextContent *string  `json:"text_content"`
	DayQuality  *int     `json:"day_quality"`
	DayEmoji    *string  `json:"day_emoji"`
	PhotoPaths  []string `json:"photo_paths"`
	VideoPath   *string  `json:"video_path"`
}

// CalendarDay summarizes one entry for the month view.
type CalendarDay struct {
	Date         models.Date `json:"date"`
	DayQuality   *int        `json:"day_quality,omitempty"`
	DayEmoji     *string     `json:"day_emoji,omitempty"`
	IsBookmarked bool        `json:"is_bookmarked"`
}

// Today returns the user's current calendar date.
func (s *Service) Today(user *models.User, now time.Time) models.Date {
	return models.Today(now, user.Location(s.defaultZone))
}

// Editable reports whether day may be written at now in the user's zone.
func (s *Service) Editable(user *models.User, day models.Date, now time.Time) bool {
	return s.checkWritable(user, day, now) == nil
}

func (s *Service) checkWritable(user *models.User, day models.Date, now time.Time) error {
	today := s.Today(user, now)
	if day.After(today) {
		return ErrFutureDate
	}
	if day.DaysUntil(today) > EditWindowDays {
		return ErrEntryLocked
	}
	return nil
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}

// validate normalizes in and checks every limit and media path.
func validate(userID uuid.UUID, in *Input) error {
	in.Title = trimmed(in.Title)
	in.TextContent = trimmed(in.TextContent)
	in.DayEmoji = trimmed(in.DayEmoji)
	in.VideoPath = trimmed(in.VideoPath)

	if in.Title != nil && utf8.RuneCountInString(*in.Title) > models.MaxJournalTitleLength {
		return validationf("title must be at most %d characters", models.MaxJournalTitleLength)
	}
	if in.TextContent != nil && utf8.RuneCountInString(*in.TextContent) > models.MaxJournalTextLength {
		return validationf("text must be at most %d characters", models.MaxJournalTextLength)
	}
	if in.DayQuality != nil && (*in.DayQuality < models.MinDayQuality || *in.DayQuality > models.MaxDayQuality) {
		return validationf("day quality must be between %d and %d", models.MinDayQuality, models.MaxDayQuality)
	}
	if in.DayEmoji != nil && utf8.RuneCountInString(*in.DayEmoji) > 8 {
		return validationf("day emoji is too long")
	}
	if len(in.PhotoPaths) > models.MaxJournalPhotos {
		return validationf("at most %d photos per entry", models.MaxJournalPhotos)
	}

	seen := make(map[string]bool, len(in.PhotoPaths))
	photos := make([]string, 0, len(in.PhotoPaths))
	for _, p := range in.PhotoPaths {
		if !ownedPath(userID, p, photoExts) {
			return validationf("invalid photo path %q", logger.SanitizeString(p, 100))
		}
		if !seen[p] {
			seen[p] = true
			photos = append(photos, p)
		}
	}
	in.PhotoPaths = photos
	if in.VideoPath != nil && !ownedPath(userID, *in.VideoPath, videoExts) {
		return validationf("invalid video path %q", logger.SanitizeString(*in.VideoPath, 100))
	}
	return nil
}

// ownedPath accepts "{userID}/{name}.{ext}" with an allowed extension.
func ownedPath(userID uuid.UUID, p string, exts map[string]bool) bool {
	dir, name, ok := strings.Cut(p, "/")
	if !ok || dir != userID.String() || name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return false
	}
	return exts[extension(name)]
}

func extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
}

// Get returns the entry for day, or database.ErrNotFound.
func (s *Service) Get(ctx context.Context, user *models.User, day models.Date, now time.Time) (*Entry, error) {
	e, err := s.store.Repos().Journal.GetByDate(ctx, user.ID, day)
	if err != nil {
		return nil, err
	}
	return s.present(user, e, now), nil
}

// Save creates or replaces the entry for day. Media dropped from the entry is queued for deletion.
func (s *Service) Save(ctx context.Context, user *models.User, day models.Date, in Input, now time.Time) (*Entry, error) {
	if err := s.checkWritable(user, day, now); err != nil {
		return nil, err
	}
	if err := validate(user.ID, &in); err != nil {
		return nil, err
	}

	e := &models.JournalEntry{
		UserID:      user.ID,
		EntryDate:   day,
		Title:       in.Title,
		TextContent: in.TextContent,
		DayQuality:  in.DayQuality,
		DayEmoji:    in.DayEmoji,
		PhotoURLs:   in.PhotoPaths,
		VideoURL:    in.VideoPath,
	}

	var previous *models.JournalEntry
	err := s.store.InTx(ctx, func(r *database.Repos) error {
		prev, err := r.Journal.GetByDate(ctx, user.ID, day)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("failed to load journal entry: %w", err)
		}
		previous = prev
		if err := r.Journal.Upsert(ctx, e); err != nil {
			return fmt.Errorf("failed to save journal entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if previous != nil {
		s.cleanup(ctx, user.ID, removedPhotos(previous.PhotoURLs, e.PhotoURLs), removedVideo(previous.VideoURL, e.VideoURL))
	}
	s.logger.Info("journal_entry_saved",
		zap.String("user_id", logger.SanitizeUserID(user.ID.String())),
		zap.String("date", day.String()),
		zap.Int("photos", len(e.PhotoURLs)),
		zap.Bool("video", e.VideoURL != nil),
	)
	return s.present(user, e, now), nil
}

// SetBookmarked toggles the bookmark flag. Bookmarks ignore the edit window.
func (s *Service) SetBookmarked(ctx context.Context, user *models.User, day models.Date, bookmarked bool, now time.Time) (*Entry, error) {
	var e *models.JournalEntry
	err := s.store.InTx(ctx, func(r *database.Repos) error {
		if err := r.Journal.SetBookmarked(ctx, user.ID, day, bookmarked); err != nil {
			return err
		}
		var err error
		e, err = r.Journal.GetByDate(ctx, user.ID, day)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.present(user, e, now), nil
}

// Delete removes the entry for day and queues its media for deletion.
func (s *Service) Delete(ctx context.Context, user *models.User, day models.Date, now time.Time) error {
	if err := s.checkWritable(user, day, now); err != nil {
		return err
	}
	e, err := s.store.Repos().Journal.Delete(ctx, user.ID, day)
	if err != nil {
		return err
	}
	s.cleanup(ctx, user.ID, e.PhotoURLs, e.VideoURL)
	s.logger.Info("journal_entry_deleted",
		zap.String("user_id", logger.SanitizeUserID(user.ID.String())),
		zap.String("date", day.String()),
	)
	return nil
}

// List returns entries newest first, narrowed by filter.
func (s *Service) List(ctx context.Context, user *models.User, filter models.JournalFilter, now time.Time) ([]*Entry, error) {
	if filter.Quality != nil && (*filter.Quality < models.MinDayQuality || *filter.Quality > models.MaxDayQuality) {
		return nil, validationf("quality must be between %d and %d", models.MinDayQuality, models.MaxDayQuality)
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, validationf("from must not be after to")
	}
	filter.Text = strings.TrimSpace(filter.Text)

	entries, err := s.store.Repos().Journal.List(ctx, user.ID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	out := make([]*Entry, len(entries))
	for i, e := range entries {
		out[i] = s.present(user, e, now)
	}
	return out, nil
}

// Calendar returns the entries of one month for the calendar view, oldest first.
func (s *Service) Calendar(ctx context.Context, userID uuid.UUID, year int, month time.Month) ([]CalendarDay, error) {
	if month < time.January || month > time.December {
		return nil, validationf("invalid month %d", month)
	}
	from := models.NewDate(year, month, 1)
	to := models.NewDate(year, month+1, 0)
	entries, err := s.store.Repos().Journal.List(ctx, userID, models.JournalFilter{From: &from, To: &to, Limit: 31})
	if err != nil {
		return nil, fmt.Errorf("failed to list journal month: %w", err)
	}
	out := make([]CalendarDay, len(entries))
	for i, e := range entries {
		// List is newest first.
		out[len(entries)-1-i] = CalendarDay{
			Date:         e.EntryDate,
			DayQuality:   e.DayQuality,
			DayEmoji:     e.DayEmoji,
			IsBookmarked: e.IsBookmarked,
		}
	}
	return out, nil
}

// present attaches signed URLs and the editable flag.
func (s *Service) present(user *models.User, e *models.JournalEntry, now time.Time) *Entry {
	out := &Entry{
		JournalEntry: e,
		PhotoPaths:   e.PhotoURLs,
		VideoPath:    e.VideoURL,
		PhotoURLs:    make([]string, 0, len(e.PhotoURLs)),
		Editable:     s.Editable(user, e.EntryDate, now),
	}
	if out.PhotoPaths == nil {
		out.PhotoPaths = []string{}
	}
	for _, p := range e.PhotoURLs {
		if u, ok := s.sign(models.BucketJournalPhotos, p); ok {
			out.PhotoURLs = append(out.PhotoURLs, u)
		}
	}
	if e.VideoURL != nil {
		if u, ok := s.sign(models.BucketJournalVideos, *e.VideoURL); ok {
			out.VideoURL = &u
		}
	}
	return out
}

func (s *Service) sign(bucket, p string) (string, bool) {
	u, err := s.signer.URL(bucket, p)
	if err != nil {
		s.logger.Error("failed_to_sign_media_url",
			zap.String("bucket", bucket),
			zap.String("path", logger.SanitizePath(p)),
			zap.Error(err),
		)
		return "", false
	}
	return u, true
}

func removedPhotos(before, after []string) []string {
	keep := make(map[string]bool, len(after))
	for _, p := range after {
		keep[p] = true
	}
	var out []string
	for _, p := range before {
		if !keep[p] {
			out = append(out, p)
		}
	}
	return out
}

func removedVideo(before, after *string) *string {
	if before == nil || (after != nil && *after == *before) {
		return nil
	}
	return before
}

// cleanup queues media deletion. Failures are logged; the entry write already succeeded.
func (s *Service) cleanup(ctx context.Context, userID uuid.UUID, photos []string, video *string) {
	if s.jobs == nil {
		return
	}
	enqueue := func(bucket string, paths []string) {
		if len(paths) == 0 {
			return
		}
		if err := s.jobs.Enqueue(ctx, queue.NewMediaCleanupJob(userID, bucket, paths)); err != nil {
			s.logger.Error("failed_to_enqueue_media_cleanup",
				zap.String("user_id", logger.SanitizeUserID(userID.String())),
				zap.String("bucket", bucket),
				zap.Int("count", len(paths)),
				zap.Error(err),
			)
		}
	}
	enqueue(models.BucketJournalPhotos, photos)
	if video != nil {
		enqueue(models.BucketJournalVideos, []string{*video})
	}
}

// MediaFile is one uploaded file.
type MediaFile struct {
	Filename string
	Body     io.Reader
}

// Upload is the result of storing media: paths to put into the entry plus signed URLs for preview.
type Upload struct {
	PhotoPaths []string `json:"photo_paths"`
	PhotoURLs  []string `json:"photo_urls"`
	VideoPath  *string  `json:"video_path,omitempty"`
	VideoURL   *string  `json:"video_url,omitempty"`
}

// UploadMedia stores photos and an optional video for day. Stored files are not attached to
// the entry until the client saves it with the returned paths.
func (s *Service) UploadMedia(ctx context.Context, user *models.User, day models.Date, photos []MediaFile, video *MediaFile, now time.Time) (*Upload, error) {
	if err := s.checkWritable(user, day, now); err != nil {
		return nil, err
	}
	if len(photos) == 0 && video == nil {
		return nil, validationf("no media files")
	}
	if len(photos) > models.MaxJournalPhotos {
		return nil, validationf("at most %d photos per entry", models.MaxJournalPhotos)
	}
	for _, f := range photos {
		if !photoExts[extension(f.Filename)] {
			return nil, validationf("unsupported photo type %q", logger.SanitizeString(extension(f.Filename), 100))
		}
	}
	if video != nil && !videoExts[extension(video.Filename)] {
		return nil, validationf("unsupported video type %q", logger.SanitizeString(extension(video.Filename), 100))
	}

	millis := now.UnixMilli()
	out := &Upload{PhotoPaths: []string{}, PhotoURLs: []string{}}
	var stored []string
	for i, f := range photos {
		p := fmt.Sprintf("%s/%s_%d_%d.%s", user.ID, day, millis, i, extension(f.Filename))
		if _, err := s.blobs.Put(ctx, models.BucketJournalPhotos, p, f.Body); err != nil {
			s.discard(ctx, models.BucketJournalPhotos, stored)
			return nil, fmt.Errorf("failed to store photo: %w", err)
		}
		stored = append(stored, p)
		out.PhotoPaths = append(out.PhotoPaths, p)
		if u, ok := s.sign(models.BucketJournalPhotos, p); ok {
			out.PhotoURLs = append(out.PhotoURLs, u)
		}
	}
	if video != nil {
		p := fmt.Sprintf("%s/%s_%d.%s", user.ID, day, millis, extension(video.Filename))
		if _, err := s.blobs.Put(ctx, models.BucketJournalVideos, p, video.Body); err != nil {
			s.discard(ctx, models.BucketJournalPhotos, stored)
			return nil, fmt.Errorf("failed to store video: %w", err)
		}
		out.VideoPath = &p
		if u, ok := s.sign(models.BucketJournalVideos, p); ok {
			out.VideoURL = &u
		}
	}

	s.logger.Info("journal_media_uploaded",
		zap.String("user_id", logger.SanitizeUserID(user.ID.String())),
		zap.String("date", day.String()),
		zap.Int("photos", len(out.PhotoPaths)),
		zap.Bool("video", out.VideoPath != nil),
	)
	return out, nil
}

// discard removes blobs written by a failed upload.
func (s *Service) discard(ctx context.Context, bucket string, paths []string) {
	for _, p := range paths {
		if err := s.blobs.Delete(ctx, bucket, p); err != nil {
			s.logger.Warn("failed_to_discard_upload", zap.String("path", logger.SanitizePath(p)), zap.Error(err))
		}
	}
}

// DeleteMedia removes blobs for a media_cleanup job. Missing blobs are not an error.
func DeleteMedia(ctx context.Context, blobs blob.Store, bucket string, paths []string) error {
	if bucket != models.BucketJournalPhotos && bucket != models.BucketJournalVideos {
		return fmt.Errorf("unknown media bucket %q", bucket)
	}
	var errs []error
	for _, p := range paths {
		if err := blobs.Delete(ctx, bucket, p); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", models.ErrValidation, fmt.Sprintf(format, args...))
}
