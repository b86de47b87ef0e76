package journal

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/okhabit/okhabit/internal/blob"
	"github.com/okhabit/okhabit/internal/database"
	"github.com/okhabit/okhabit/internal/database/dbtest"
	"github.com/okhabit/okhabit/internal/models"
	"github.com/okhabit/okhabit/internal/queue"
)

var (
	testDay = models.NewDate(2024, 3, 4)
	t0      = time.Date(2024, 3, 4, 20, 0, 0, 0, time.UTC)
)

type fakeSigner struct {
	err error
}

func (f fakeSigner) URL(bucket, path string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://media.test/" + bucket + "/" + path + "?token=t", nil
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []*queue.Job
	err  error
}

func (q *recordingQueue) Enqueue(ctx context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type fixture struct {
	svc   *Service
	store *dbtest.Store
	blobs *blob.FileStore
	jobs  *recordingQueue
	user  *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	blobs, err := blob.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	store := dbtest.New()
	jobs := &recordingQueue{}
	user := &models.User{ID: uuid.New(), Email: "j@example.com", ProviderID: strPtr("sub-" + uuid.NewString())}
	if err := store.Repos().Users.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return &fixture{
		svc:   NewService(store, blobs, fakeSigner{}, jobs, time.UTC, nil),
		store: store,
		blobs: blobs,
		jobs:  jobs,
		user:  user,
	}
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func boolPtr(b bool) *bool    { return &b }

func (f *fixture) photo(name string) string {
	return f.user.ID.String() + "/" + name
}

func TestSave_CreatesAndSignsMedia(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.svc.Save(ctx, f.user, testDay, Input{
		Title:       strPtr("  Good day "),
		TextContent: strPtr("walked by the river"),
		DayQuality:  intPtr(4),
		DayEmoji:    strPtr("🌞"),
		PhotoPaths:  []string{f.photo("a.jpg"), f.photo("a.jpg"), f.photo("b.png")},
		VideoPath:   strPtr(f.user.ID.String() + "/v.mp4"),
	}, t0)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if *e.Title != "Good day" {
		t.Errorf("Title = %q, want trimmed", *e.Title)
	}
	if len(e.PhotoPaths) != 2 {
		t.Errorf("PhotoPaths = %v, want duplicates removed", e.PhotoPaths)
	}
	if len(e.PhotoURLs) != 2 || !strings.HasPrefix(e.PhotoURLs[0], "https://media.test/journal-photos/") {
		t.Errorf("PhotoURLs = %v", e.PhotoURLs)
	}
	if e.VideoURL == nil || !strings.Contains(*e.VideoURL, "journal-videos") {
		t.Errorf("VideoURL = %v", e.VideoURL)
	}
	if !e.Editable {
		t.Error("today's entry should be editable")
	}

	got, err := f.svc.Get(ctx, f.user, testDay, t0)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != e.ID || *got.DayQuality != 4 {
		t.Errorf("Get() = %+v", got.JournalEntry)
	}
}

func TestSave_Validation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	other := uuid.New().String()

	tooManyPhotos := make([]string, models.MaxJournalPhotos+1)
	for i := range tooManyPhotos {
		tooManyPhotos[i] = f.photo(uuid.NewString() + ".jpg")
	}

	tests := []struct {
		name string
		in   Input
	}{
		{"title too long", Input{Title: strPtr(strings.Repeat("a", 31))}},
		{"text too long", Input{TextContent: strPtr(strings.Repeat("a", 301))}},
		{"quality too low", Input{DayQuality: intPtr(0)}},
		{"quality too high", Input{DayQuality: intPtr(6)}},
		{"too many photos", Input{PhotoPaths: tooManyPhotos}},
		{"photo of another user", Input{PhotoPaths: []string{other + "/a.jpg"}}},
		{"photo traversal", Input{PhotoPaths: []string{f.photo("../a.jpg")}}},
		{"photo with video extension", Input{PhotoPaths: []string{f.photo("a.mp4")}}},
		{"video of another user", Input{VideoPath: strPtr(other + "/v.mp4")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := f.svc.Save(context.Background(), f.user, testDay, tt.in, t0)
			if !errors.Is(err, models.ErrValidation) {
				t.Errorf("Save() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestSave_MultibyteTitleCountsRunes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	if _, err := f.svc.Save(context.Background(), f.user, testDay, Input{Title: strPtr(strings.Repeat("é", 30))}, t0); err != nil {
		t.Errorf("Save() error = %v", err)
	}
}

func TestSave_EditWindow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	tests := []struct {
		name    string
		day     models.Date
		wantErr error
	}{
		{"today", testDay, nil},
		{"seven days ago", testDay.AddDays(-7), nil},
		{"eight days ago", testDay.AddDays(-8), ErrEntryLocked},
		{"tomorrow", testDay.AddDays(1), ErrFutureDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := f.svc.Save(context.Background(), f.user, tt.day, Input{Title: strPtr("x")}, t0)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Save(%s) error = %v, want %v", tt.day, err, tt.wantErr)
			}
		})
	}
}

func TestSave_UsesUserTimezoneForToday(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.user.Timezone = strPtr("Pacific/Auckland")

	// 20:00 UTC on the 4th is already the 5th in Auckland.
	if _, err := f.svc.Save(context.Background(), f.user, testDay.AddDays(1), Input{}, t0); err != nil {
		t.Errorf("Save() for the user's today error = %v", err)
	}
}

func TestSave_EnqueuesCleanupForRemovedMedia(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	video := f.user.ID.String() + "/v.mp4"
	if _, err := f.svc.Save(ctx, f.user, testDay, Input{
		PhotoPaths: []string{f.photo("a.jpg"), f.photo("b.jpg")},
		VideoPath:  &video,
	}, t0); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if len(f.jobs.jobs) != 0 {
		t.Fatalf("first save enqueued %d jobs", len(f.jobs.jobs))
	}

	if _, err := f.svc.Save(ctx, f.user, testDay, Input{PhotoPaths: []string{f.photo("b.jpg")}}, t0); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if len(f.jobs.jobs) != 2 {
		t.Fatalf("enqueued %d jobs, want 2", len(f.jobs.jobs))
	}
	photos, videos := f.jobs.jobs[0], f.jobs.jobs[1]
	if photos.Type != queue.JobTypeMediaCleanup || photos.Bucket != models.BucketJournalPhotos ||
		len(photos.Paths) != 1 || photos.Paths[0] != f.photo("a.jpg") {
		t.Errorf("photo cleanup job = %+v", photos)
	}
	if videos.Bucket != models.BucketJournalVideos || videos.Paths[0] != video {
		t.Errorf("video cleanup job = %+v", videos)
	}
}

func TestSave_EnqueueFailureDoesNotFailSave(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Save(ctx, f.user, testDay, Input{PhotoPaths: []string{f.photo("a.jpg")}}, t0); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	f.jobs.err = errors.New("broker down")
	if _, err := f.svc.Save(ctx, f.user, testDay, Input{}, t0); err != nil {
		t.Errorf("Save() error = %v, want nil", err)
	}
}

func TestSetBookmarked_IgnoresEditWindow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	old := testDay.AddDays(-3)
	if _, err := f.svc.Save(ctx, f.user, old, Input{Title: strPtr("old")}, t0); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	later := t0.Add(30 * 24 * time.Hour)
	e, err := f.svc.SetBookmarked(ctx, f.user, old, true, later)
	if err != nil {
		t.Fatalf("SetBookmarked() error = %v", err)
	}
	if !e.IsBookmarked || e.Editable {
		t.Errorf("bookmarked = %v, editable = %v", e.IsBookmarked, e.Editable)
	}

	// Saving keeps the bookmark.
	if _, err := f.svc.Save(ctx, f.user, old, Input{Title: strPtr("again")}, t0); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, _ := f.svc.Get(ctx, f.user, old, t0)
	if !got.IsBookmarked {
		t.Error("Save cleared the bookmark")
	}

	if _, err := f.svc.SetBookmarked(ctx, f.user, testDay.AddDays(-1), true, t0); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("SetBookmarked() on missing entry error = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Save(ctx, f.user, testDay, Input{PhotoPaths: []string{f.photo("a.jpg")}}, t0); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := f.svc.Delete(ctx, f.user, testDay, t0); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := f.svc.Get(ctx, f.user, testDay, t0); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("Get() after delete error = %v", err)
	}
	if len(f.jobs.jobs) != 1 || f.jobs.jobs[0].Paths[0] != f.photo("a.jpg") {
		t.Errorf("cleanup jobs = %+v", f.jobs.jobs)
	}
	if err := f.svc.Delete(ctx, f.user, testDay, t0); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestList_FiltersAndOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	seed := []struct {
		day   models.Date
		in    Input
		saved bool
	}{
		{testDay.AddDays(-2), Input{Title: strPtr("Morning Run"), DayQuality: intPtr(5)}, true},
		{testDay.AddDays(-1), Input{TextContent: strPtr("rainy, stayed in"), DayQuality: intPtr(2), PhotoPaths: []string{f.photo("r.jpg")}}, true},
		{testDay, Input{Title: strPtr("run again"), DayQuality: intPtr(4)}, true},
	}
	for _, s := range seed {
		if _, err := f.svc.Save(ctx, f.user, s.day, s.in, t0); err != nil {
			t.Fatalf("Save(%s) error = %v", s.day, err)
		}
	}

	tests := []struct {
		name   string
		filter models.JournalFilter
		want   []models.Date
	}{
		{"all newest first", models.JournalFilter{}, []models.Date{testDay, testDay.AddDays(-1), testDay.AddDays(-2)}},
		{"text is case-insensitive", models.JournalFilter{Text: " RUN "}, []models.Date{testDay, testDay.AddDays(-2)}},
		{"text matches body", models.JournalFilter{Text: "rainy"}, []models.Date{testDay.AddDays(-1)}},
		{"quality", models.JournalFilter{Quality: intPtr(5)}, []models.Date{testDay.AddDays(-2)}},
		{"has photos", models.JournalFilter{HasPhotos: boolPtr(true)}, []models.Date{testDay.AddDays(-1)}},
		{"limit", models.JournalFilter{Limit: 1}, []models.Date{testDay}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := f.svc.List(ctx, f.user, tt.filter, t0)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("List() returned %d entries, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].EntryDate != tt.want[i] {
					t.Errorf("entry %d = %s, want %s", i, got[i].EntryDate, tt.want[i])
				}
			}
		})
	}

	if _, err := f.svc.List(ctx, f.user, models.JournalFilter{Quality: intPtr(9)}, t0); !errors.Is(err, models.ErrValidation) {
		t.Errorf("List() with bad quality error = %v", err)
	}
}

func TestCalendar(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	for _, d := range []models.Date{models.NewDate(2024, 2, 29), models.NewDate(2024, 3, 1), testDay} {
		if _, err := f.svc.Save(ctx, f.user, d, Input{DayQuality: intPtr(3)}, t0); err != nil {
			t.Fatalf("Save(%s) error = %v", d, err)
		}
	}

	feb, err := f.svc.Calendar(ctx, f.user.ID, 2024, time.February)
	if err != nil {
		t.Fatalf("Calendar() error = %v", err)
	}
	if len(feb) != 1 || feb[0].Date != models.NewDate(2024, 2, 29) {
		t.Errorf("February = %+v", feb)
	}

	mar, err := f.svc.Calendar(ctx, f.user.ID, 2024, time.March)
	if err != nil {
		t.Fatalf("Calendar() error = %v", err)
	}
	if len(mar) != 2 || mar[0].Date != models.NewDate(2024, 3, 1) || mar[1].Date != testDay {
		t.Errorf("March = %+v, want oldest first", mar)
	}

	if _, err := f.svc.Calendar(ctx, f.user.ID, 2024, 13); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Calendar(month 13) error = %v", err)
	}
}

func TestUploadMedia(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	up, err := f.svc.UploadMedia(ctx, f.user, testDay,
		[]MediaFile{{Filename: "IMG_1.JPG", Body: strings.NewReader("one")}, {Filename: "b.png", Body: strings.NewReader("two")}},
		&MediaFile{Filename: "clip.mov", Body: strings.NewReader("video")},
		t0,
	)
	if err != nil {
		t.Fatalf("UploadMedia() error = %v", err)
	}

	millis := "1709582400000"
	wantPhoto := f.user.ID.String() + "/2024-03-04_" + millis + "_0.jpg"
	if len(up.PhotoPaths) != 2 || up.PhotoPaths[0] != wantPhoto {
		t.Errorf("PhotoPaths = %v, want first %q", up.PhotoPaths, wantPhoto)
	}
	wantVideo := f.user.ID.String() + "/2024-03-04_" + millis + ".mov"
	if up.VideoPath == nil || *up.VideoPath != wantVideo {
		t.Errorf("VideoPath = %v, want %q", up.VideoPath, wantVideo)
	}

	rc, err := f.blobs.Open(ctx, models.BucketJournalPhotos, up.PhotoPaths[1])
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "two" {
		t.Errorf("stored photo = %q", body)
	}

	// Uploaded paths are accepted by Save.
	if _, err := f.svc.Save(ctx, f.user, testDay, Input{PhotoPaths: up.PhotoPaths, VideoPath: up.VideoPath}, t0); err != nil {
		t.Errorf("Save() with uploaded paths error = %v", err)
	}
}

func TestUploadMedia_Rejects(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	many := make([]MediaFile, models.MaxJournalPhotos+1)
	for i := range many {
		many[i] = MediaFile{Filename: "a.jpg", Body: strings.NewReader("x")}
	}

	tests := []struct {
		name    string
		day     models.Date
		photos  []MediaFile
		video   *MediaFile
		wantErr error
	}{
		{"nothing", testDay, nil, nil, models.ErrValidation},
		{"too many photos", testDay, many, nil, models.ErrValidation},
		{"bad photo type", testDay, []MediaFile{{Filename: "a.exe", Body: strings.NewReader("x")}}, nil, models.ErrValidation},
		{"bad video type", testDay, nil, &MediaFile{Filename: "a.jpg", Body: strings.NewReader("x")}, models.ErrValidation},
		{"locked day", testDay.AddDays(-8), []MediaFile{{Filename: "a.jpg", Body: strings.NewReader("x")}}, nil, ErrEntryLocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := f.svc.UploadMedia(context.Background(), f.user, tt.day, tt.photos, tt.video, t0)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("UploadMedia() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPresent_SkipsUnsignableMedia(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.svc.signer = fakeSigner{err: errors.New("no key")}

	e, err := f.svc.Save(context.Background(), f.user, testDay, Input{PhotoPaths: []string{f.photo("a.jpg")}}, t0)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if len(e.PhotoURLs) != 0 || len(e.PhotoPaths) != 1 {
		t.Errorf("PhotoURLs = %v, PhotoPaths = %v", e.PhotoURLs, e.PhotoPaths)
	}
}

func TestDeleteMedia(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	p := f.photo("a.jpg")
	if _, err := f.blobs.Put(ctx, models.BucketJournalPhotos, p, strings.NewReader("x")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := DeleteMedia(ctx, f.blobs, models.BucketJournalPhotos, []string{p, f.photo("missing.jpg")}); err != nil {
		t.Errorf("DeleteMedia() error = %v", err)
	}
	if _, err := f.blobs.Open(ctx, models.BucketJournalPhotos, p); !errors.Is(err, blob.ErrNotFound) {
		t.Errorf("blob still present: %v", err)
	}
	if err := DeleteMedia(ctx, f.blobs, "avatars", []string{p}); err == nil {
		t.Error("DeleteMedia() accepted an unknown bucket")
	}
}
