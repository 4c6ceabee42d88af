package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/versekeeper/versekeeper/internal/streak"
)

// fileData is the on-disk layout of the JSON file store.
type fileData struct {
	Verses      map[string]MemoryVerse   `json:"verses"`
	Reviews     []ReviewEvent            `json:"reviews"`
	Streaks     map[string]streak.Record `json:"streaks"`
	DailyStats  []DailyStats             `json:"daily_stats"`
	LastUpdated time.Time                `json:"last_updated"`
}

// FileStore implements Store on a single JSON file. Every mutation is
// persisted with a write-to-temp-then-rename so the file is never left half
// written. Suitable for tests and single-user deployments.
type FileStore struct {
	filePath string
	mu       sync.RWMutex
	data     fileData
}

// NewFileStore creates a FileStore for filePath. Call Load before use.
func NewFileStore(filePath string) *FileStore {
	return &FileStore{
		filePath: filePath,
		data: fileData{
			Verses:  make(map[string]MemoryVerse),
			Streaks: make(map[string]streak.Record),
		},
	}
}

// Load reads the data file, initializing an empty store when the file does
// not exist yet.
func (fs *FileStore) Load() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	raw, err := os.ReadFile(fs.filePath)
	if os.IsNotExist(err) {
		return fs.save()
	}
	if err != nil {
		return fmt.Errorf("reading store file: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}

	var data fileData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("decoding store file: %w", err)
	}
	if data.Verses == nil {
		data.Verses = make(map[string]MemoryVerse)
	}
	if data.Streaks == nil {
		data.Streaks = make(map[string]streak.Record)
	}
	fs.data = data
	return nil
}

// save writes the store atomically. Caller must hold the write lock.
func (fs *FileStore) save() error {
	fs.data.LastUpdated = time.Now()

	raw, err := json.MarshalIndent(fs.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding store file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(fs.filePath), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	tmp := fs.filePath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := os.Rename(tmp, fs.filePath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing store file: %w", err)
	}
	return nil
}

func (fs *FileStore) CreateVerse(_ context.Context, v MemoryVerse) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.data.Verses[v.ID] = v
	return fs.save()
}

func (fs *FileStore) GetVerse(_ context.Context, ownerID, verseID string) (MemoryVerse, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	v, ok := fs.data.Verses[verseID]
	if !ok || v.OwnerID != ownerID {
		return MemoryVerse{}, ErrNotFound
	}
	return v, nil
}

func (fs *FileStore) UpdateVerse(_ context.Context, v MemoryVerse) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	existing, ok := fs.data.Verses[v.ID]
	if !ok || existing.OwnerID != v.OwnerID {
		return ErrNotFound
	}
	fs.data.Verses[v.ID] = v
	return fs.save()
}

func (fs *FileStore) ListVerses(_ context.Context, ownerID, language string) ([]MemoryVerse, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	verses := make([]MemoryVerse, 0, len(fs.data.Verses))
	for _, v := range fs.data.Verses {
		if v.OwnerID != ownerID {
			continue
		}
		if language != "" && v.Language != language {
			continue
		}
		verses = append(verses, v)
	}
	return verses, nil
}

func (fs *FileStore) AddReviewEvent(_ context.Context, ev ReviewEvent) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.data.Reviews = append(fs.data.Reviews, ev)
	return fs.save()
}

func (fs *FileStore) CountReviewsSince(_ context.Context, ownerID string, since time.Time) (int, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	count := 0
	for _, ev := range fs.data.Reviews {
		if ev.OwnerID == ownerID && !ev.ReviewedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (fs *FileStore) PracticeDaysBetween(_ context.Context, ownerID string, from, to time.Time) (int, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	days := make(map[time.Time]struct{})
	for _, ev := range fs.data.Reviews {
		if ev.OwnerID != ownerID {
			continue
		}
		if ev.ReviewedAt.Before(from) || !ev.ReviewedAt.Before(to) {
			continue
		}
		days[streak.DayOf(ev.ReviewedAt)] = struct{}{}
	}
	return len(days), nil
}

func (fs *FileStore) GetStreak(_ context.Context, ownerID string) (streak.Record, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	rec, ok := fs.data.Streaks[ownerID]
	if !ok {
		return streak.Record{}, ErrNotFound
	}
	return rec, nil
}

func (fs *FileStore) SaveStreak(_ context.Context, rec streak.Record, prevPractice time.Time) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	existing, ok := fs.data.Streaks[rec.OwnerID]
	if ok && !existing.LastPracticeDate.Equal(prevPractice) {
		return ErrConflict
	}
	if !ok && !prevPractice.IsZero() {
		return ErrConflict
	}
	fs.data.Streaks[rec.OwnerID] = rec
	return fs.save()
}

func (fs *FileStore) IncrementDailyStats(_ context.Context, ownerID string, day time.Time, correct bool) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	day = streak.DayOf(day)
	for i := range fs.data.DailyStats {
		ds := &fs.data.DailyStats[i]
		if ds.OwnerID == ownerID && ds.Day.Equal(day) {
			ds.Reviews++
			if correct {
				ds.Correct++
			}
			return fs.save()
		}
	}
	ds := DailyStats{OwnerID: ownerID, Day: day, Reviews: 1}
	if correct {
		ds.Correct = 1
	}
	fs.data.DailyStats = append(fs.data.DailyStats, ds)
	return fs.save()
}

func (fs *FileStore) Close() error {
	return nil
}
