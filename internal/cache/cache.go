// Package cache is a content-addressed store for downloaded receipt
// images. Blobs live on disk keyed by their SHA-256; metadata lives in
// a bolt database so restarts keep the index. Re-downloading identical
// bytes under a new identifier costs one alias entry, not a second
// blob.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

const (
	entriesBucketName = "entries"
	hashesBucketName  = "hashes"
)

// ErrMiss is returned by Get when the identifier is not cached, or the
// backing blob has disappeared.
var ErrMiss = errors.New("cache miss")

// Entry is the index record for one cached identifier.
type Entry struct {
	LogicalID    string    `json:"logical_id"`
	TargetID     string    `json:"target_id"` // blob owner; equals LogicalID unless IsAlias
	ContentHash  string    `json:"content_hash"`
	Path         string    `json:"path,omitempty"`
	Size         int64     `json:"size"`
	CachedAt     time.Time `json:"cached_at"`
	LastAccessed time.Time `json:"last_accessed"`
	IsAlias      bool      `json:"is_alias"`
}

// Stats summarizes cache contents and usage.
type Stats struct {
	TotalFiles     int     `json:"total_files"`
	UniqueFiles    int     `json:"unique_files"`
	DuplicateFiles int     `json:"duplicate_files"`
	TotalSizeBytes int64   `json:"total_size_bytes"`
	MaxSizeBytes   int64   `json:"max_size_bytes"`
	UsagePercent   float64 `json:"usage_percent"`
}

// CleanupStats reports what an eviction pass removed.
type CleanupStats struct {
	FilesRemoved int   `json:"files_removed"`
	BytesFreed   int64 `json:"bytes_freed"`
}

// Cache is safe for concurrent use. Writes are serialized through a
// single mutex; bolt handles concurrent readers.
type Cache struct {
	db       *bbolt.DB
	blobDir  string
	maxBytes int64

	mu  sync.Mutex
	now func() time.Time
}

// New opens (or creates) a cache rooted at dir.
func New(dir string, maxSizeMB int) (*Cache, error) {
	blobDir := filepath.Join(dir, "blobs")
	if err := os.MkdirAll(blobDir, 0700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := bbolt.Open(filepath.Join(dir, "cache.db"), 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening cache index: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(entriesBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(hashesBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Cache{
		db:       db,
		blobDir:  blobDir,
		maxBytes: int64(maxSizeMB) * 1024 * 1024,
		now:      time.Now,
	}, nil
}

// Put stores data under id. If the same bytes are already cached under
// another identifier, only an alias entry is written.
func (c *Cache) Put(id string, data []byte) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	now := c.now()

	var entry Entry
	err := c.db.Update(func(tx *bbolt.Tx) error {
		entries := tx.Bucket([]byte(entriesBucketName))
		hashes := tx.Bucket([]byte(hashesBucketName))

		if owner := hashes.Get([]byte(hash)); owner != nil && string(owner) != id {
			if entries.Get(owner) != nil {
				entry = Entry{
					LogicalID:    id,
					TargetID:     string(owner),
					ContentHash:  hash,
					Size:         int64(len(data)),
					CachedAt:     now,
					LastAccessed: now,
					IsAlias:      true,
				}
				slog.Debug("cached as alias", "id", id, "target", entry.TargetID)
				return putEntry(entries, entry)
			}
		}

		path := filepath.Join(c.blobDir, hash+".bin")
		if err := os.WriteFile(path, data, 0600); err != nil {
			return fmt.Errorf("writing blob: %w", err)
		}

		entry = Entry{
			LogicalID:    id,
			TargetID:     id,
			ContentHash:  hash,
			Path:         path,
			Size:         int64(len(data)),
			CachedAt:     now,
			LastAccessed: now,
		}
		if err := hashes.Put([]byte(hash), []byte(id)); err != nil {
			return fmt.Errorf("indexing hash: %w", err)
		}
		return putEntry(entries, entry)
	})
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Get returns the cached bytes for id, following aliases. A missing
// blob heals the index: the stale entry is dropped and ErrMiss
// returned. Hits refresh the entry's last-accessed time.
func (c *Cache) Get(id string) ([]byte, Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var entry Entry
	var path string
	var missed bool

	err := c.db.Update(func(tx *bbolt.Tx) error {
		entries := tx.Bucket([]byte(entriesBucketName))

		e, err := getEntry(entries, id)
		if errors.Is(err, ErrMiss) {
			missed = true
			return nil
		}
		if err != nil {
			return err
		}
		entry = e

		owner := entry
		if entry.IsAlias {
			owner, err = getEntry(entries, entry.TargetID)
			if errors.Is(err, ErrMiss) {
				// Target was evicted; the alias is dead weight.
				missed = true
				return c.deleteEntry(tx, entry)
			}
			if err != nil {
				return err
			}
		}
		path = owner.Path

		entry.LastAccessed = c.now()
		return putEntry(entries, entry)
	})
	if err != nil {
		return nil, Entry{}, err
	}
	if missed {
		return nil, Entry{}, ErrMiss
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("cached blob vanished, healing index", "id", id, "path", path)
		if removeErr := c.remove(id); removeErr != nil {
			return nil, Entry{}, removeErr
		}
		return nil, Entry{}, ErrMiss
	}
	if err != nil {
		return nil, Entry{}, fmt.Errorf("reading blob: %w", err)
	}
	return data, entry, nil
}

// Contains reports whether id has an index entry, without touching
// access times.
func (c *Cache) Contains(id string) bool {
	var found bool
	c.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket([]byte(entriesBucketName)).Get([]byte(id)) != nil
		return nil
	})
	return found
}

// Remove drops id from the cache. Removing a blob owner deletes the
// blob; aliases pointing at it become misses on their next Get.
func (c *Cache) Remove(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remove(id)
}

func (c *Cache) remove(id string) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		entries := tx.Bucket([]byte(entriesBucketName))
		entry, err := getEntry(entries, id)
		if errors.Is(err, ErrMiss) {
			return nil
		}
		if err != nil {
			return err
		}
		return c.deleteEntry(tx, entry)
	})
}

func (c *Cache) deleteEntry(tx *bbolt.Tx, entry Entry) error {
	entries := tx.Bucket([]byte(entriesBucketName))

	if !entry.IsAlias {
		if entry.Path != "" {
			if err := os.Remove(entry.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("removing blob: %w", err)
			}
		}
		hashes := tx.Bucket([]byte(hashesBucketName))
		if string(hashes.Get([]byte(entry.ContentHash))) == entry.LogicalID {
			if err := hashes.Delete([]byte(entry.ContentHash)); err != nil {
				return err
			}
		}
	}

	return entries.Delete([]byte(entry.LogicalID))
}

// Evict removes every entry cached longer ago than maxAgeDays.
func (c *Cache) Evict(maxAgeDays int) (CleanupStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().AddDate(0, 0, -maxAgeDays)
	var stats CleanupStats

	err := c.db.Update(func(tx *bbolt.Tx) error {
		expired, err := collectEntries(tx, func(e Entry) bool { return e.CachedAt.Before(cutoff) })
		if err != nil {
			return err
		}
		for _, entry := range expired {
			if err := c.deleteEntry(tx, entry); err != nil {
				return err
			}
			stats.FilesRemoved++
			if !entry.IsAlias {
				stats.BytesFreed += entry.Size
			}
		}
		return nil
	})
	if err != nil {
		return CleanupStats{}, err
	}

	slog.Info("cache eviction complete", "removed", stats.FilesRemoved, "bytes_freed", stats.BytesFreed)
	return stats, nil
}

// EnforceSizeLimit removes least recently accessed blob owners until
// the cache fits its size limit. Aliases hold no bytes and are never
// removed here; they turn into misses once their target goes.
func (c *Cache) EnforceSizeLimit() (CleanupStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var stats CleanupStats
	err := c.db.Update(func(tx *bbolt.Tx) error {
		owners, err := collectEntries(tx, func(e Entry) bool { return !e.IsAlias })
		if err != nil {
			return err
		}

		var total int64
		for _, e := range owners {
			total += e.Size
		}
		if total <= c.maxBytes {
			return nil
		}

		sort.Slice(owners, func(i, j int) bool {
			return owners[i].LastAccessed.Before(owners[j].LastAccessed)
		})

		for _, entry := range owners {
			if total-stats.BytesFreed <= c.maxBytes {
				break
			}
			if err := c.deleteEntry(tx, entry); err != nil {
				return err
			}
			stats.FilesRemoved++
			stats.BytesFreed += entry.Size
		}
		return nil
	})
	if err != nil {
		return CleanupStats{}, err
	}

	if stats.FilesRemoved > 0 {
		slog.Info("cache size limit enforced", "removed", stats.FilesRemoved, "bytes_freed", stats.BytesFreed)
	}
	return stats, nil
}

// Stats reports current cache usage.
func (c *Cache) Stats() (Stats, error) {
	stats := Stats{MaxSizeBytes: c.maxBytes}

	err := c.db.View(func(tx *bbolt.Tx) error {
		all, err := collectEntries(tx, func(Entry) bool { return true })
		if err != nil {
			return err
		}
		for _, e := range all {
			stats.TotalFiles++
			if e.IsAlias {
				stats.DuplicateFiles++
			} else {
				stats.UniqueFiles++
				stats.TotalSizeBytes += e.Size
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}

	if c.maxBytes > 0 {
		stats.UsagePercent = float64(stats.TotalSizeBytes) / float64(c.maxBytes) * 100
	}
	return stats, nil
}

// Rebuild reconciles the index with the blob directory: entries whose
// blob is gone are dropped, and blobs nothing references are deleted.
func (c *Cache) Rebuild() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	referenced := make(map[string]bool)
	err := c.db.Update(func(tx *bbolt.Tx) error {
		owners, err := collectEntries(tx, func(e Entry) bool { return !e.IsAlias })
		if err != nil {
			return err
		}
		for _, entry := range owners {
			if _, err := os.Stat(entry.Path); errors.Is(err, os.ErrNotExist) {
				if err := c.deleteEntry(tx, entry); err != nil {
					return err
				}
				continue
			}
			referenced[filepath.Base(entry.Path)] = true
		}
		return nil
	})
	if err != nil {
		return err
	}

	blobs, err := os.ReadDir(c.blobDir)
	if err != nil {
		return fmt.Errorf("reading blob directory: %w", err)
	}
	for _, blob := range blobs {
		if blob.IsDir() || referenced[blob.Name()] {
			continue
		}
		if err := os.Remove(filepath.Join(c.blobDir, blob.Name())); err != nil {
			return fmt.Errorf("removing orphan blob: %w", err)
		}
		slog.Debug("removed orphan blob", "name", blob.Name())
	}
	return nil
}

// Close closes the index database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func putEntry(bucket *bbolt.Bucket, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	return bucket.Put([]byte(entry.LogicalID), data)
}

func getEntry(bucket *bbolt.Bucket, id string) (Entry, error) {
	data := bucket.Get([]byte(id))
	if data == nil {
		return Entry{}, ErrMiss
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, fmt.Errorf("unmarshaling cache entry: %w", err)
	}
	return entry, nil
}

func collectEntries(tx *bbolt.Tx, keep func(Entry) bool) ([]Entry, error) {
	var out []Entry
	err := tx.Bucket([]byte(entriesBucketName)).ForEach(func(k, v []byte) error {
		var entry Entry
		if err := json.Unmarshal(v, &entry); err != nil {
			return fmt.Errorf("unmarshaling cache entry: %w", err)
		}
		if keep(entry) {
			out = append(out, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
