// internal/stage/stager.go
package stage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"silo/internal/attr"
	"silo/internal/config"
	"silo/internal/filter"
	"silo/internal/store"
)

const entryPrefix = "stage:"

// Entry is one staged file: the object its filtered content hashed to
// plus the working-tree facts at staging time.
type Entry struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	Hash       string    `json:"hash"`
	Size       int64     `json:"size"`
	Mode       int       `json:"mode"`
	ModTime    time.Time `json:"mod_time"`
	Normalized bool      `json:"normalized"`
	StagedAt   time.Time `json:"staged_at"`
}

// Stager runs the write path: read a working file, build the filter
// chain for its path, run it, store the result and record the entry.
type Stager struct {
	Root    string
	DB      *badger.DB
	Objects *store.Store
	Attrs   attr.Source
	Mode    config.AutoCRLF
	Logger  *zap.Logger

	mu      sync.RWMutex
	entries map[string]Entry
}

// New creates a Stager and loads previously staged entries from db.
func New(root string, db *badger.DB, objects *store.Store, attrs attr.Source, mode config.AutoCRLF, logger *zap.Logger) (*Stager, error) {
	s := &Stager{
		Root:    root,
		DB:      db,
		Objects: objects,
		Attrs:   attrs,
		Mode:    mode,
		Logger:  logger,
		entries: make(map[string]Entry),
	}
	if err := s.loadEntries(); err != nil {
		return nil, fmt.Errorf("loading staged entries: %w", err)
	}
	return s, nil
}

// FindRoot walks up from startDir looking for the .silo directory.
func FindRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, ".silo")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", errors.New("repository root not found")
}

// Stage stages the given paths. Directories are staged recursively. A
// failing path is logged and skipped so the rest still stage; the write
// of that one path is what aborts.
func (s *Stager) Stage(paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("no paths specified")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, path := range paths {
		absPath := filepath.Join(s.Root, filepath.Clean(path))
		relPath, err := filepath.Rel(s.Root, absPath)
		if err != nil {
			continue
		}
		// "." stages the whole tree; everything else goes through the
		// ignore rules.
		if relPath != "." && s.shouldIgnore(relPath) {
			continue
		}

		info, err := os.Stat(absPath)
		if err != nil {
			s.Logger.Warn("failed to stat path",
				zap.String("path", relPath),
				zap.Error(err))
			continue
		}

		if info.IsDir() {
			if err := s.stageDir(absPath); err != nil {
				s.Logger.Error("failed to stage directory",
					zap.String("path", relPath),
					zap.Error(err))
			}
			continue
		}

		if err := s.stageFile(relPath); err != nil {
			s.Logger.Warn("failed to stage file",
				zap.String("path", relPath),
				zap.Error(err))
		}
	}

	return nil
}

// StageFile stages a single file by path relative to the root.
func (s *Stager) StageFile(relPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stageFile(relPath)
}

func (s *Stager) stageDir(absDir string) error {
	return filepath.WalkDir(absDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(s.Root, p)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}
		if s.shouldIgnore(relPath) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if err := s.stageFile(relPath); err != nil {
			s.Logger.Warn("failed to stage file",
				zap.String("path", relPath),
				zap.Error(err))
		}
		return nil
	})
}

// stageFile runs the full write path for one file. Caller holds the lock.
func (s *Stager) stageFile(relPath string) error {
	absPath := filepath.Join(s.Root, relPath)

	content, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	filters := filter.NewList()
	if err := filter.AddCRLF(filters, s.Attrs, filepath.ToSlash(relPath), s.Mode); err != nil {
		return fmt.Errorf("building filter chain: %w", err)
	}
	defer filters.Close()

	out, normalized, err := filters.Run(content)
	if err != nil {
		return fmt.Errorf("filtering content: %w", err)
	}

	hash, err := s.Objects.Put(out, normalized)
	if err != nil {
		return fmt.Errorf("storing content: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("getting file info: %w", err)
	}

	entry := Entry{
		ID:         uuid.New().String(),
		Path:       relPath,
		Hash:       hash,
		Size:       int64(len(out)),
		Mode:       int(info.Mode()),
		ModTime:    info.ModTime(),
		Normalized: normalized,
		StagedAt:   time.Now(),
	}
	if prev, ok := s.entries[relPath]; ok {
		entry.ID = prev.ID
	}

	if err := s.saveEntry(entry); err != nil {
		return fmt.Errorf("saving staged entry: %w", err)
	}
	s.entries[relPath] = entry

	s.Logger.Debug("staged file",
		zap.String("path", relPath),
		zap.String("hash", hash),
		zap.Bool("normalized", normalized))

	return nil
}

// Unstage removes paths from the staged set. Stored objects keep their
// reference until Delete drops it.
func (s *Stager) Unstage(paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, path := range paths {
		relPath := filepath.Clean(path)
		entry, ok := s.entries[relPath]
		if !ok {
			continue
		}

		if err := s.deleteEntry(relPath); err != nil {
			return fmt.Errorf("removing staged entry for %s: %w", relPath, err)
		}
		delete(s.entries, relPath)

		if err := s.Objects.Delete(entry.Hash); err != nil && !errors.Is(err, store.ErrObjectNotFound) {
			s.Logger.Warn("failed to release object",
				zap.String("hash", entry.Hash),
				zap.Error(err))
		}
	}

	return nil
}

// Entries returns the staged entries.
func (s *Stager) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	return entries
}

// Entry returns the staged entry for a path.
func (s *Stager) Entry(relPath string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[filepath.Clean(relPath)]
	return e, ok
}

// shouldIgnore filters out hidden files and common build output.
func (s *Stager) shouldIgnore(path string) bool {
	if path == "" || path == "." {
		return true
	}

	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, ".") {
			return true
		}
		switch part {
		case "node_modules", "vendor", "dist", "build":
			return true
		}
	}

	return false
}

func entryKey(path string) []byte {
	return []byte(entryPrefix + path)
}

func (s *Stager) saveEntry(entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling entry: %w", err)
	}
	return s.DB.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(entry.Path), data)
	})
}

func (s *Stager) deleteEntry(path string) error {
	return s.DB.Update(func(txn *badger.Txn) error {
		return txn.Delete(entryKey(path))
	})
}

func (s *Stager) loadEntries() error {
	return s.DB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(entryPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			path := string(bytes.TrimPrefix(item.Key(), []byte(entryPrefix)))
			err := item.Value(func(val []byte) error {
				var entry Entry
				if err := json.Unmarshal(val, &entry); err != nil {
					return err
				}
				s.entries[path] = entry
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}
