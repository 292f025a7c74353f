// internal/store/store.go
package store

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"

	"silo/shared/utils"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrInvalidHash    = errors.New("invalid object hash")
)

// ObjectMeta records what the store knows about one object.
type ObjectMeta struct {
	Hash       string    `json:"hash"`
	RawSize    int64     `json:"raw_size"`
	StoredSize int64     `json:"stored_size"`
	Compressed bool      `json:"compressed"`
	Normalized bool      `json:"normalized"`
	RefCount   uint32    `json:"ref_count"`
	CreatedAt  time.Time `json:"created_at"`
	AccessedAt time.Time `json:"accessed_at"`
}

// Options configures a Store.
type Options struct {
	Root        string // root directory for object files
	CacheSize   int    // number of objects to cache
	CompressMin int    // objects at or above this size are compressed
}

// Store is a content-addressed object store: sha256 addressing, zstd
// compression for larger objects, metadata in badger and an LRU content
// cache. Objects are hashed exactly as handed in; any filtering happens
// upstream on the write path.
type Store struct {
	root        string
	db          *badger.DB
	cache       *lru.Cache[string, []byte]
	enc         *zstd.Encoder
	dec         *zstd.Decoder
	compressMin int
}

// New creates a Store backed by db and the directory in opts.Root.
func New(db *badger.DB, opts Options) (*Store, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("root directory is required")
	}
	if err := os.MkdirAll(opts.Root, 0755); err != nil {
		return nil, fmt.Errorf("creating object directory: %w", err)
	}

	if opts.CacheSize <= 0 {
		opts.CacheSize = 1024
	}
	if opts.CompressMin <= 0 {
		opts.CompressMin = 1024
	}

	cache, err := lru.New[string, []byte](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating object cache: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	return &Store{
		root:        opts.Root,
		db:          db,
		cache:       cache,
		enc:         enc,
		dec:         dec,
		compressMin: opts.CompressMin,
	}, nil
}

// Put saves content and returns its hash. The normalized flag records
// whether the write-path filters converted the content before it got
// here. Storing an existing object increments its reference count.
func (s *Store) Put(content []byte, normalized bool) (string, error) {
	if content == nil {
		content = []byte{}
	}

	hash := utils.HashContent(content)

	exists, err := s.Exists(hash)
	if err != nil {
		return "", fmt.Errorf("checking existence: %w", err)
	}
	if exists {
		if err := s.incrementRefCount(hash); err != nil {
			return "", fmt.Errorf("incrementing ref count: %w", err)
		}
		return hash, nil
	}

	stored := content
	compressed := false
	if len(content) >= s.compressMin {
		stored = s.enc.EncodeAll(content, nil)
		compressed = true
	}

	objPath := s.objectPath(hash)
	if err := os.MkdirAll(filepath.Dir(objPath), 0755); err != nil {
		return "", fmt.Errorf("creating object directory: %w", err)
	}
	if err := os.WriteFile(objPath, stored, 0644); err != nil {
		return "", fmt.Errorf("writing object file: %w", err)
	}

	meta := ObjectMeta{
		Hash:       hash,
		RawSize:    int64(len(content)),
		StoredSize: int64(len(stored)),
		Compressed: compressed,
		Normalized: normalized,
		RefCount:   1,
		CreatedAt:  time.Now(),
		AccessedAt: time.Now(),
	}
	if err := s.putMeta(meta); err != nil {
		os.Remove(objPath)
		return "", fmt.Errorf("storing object metadata: %w", err)
	}

	s.cache.Add(hash, content)
	return hash, nil
}

// Get retrieves an object by hash and verifies it.
func (s *Store) Get(hash string) ([]byte, error) {
	if !validHash(hash) {
		return nil, ErrInvalidHash
	}

	if content, ok := s.cache.Get(hash); ok {
		return content, nil
	}

	meta, err := s.getMeta(hash)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(s.objectPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("reading object: %w", err)
	}

	if meta.Compressed {
		content, err = s.dec.DecodeAll(content, nil)
		if err != nil {
			return nil, fmt.Errorf("decompressing object: %w", err)
		}
	}

	if utils.HashContent(content) != hash {
		return nil, fmt.Errorf("object %s failed verification", utils.ShortHash(hash))
	}

	s.cache.Add(hash, content)
	meta.AccessedAt = time.Now()
	if err := s.putMeta(meta); err != nil {
		return nil, fmt.Errorf("updating object metadata: %w", err)
	}

	return content, nil
}

// Meta returns the metadata for an object.
func (s *Store) Meta(hash string) (ObjectMeta, error) {
	if !validHash(hash) {
		return ObjectMeta{}, ErrInvalidHash
	}
	return s.getMeta(hash)
}

// Exists checks whether an object is present.
func (s *Store) Exists(hash string) (bool, error) {
	if !validHash(hash) {
		return false, ErrInvalidHash
	}
	if s.cache.Contains(hash) {
		return true, nil
	}

	_, err := s.getMeta(hash)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete drops one reference to an object, removing it once unreferenced.
func (s *Store) Delete(hash string) error {
	if !validHash(hash) {
		return ErrInvalidHash
	}

	meta, err := s.getMeta(hash)
	if err != nil {
		return err
	}

	meta.RefCount--
	if meta.RefCount > 0 {
		return s.putMeta(meta)
	}

	if err := os.Remove(s.objectPath(hash)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing object file: %w", err)
	}
	if err := s.deleteMeta(hash); err != nil {
		return fmt.Errorf("deleting object metadata: %w", err)
	}
	s.cache.Remove(hash)
	return nil
}

// Close releases the compression codecs. The badger handle belongs to
// the caller.
func (s *Store) Close() error {
	s.enc.Close()
	s.dec.Close()
	return nil
}

func (s *Store) objectPath(hash string) string {
	return filepath.Join(s.root, hash[:2], hash[2:])
}

func validHash(hash string) bool {
	if len(hash) != 64 {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}

func (s *Store) incrementRefCount(hash string) error {
	meta, err := s.getMeta(hash)
	if err != nil {
		return err
	}
	meta.RefCount++
	return s.putMeta(meta)
}

func metaKey(hash string) []byte {
	return []byte(fmt.Sprintf("object:%s", hash))
}

func (s *Store) putMeta(meta ObjectMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaKey(meta.Hash), data)
	})
}

func (s *Store) getMeta(hash string) (ObjectMeta, error) {
	var meta ObjectMeta

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(hash))
		if err == badger.ErrKeyNotFound {
			return ErrObjectNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})

	return meta, err
}

func (s *Store) deleteMeta(hash string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(metaKey(hash))
	})
}
