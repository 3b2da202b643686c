// Package blobs stores the binary payloads referenced by stream fields.
//
// Payloads are content addressed: the id is the first eight bytes of a
// blake2b digest of the raw data, so putting the same bytes twice yields the
// same id and stores them once. Values are kept zstd-compressed in BadgerDB.
package blobs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"
)

// ErrNotFound is returned when no payload has the requested id.
var ErrNotFound = errors.New("buffer not found")

var keyPrefix = []byte("buf/")

// Config holds configuration for a Store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	InMemory bool

	// Level is the zstd level name: fastest, default, better or best.
	Level string

	// Logger receives BadgerDB's internal logging. If nil, it is discarded.
	Logger *slog.Logger
}

// Store is a content-addressed payload store.
type Store struct {
	db  *badger.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// EncoderLevel maps a level name to a zstd encoder level.
func EncoderLevel(name string) zstd.EncoderLevel {
	switch strings.ToLower(name) {
	case "fastest":
		return zstd.SpeedFastest
	case "better":
		return zstd.SpeedBetterCompression
	case "best":
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

// Open opens a payload store.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent buffer store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create buffer directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open buffer store: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(EncoderLevel(cfg.Level)))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Store{db: db, enc: enc, dec: dec}, nil
}

// Close releases the store.
func (s *Store) Close() error {
	s.dec.Close()
	if err := s.enc.Close(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}

// Hash returns the id data would be stored under.
func Hash(data []byte) uint64 {
	h, _ := blake2b.New(8, nil)
	h.Write(data)
	return binary.BigEndian.Uint64(h.Sum(nil))
}

func key(id uint64) []byte {
	k := make([]byte, len(keyPrefix)+8)
	copy(k, keyPrefix)
	binary.BigEndian.PutUint64(k[len(keyPrefix):], id)
	return k
}

// Put stores data and returns its id. Storing existing content is a no-op.
func (s *Store) Put(data []byte) (uint64, error) {
	id := Hash(data)
	has, err := s.Has(id)
	if err != nil {
		return 0, err
	}
	if has {
		return id, nil
	}
	packed := s.enc.EncodeAll(data, nil)
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(id), packed)
	})
	if err != nil {
		return 0, fmt.Errorf("put buffer %016x: %w", id, err)
	}
	return id, nil
}

// Get returns the payload stored under id.
func (s *Store) Get(id uint64) ([]byte, error) {
	var packed []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if err != nil {
			return err
		}
		packed, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("buffer %016x: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get buffer %016x: %w", id, err)
	}
	data, err := s.dec.DecodeAll(packed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress buffer %016x: %w", id, err)
	}
	return data, nil
}

// Has reports whether a payload is stored under id.
func (s *Store) Has(id uint64) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key(id))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup buffer %016x: %w", id, err)
	}
	return true, nil
}

// Delete removes the payload stored under id. Deleting a missing id is not an
// error.
func (s *Store) Delete(id uint64) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(id))
	})
	if err != nil {
		return fmt.Errorf("delete buffer %016x: %w", id, err)
	}
	return nil
}

// IDs lists every stored id in ascending order.
func (s *Store) IDs() ([]uint64, error) {
	var ids []uint64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().Key()
			ids = append(ids, binary.BigEndian.Uint64(k[len(keyPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list buffers: %w", err)
	}
	return ids, nil
}
