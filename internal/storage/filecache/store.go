// Package filecache is the default result cache: a JSON document mapping each
// redirect link to its resolved URL and creation time, loaded fully on open
// and written through on every mutation.
//
// Document format:
//
//	{ "<redirect-url>": { "o": "<resolved-url>", "t": <unix-seconds> } }
//
// Mutations are serialized inside one process by a mutex and across
// processes by an flock on "<path>.lock". Each flush merges live entries
// other processes wrote since this store loaded, so concurrent writers do
// not drop each other's resolutions. Removals made by another process are
// only seen after a reopen; use the postgres backend when that matters.
package filecache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/lueurxax/gnews-link-resolver/internal/platform/observability"
)

const (
	// Backend is the metrics label of this cache.
	Backend = "file"

	DefaultTTL        = 7 * 24 * time.Hour
	DefaultMaxEntries = 1000

	dirPerm         = 0o755
	tempFilePattern = ".gnews-cache-*.json"
	lockFileSuffix  = ".lock"

	reasonExpired  = "expired"
	reasonCapacity = "capacity"
	outcomeHit     = "hit"
	outcomeMiss    = "miss"
	outcomeExpired = "expired"
)

// ErrEmptyPath is returned by Open when no document path is configured.
var ErrEmptyPath = errors.New("cache path is empty")

type entry struct {
	Resolved  string `json:"o"`
	CreatedAt int64  `json:"t"`

	// seq orders entries written within the same second. Loaded entries
	// keep zero and sort before anything written by this process.
	seq uint64
}

// Stats describes the current store contents.
type Stats struct {
	Path       string
	Entries    int
	MaxEntries int
	TTL        time.Duration
	Oldest     time.Time
	Newest     time.Time
}

type Store struct {
	mu         sync.Mutex
	path       string
	ttl        time.Duration
	maxEntries int
	entries    map[string]entry
	dropped    map[string]struct{}
	seq        uint64
	fileLock   *flock.Flock
	now        func() time.Time
	logger     *zerolog.Logger
}

type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(logger *zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Open loads the document at path. A missing or malformed document yields an
// empty store. Expired entries are purged and capacity enforced before Open
// returns; the document is rewritten if that removed anything.
func Open(path string, ttl time.Duration, maxEntries int, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	nop := zerolog.Nop()

	s := &Store{
		path:       path,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]entry),
		dropped:    make(map[string]struct{}),
		fileLock:   flock.New(path + lockFileSuffix),
		now:        time.Now,
		logger:     &nop,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.load()

	err := s.update(func() bool {
		expired := s.purgeExpiredLocked()
		evicted := s.enforceCapacityLocked()

		return expired+evicted > 0
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("failed to persist purged cache")
	}

	return s, nil
}

func (s *Store) load() {
	if s.lockFile(true) {
		defer s.unlockFile()
	}

	doc, err := s.readDocument()
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("cannot read cache document, starting empty")
		return
	}

	for k, e := range doc {
		s.entries[k] = e
	}

	observability.CacheEntries.WithLabelValues(Backend).Set(float64(len(s.entries)))
}

// readDocument returns the entries stored on disk. A missing or empty
// document is not an error.
func (s *Store) readDocument() (map[string]entry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read cache document: %w", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var doc map[string]entry
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("malformed cache document: %w", err)
	}

	for k, e := range doc {
		if k == "" || e.Resolved == "" {
			delete(doc, k)
		}
	}

	return doc, nil
}

// Get returns the cached value for key. An expired entry is removed and
// reported as a miss.
func (s *Store) Get(_ context.Context, key string) (string, bool) {
	var (
		value string
		found bool
	)

	err := s.update(func() bool {
		e, ok := s.entries[key]
		if !ok {
			observability.CacheLookups.WithLabelValues(Backend, outcomeMiss).Inc()
			return false
		}

		if s.expiredLocked(e) {
			s.dropLocked(key)
			observability.CacheLookups.WithLabelValues(Backend, outcomeExpired).Inc()
			observability.CacheEvictions.WithLabelValues(Backend, reasonExpired).Inc()

			return true
		}

		observability.CacheLookups.WithLabelValues(Backend, outcomeHit).Inc()

		value, found = e.Resolved, true

		return false
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("failed to persist expired entry removal")
	}

	return value, found
}

// Set stores value under key with the current time, drops the oldest entries
// beyond the capacity, and persists the document.
func (s *Store) Set(_ context.Context, key, value string) error {
	return s.update(func() bool {
		s.seq++
		delete(s.dropped, key)
		s.entries[key] = entry{Resolved: value, CreatedAt: s.now().Unix(), seq: s.seq}
		s.enforceCapacityLocked()

		return true
	})
}

// Purge removes expired entries and enforces the capacity, persisting the
// document when anything was dropped. It returns the number removed.
func (s *Store) Purge(_ context.Context) (int64, error) {
	var removed int

	err := s.update(func() bool {
		removed = s.purgeExpiredLocked() + s.enforceCapacityLocked()
		return removed > 0
	})

	return int64(removed), err
}

// Len returns the number of stored entries, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// Clear drops every entry and removes the document.
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]entry)
	s.dropped = make(map[string]struct{})
	observability.CacheEntries.WithLabelValues(Backend).Set(0)

	if s.lockFile(false) {
		defer s.unlockFile()
	}

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove cache document: %w", err)
	}

	return nil
}

func (s *Store) Stats(_ context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Path: s.path, Entries: len(s.entries), MaxEntries: s.maxEntries, TTL: s.ttl}

	for _, e := range s.entries {
		created := time.Unix(e.CreatedAt, 0)

		if st.Oldest.IsZero() || created.Before(st.Oldest) {
			st.Oldest = created
		}

		if created.After(st.Newest) {
			st.Newest = created
		}
	}

	return st, nil
}

// update runs fn under the lock and persists the document whenever fn
// reports a change, on every return path.
func (s *Store) update(fn func() bool) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false

	defer func() {
		if !changed {
			return
		}

		if flushErr := s.flushLocked(); flushErr != nil && err == nil {
			err = flushErr
		}

		observability.CacheEntries.WithLabelValues(Backend).Set(float64(len(s.entries)))
	}()

	changed = fn()

	return nil
}

func (s *Store) expiredLocked(e entry) bool {
	return s.now().Unix()-e.CreatedAt > int64(s.ttl/time.Second)
}

func (s *Store) purgeExpiredLocked() int {
	removed := 0

	for k, e := range s.entries {
		if s.expiredLocked(e) {
			s.dropLocked(k)
			removed++
		}
	}

	if removed > 0 {
		observability.CacheEvictions.WithLabelValues(Backend, reasonExpired).Add(float64(removed))
	}

	return removed
}

// enforceCapacityLocked drops the oldest entries until at most maxEntries
// remain, regardless of their TTL.
func (s *Store) enforceCapacityLocked() int {
	excess := len(s.entries) - s.maxEntries
	if excess <= 0 {
		return 0
	}

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool {
		a, b := s.entries[keys[i]], s.entries[keys[j]]
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}

		if a.seq != b.seq {
			return a.seq < b.seq
		}

		return keys[i] < keys[j]
	})

	for _, k := range keys[:excess] {
		s.dropLocked(k)
	}

	observability.CacheEvictions.WithLabelValues(Backend, reasonCapacity).Add(float64(excess))

	return excess
}

// flushLocked merges what other processes wrote, then writes the document
// to a temp file next to the target and renames it into place, all under
// the file lock.
func (s *Store) flushLocked() (err error) {
	dir := filepath.Dir(s.path)

	if mkErr := os.MkdirAll(dir, dirPerm); mkErr != nil {
		s.logger.Debug().Err(mkErr).Str("dir", dir).Msg("cannot create cache directory")
	}

	if s.lockFile(false) {
		defer s.unlockFile()
	}

	s.mergeDocumentLocked()

	defer func() {
		if err != nil {
			observability.CacheFlushErrors.WithLabelValues(Backend).Inc()
		}
	}()

	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if encErr := enc.Encode(s.entries); encErr != nil {
		return fmt.Errorf("encode cache document: %w", encErr)
	}

	tmp, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}

	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			_ = os.Remove(tmpName) //nolint:errcheck // cleanup of a failed write
		}
	}()

	if _, err = tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close() //nolint:errcheck // write error takes precedence

		return fmt.Errorf("write temp cache file: %w", err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp cache file: %w", err)
	}

	if err = os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace cache document: %w", err)
	}

	clear(s.dropped)

	return nil
}

func (s *Store) dropLocked(key string) {
	delete(s.entries, key)
	s.dropped[key] = struct{}{}
}

// mergeDocumentLocked adds live entries from the on-disk document that are
// missing here or newer than ours, skipping keys this store removed since its
// last flush, then re-applies the capacity.
func (s *Store) mergeDocumentLocked() {
	doc, err := s.readDocument()
	if err != nil {
		s.logger.Debug().Err(err).Str("path", s.path).Msg("skipping merge of unreadable cache document")
		return
	}

	merged := 0

	for k, e := range doc {
		if _, ok := s.dropped[k]; ok || s.expiredLocked(e) {
			continue
		}

		if cur, ok := s.entries[k]; ok && cur.CreatedAt >= e.CreatedAt {
			continue
		}

		s.entries[k] = e
		merged++
	}

	if merged > 0 {
		s.enforceCapacityLocked()
	}
}

// lockFile takes the cross-process lock, shared when read is set. Locking
// failures are logged and the store carries on with the mutex alone.
func (s *Store) lockFile(read bool) bool {
	lock := s.fileLock.Lock
	if read {
		lock = s.fileLock.RLock
	}

	if err := lock(); err != nil {
		s.logger.Debug().Err(err).Str("path", s.fileLock.Path()).Msg("cannot lock cache document")
		return false
	}

	return true
}

func (s *Store) unlockFile() {
	if err := s.fileLock.Unlock(); err != nil {
		s.logger.Debug().Err(err).Str("path", s.fileLock.Path()).Msg("cannot unlock cache document")
	}
}
