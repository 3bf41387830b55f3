// Package store provides the in-memory keyspace with per-key expiration.
//
// Entries are copy-on-write: every mutation publishes a new *Entry through
// xsync's MapOf.Compute, so readers never observe a half-updated entry and
// read-modify-write operations on a single key are atomic.
package store

import (
	"errors"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/flashdb/flashkv/internal/value"
)

var (
	// ErrNotFound is returned when a key is absent or expired.
	ErrNotFound = errors.New("store: key not found")
	// ErrWrongType is returned when a key holds a value of another type, or
	// when an arithmetic operation finds content it cannot parse.
	ErrWrongType = errors.New("store: wrong type")
	// ErrOverflow is returned when an arithmetic result is not representable.
	ErrOverflow = errors.New("store: overflow")
)

// Type identifies the kind of value bound to a key.
type Type uint8

const (
	TypeString Type = iota
	TypeList
	TypeHash
	TypeSet
	TypeZSet
)

// String returns the name reported by the TYPE command.
func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeList:
		return "list"
	case TypeHash:
		return "hash"
	case TypeSet:
		return "set"
	case TypeZSet:
		return "zset"
	default:
		return "none"
	}
}

// Entry is the value bound to a key. Entries are never modified after they
// are stored.
type Entry struct {
	Type      Type
	Str       value.String
	Data      any // payload for non-string types
	ExpireAt  int64
	HasExpire bool
}

// Store is an in-memory keyspace. It is safe for concurrent use by multiple
// goroutines.
type Store struct {
	data     *xsync.MapOf[string, *Entry]
	now      func() time.Time
	logger   hclog.Logger
	interval time.Duration
	expired  atomic.Int64

	stopGC    chan struct{}
	closeOnce sync.Once
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used by the expiration sweep.
func WithLogger(l hclog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithExpireInterval sets how often expired keys are swept. Zero disables
// the background sweep; expired keys are then only removed on access.
func WithExpireInterval(d time.Duration) Option {
	return func(s *Store) { s.interval = d }
}

// New creates an empty Store and starts the background expiration goroutine.
func New(opts ...Option) *Store {
	s := &Store{
		data:     xsync.NewMapOf[string, *Entry](),
		now:      time.Now,
		logger:   hclog.NewNullLogger(),
		interval: 100 * time.Millisecond,
		stopGC:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval > 0 {
		go s.gcLoop()
	}
	return s
}

// Close stops the background expiration goroutine.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.stopGC) })
}

func (s *Store) nowMillis() int64 {
	return s.now().UnixMilli()
}

func (s *Store) gcLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			if n := s.removeExpired(); n > 0 {
				s.logger.Debug("removed expired keys", "count", n)
			}
		}
	}
}

// removeExpired sweeps the keyspace once and deletes every expired entry.
// The map is not locked during the sweep.
func (s *Store) removeExpired() int {
	now := s.nowMillis()
	var keys []string
	s.data.Range(func(key string, e *Entry) bool {
		if e.expiredAt(now) {
			keys = append(keys, key)
		}
		return true
	})

	removed := 0
	for _, key := range keys {
		if s.deleteIfExpired(key, now) {
			removed++
		}
	}
	return removed
}

func (e *Entry) expiredAt(now int64) bool {
	return e.HasExpire && now >= e.ExpireAt
}

// deleteIfExpired removes key only if the entry found under the map's lock
// is still expired, so a concurrent write that replaced it survives.
func (s *Store) deleteIfExpired(key string, now int64) bool {
	deleted := false
	s.data.Compute(key, func(old *Entry, loaded bool) (*Entry, bool) {
		if loaded && old.expiredAt(now) {
			deleted = true
			return nil, true
		}
		return old, !loaded
	})
	if deleted {
		s.expired.Add(1)
	}
	return deleted
}

// load returns the live entry for key, removing it if it has expired.
func (s *Store) load(key string) (*Entry, bool) {
	e, ok := s.data.Load(key)
	if !ok {
		return nil, false
	}
	if now := s.nowMillis(); e.expiredAt(now) {
		s.deleteIfExpired(key, now)
		return nil, false
	}
	return e, true
}

// compute runs fn against the live entry for key under the map's per-key
// lock. fn receives nil when the key is absent or expired. It returns the
// entry to publish, or nil to leave an absent key absent or delete a live one.
// Returning the entry it was given leaves the key untouched.
func (s *Store) compute(key string, fn func(cur *Entry) *Entry) {
	now := s.nowMillis()
	s.data.Compute(key, func(old *Entry, loaded bool) (*Entry, bool) {
		cur := old
		if loaded && old.expiredAt(now) {
			cur = nil
			s.expired.Add(1)
		}
		next := fn(cur)
		if next == nil {
			return nil, true
		}
		return next, false
	})
}

// GetString returns the string value bound to key. It fails with ErrNotFound
// when the key is absent and ErrWrongType when it holds another type.
func (s *Store) GetString(key string) (value.String, error) {
	e, ok := s.load(key)
	if !ok {
		return value.String{}, ErrNotFound
	}
	if e.Type != TypeString {
		return value.String{}, ErrWrongType
	}
	return e.Str, nil
}

// Exists reports whether key holds a live value of any type.
func (s *Store) Exists(key string) bool {
	_, ok := s.load(key)
	return ok
}

// TypeOf returns the type of the value bound to key.
func (s *Store) TypeOf(key string) (Type, bool) {
	e, ok := s.load(key)
	if !ok {
		return 0, false
	}
	return e.Type, true
}

// SetString binds v to key, replacing any value of any type. An existing
// expiration is kept.
func (s *Store) SetString(key string, v value.String) {
	s.compute(key, func(cur *Entry) *Entry {
		next := &Entry{Type: TypeString, Str: v}
		if cur != nil {
			next.ExpireAt, next.HasExpire = cur.ExpireAt, cur.HasExpire
		}
		return next
	})
}

// SetObject binds a non-string payload to key. Other command families use
// it; the string commands only ever observe such keys as ErrWrongType.
func (s *Store) SetObject(key string, t Type, data any) {
	s.compute(key, func(cur *Entry) *Entry {
		next := &Entry{Type: t, Data: data}
		if t == TypeString {
			if str, ok := data.(value.String); ok {
				next.Str = str
			}
		}
		if cur != nil {
			next.ExpireAt, next.HasExpire = cur.ExpireAt, cur.HasExpire
		}
		return next
	})
}

// ClearExpire removes the expiration of key. It reports whether one was set.
func (s *Store) ClearExpire(key string) bool {
	cleared := false
	s.compute(key, func(cur *Entry) *Entry {
		if cur == nil || !cur.HasExpire {
			return cur
		}
		cleared = true
		next := *cur
		next.ExpireAt, next.HasExpire = 0, false
		return &next
	})
	return cleared
}

// SetExpire sets the absolute expiration of key in Unix milliseconds. It
// reports false when the key does not exist.
func (s *Store) SetExpire(key string, atMillis int64) bool {
	found := false
	s.compute(key, func(cur *Entry) *Entry {
		if cur == nil {
			return nil
		}
		found = true
		next := *cur
		next.ExpireAt, next.HasExpire = atMillis, true
		return &next
	})
	return found
}

// IncrBy atomically adds delta to the integer held by key and returns the
// result. The expiration is kept.
func (s *Store) IncrBy(key string, delta int64) (int64, error) {
	return s.addInt(key, func(cur int64) (int64, bool) {
		return addInt64(cur, delta)
	})
}

// DecrBy atomically subtracts delta from the integer held by key.
func (s *Store) DecrBy(key string, delta int64) (int64, error) {
	return s.addInt(key, func(cur int64) (int64, bool) {
		return subInt64(cur, delta)
	})
}

func (s *Store) addInt(key string, op func(int64) (int64, bool)) (int64, error) {
	var (
		result int64
		err    error
	)
	s.compute(key, func(cur *Entry) *Entry {
		if cur == nil {
			err = ErrNotFound
			return nil
		}
		if cur.Type != TypeString {
			err = ErrWrongType
			return cur
		}
		n, ok := cur.Str.ParseInt()
		if !ok {
			err = ErrWrongType
			return cur
		}
		if result, ok = op(n); !ok {
			err = ErrOverflow
			return cur
		}
		next := *cur
		next.Str = value.FromInt(result)
		return &next
	})
	return result, err
}

// IncrByFloat atomically adds delta to the number held by key and returns the
// new value in its stored text form.
func (s *Store) IncrByFloat(key string, delta float64) (string, error) {
	var (
		text string
		err  error
	)
	s.compute(key, func(cur *Entry) *Entry {
		if cur == nil {
			err = ErrNotFound
			return nil
		}
		if cur.Type != TypeString {
			err = ErrWrongType
			return cur
		}
		f, perr := strconv.ParseFloat(string(cur.Str.Bytes()), 64)
		if perr != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			err = ErrWrongType
			return cur
		}
		sum := f + delta
		if math.IsNaN(sum) || math.IsInf(sum, 0) {
			err = ErrOverflow
			return cur
		}
		text = strconv.FormatFloat(sum, 'f', -1, 64)
		next := *cur
		next.Str = value.New([]byte(text))
		return &next
	})
	return text, err
}

// Delete removes keys and returns how many existed.
func (s *Store) Delete(keys ...string) int {
	n := 0
	for _, key := range keys {
		s.compute(key, func(cur *Entry) *Entry {
			if cur != nil {
				n++
			}
			return nil
		})
	}
	return n
}

// PTTL returns the remaining lifetime of key in milliseconds, -1 when it has
// no expiration and -2 when it does not exist.
func (s *Store) PTTL(key string) int64 {
	e, ok := s.load(key)
	if !ok {
		return -2
	}
	if !e.HasExpire {
		return -1
	}
	remaining := e.ExpireAt - s.nowMillis()
	if remaining < 0 {
		return -2
	}
	return remaining
}

// Keys returns all live keys.
func (s *Store) Keys() []string {
	now := s.nowMillis()
	keys := make([]string, 0, s.data.Size())
	s.data.Range(func(key string, e *Entry) bool {
		if !e.expiredAt(now) {
			keys = append(keys, key)
		}
		return true
	})
	return keys
}

// Size returns the number of live keys.
func (s *Store) Size() int {
	now := s.nowMillis()
	n := 0
	s.data.Range(func(_ string, e *Entry) bool {
		if !e.expiredAt(now) {
			n++
		}
		return true
	})
	return n
}

// Clear removes all keys.
func (s *Store) Clear() {
	s.data.Clear()
}

// ExpiredKeys returns how many keys have been removed because they expired.
func (s *Store) ExpiredKeys() int64 {
	return s.expired.Load()
}

func addInt64(a, b int64) (int64, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}

func subInt64(a, b int64) (int64, bool) {
	if (b < 0 && a > math.MaxInt64+b) || (b > 0 && a < math.MinInt64+b) {
		return 0, false
	}
	return a - b, true
}
