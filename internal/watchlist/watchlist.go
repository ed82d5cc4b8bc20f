// Package watchlist holds the set of monitored Telegram entities.
//
// The live WatchList is published through an atomic pointer so the push and
// poll paths can read it lock-free while the command interpreter replaces it
// wholesale. Persistence goes through a narrow Backend interface that stores
// the list as a single JSON blob.
package watchlist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// WatchList is an immutable snapshot of the monitored entities. Mutations
// produce a fresh copy; the live instance is never modified in place.
type WatchList struct {
	Users    map[int64]struct{}
	Channels map[int64]struct{}
	Groups   map[int64]struct{}
	// Handles holds public @handles (lowercase, no "@") of watched channels
	// and groups whose numeric id is not known to the operator.
	Handles map[string]struct{}
}

// New returns an empty WatchList.
func New() *WatchList {
	return &WatchList{
		Users:    make(map[int64]struct{}),
		Channels: make(map[int64]struct{}),
		Groups:   make(map[int64]struct{}),
		Handles:  make(map[string]struct{}),
	}
}

// Clone returns a deep copy suitable for read-copy-update mutation.
func (w *WatchList) Clone() *WatchList {
	c := New()
	for id := range w.Users {
		c.Users[id] = struct{}{}
	}
	for id := range w.Channels {
		c.Channels[id] = struct{}{}
	}
	for id := range w.Groups {
		c.Groups[id] = struct{}{}
	}
	for h := range w.Handles {
		c.Handles[h] = struct{}{}
	}
	return c
}

// HasUser reports whether the user id is watched.
func (w *WatchList) HasUser(id int64) bool {
	_, ok := w.Users[id]
	return ok
}

// HasSource reports whether the chat id is watched as a channel or group.
func (w *WatchList) HasSource(id int64) bool {
	if _, ok := w.Channels[id]; ok {
		return true
	}
	_, ok := w.Groups[id]
	return ok
}

// HasHandle reports whether the @handle (without "@") is watched.
func (w *WatchList) HasHandle(handle string) bool {
	if handle == "" {
		return false
	}
	_, ok := w.Handles[strings.ToLower(handle)]
	return ok
}

// Sources returns all watched channel and group ids, sorted for stable
// iteration order in the poll scheduler.
func (w *WatchList) Sources() []int64 {
	ids := make([]int64, 0, len(w.Channels)+len(w.Groups))
	for id := range w.Channels {
		ids = append(ids, id)
	}
	for id := range w.Groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// blob is the persisted JSON shape of a WatchList.
type blob struct {
	Users    []int64  `json:"users"`
	Channels []int64  `json:"channels"`
	Groups   []int64  `json:"groups"`
	Handles  []string `json:"handles,omitempty"`
}

// Marshal serializes the WatchList to its persisted JSON blob form.
func (w *WatchList) Marshal() (string, error) {
	b := blob{
		Users:    sortedIDs(w.Users),
		Channels: sortedIDs(w.Channels),
		Groups:   sortedIDs(w.Groups),
		Handles:  sortedHandles(w.Handles),
	}
	data, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("failed to marshal watchlist: %w", err)
	}
	return string(data), nil
}

// Unmarshal parses a persisted JSON blob into a WatchList. Duplicate entries
// collapse naturally through the set representation.
func Unmarshal(data string) (*WatchList, error) {
	var b blob
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return nil, fmt.Errorf("failed to unmarshal watchlist: %w", err)
	}
	w := New()
	for _, id := range b.Users {
		w.Users[id] = struct{}{}
	}
	for _, id := range b.Channels {
		w.Channels[id] = struct{}{}
	}
	for _, id := range b.Groups {
		w.Groups[id] = struct{}{}
	}
	for _, h := range b.Handles {
		h = strings.ToLower(strings.TrimPrefix(h, "@"))
		if h != "" {
			w.Handles[h] = struct{}{}
		}
	}
	return w, nil
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedHandles(set map[string]struct{}) []string {
	hs := make([]string, 0, len(set))
	for h := range set {
		hs = append(hs, h)
	}
	sort.Strings(hs)
	return hs
}

// Backend persists the serialized WatchList blob on a control surface
// independent of the messaging transport.
type Backend interface {
	// Load returns the stored blob, or empty string when nothing is stored.
	Load(ctx context.Context) (string, error)
	// Save replaces the stored blob.
	Save(ctx context.Context, data string) error
}

// Store publishes the live WatchList and persists replacements. Reads are
// lock-free; the writer mutex serializes read-modify-write sequences in the
// command interpreter.
type Store struct {
	current atomic.Pointer[WatchList]
	backend Backend

	// writeMu serializes mutations; readers never take it.
	writeMu sync.Mutex
}

// NewStore creates a Store over the given backend with an empty live list.
func NewStore(backend Backend) *Store {
	s := &Store{backend: backend}
	s.current.Store(New())
	return s
}

// Current returns the live WatchList snapshot. Callers must treat it as
// read-only.
func (s *Store) Current() *WatchList {
	return s.current.Load()
}

// Load reads the persisted blob and swaps it in as the live list. An empty
// blob leaves the current (possibly config-seeded) list untouched and reports
// loaded=false so the caller can seed and persist an initial list.
func (s *Store) Load(ctx context.Context) (loaded bool, err error) {
	data, err := s.backend.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load watchlist: %w", err)
	}
	if data == "" {
		slog.Debug("Watchlist store empty, keeping current list")
		return false, nil
	}
	w, err := Unmarshal(data)
	if err != nil {
		return false, err
	}
	s.current.Store(w)
	slog.Info("Watchlist loaded",
		"users", len(w.Users), "channels", len(w.Channels), "groups", len(w.Groups), "handles", len(w.Handles))
	return true, nil
}

// Replace swaps in a fully-built replacement list and persists it. The swap
// is atomic at the pointer level, so concurrent readers observe either the
// old or the new list, never a partial one.
func (s *Store) Replace(ctx context.Context, w *WatchList) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.replaceLocked(ctx, w)
}

// Mutate runs fn against a deep copy of the live list under the writer lock.
// When fn reports a change, the copy is persisted and swapped in. Returns
// whether a change occurred.
func (s *Store) Mutate(ctx context.Context, fn func(*WatchList) bool) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := s.current.Load().Clone()
	if !fn(next) {
		return false, nil
	}
	if err := s.replaceLocked(ctx, next); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) replaceLocked(ctx context.Context, w *WatchList) error {
	data, err := w.Marshal()
	if err != nil {
		return err
	}
	if err := s.backend.Save(ctx, data); err != nil {
		return fmt.Errorf("failed to persist watchlist: %w", err)
	}
	s.current.Store(w)
	slog.Debug("Watchlist replaced",
		"users", len(w.Users), "channels", len(w.Channels), "groups", len(w.Groups))
	return nil
}
