package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/embucket/embucket/internal/apperror"
	"github.com/embucket/embucket/internal/objectstore"
	"github.com/rs/zerolog/log"
)

// record is the JSON-encoded unit appended to a segment: a single
// mutation (put or tombstone) for one key.
type record struct {
	Key       string `json:"key"`
	Value     []byte `json:"value,omitempty"`
	Tombstone bool   `json:"tombstone,omitempty"`
}

// LogStore is a minimal log-structured Store: every mutation is appended
// as a JSON record to the current segment object in the backing object
// store; an in-memory index (key -> latest value) is rebuilt by
// replaying all segments at Open time and kept current thereafter.
// Segments roll over once they exceed segmentRollBytes so recovery
// doesn't need to replay a single unbounded object.
//
// This is a deliberately small stand-in for a full LSM/SlateDB engine:
// spec §4.1 only pins the Store contract (get/put/delete/scan), not an
// implementation strategy, so this is the simplest design that gives
// the metastore crash-durable, ordered, object-storage-backed state.
type LogStore struct {
	client objectstore.Client
	root   string // key prefix under which segments live, e.g. "_log/"

	mu    sync.RWMutex
	index map[string][]byte

	segmentSeq     int64
	segmentBuf     bytes.Buffer
	segmentRollSeq int64
}

const segmentRollBytes = 4 << 20 // 4MiB per segment before rolling

// OpenLogStore replays every segment object under root (in segment
// order) to rebuild the in-memory index, then returns a LogStore ready
// to accept new mutations.
func OpenLogStore(ctx context.Context, client objectstore.Client, root string) (*LogStore, error) {
	s := &LogStore{
		client: client,
		root:   root,
		index:  make(map[string][]byte),
	}
	if err := s.replay(ctx); err != nil {
		return nil, apperror.New("kv.OpenLogStore", apperror.KindObjectStore, err)
	}
	return s, nil
}

func (s *LogStore) segmentKey(seq int64) string {
	return fmt.Sprintf("%s/segment-%012d.log", s.root, seq)
}

func (s *LogStore) replay(ctx context.Context) error {
	objs, err := s.client.List(ctx, s.root)
	if err != nil {
		return err
	}
	for _, obj := range objs {
		data, err := s.client.Get(ctx, obj)
		if err != nil {
			return fmt.Errorf("replaying segment %s: %w", obj, err)
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		for dec.More() {
			var rec record
			if err := dec.Decode(&rec); err != nil {
				return fmt.Errorf("decoding segment %s: %w", obj, err)
			}
			if rec.Tombstone {
				delete(s.index, rec.Key)
			} else {
				s.index[rec.Key] = rec.Value
			}
		}
		s.segmentSeq++
	}
	return nil
}

func (s *LogStore) appendRecord(ctx context.Context, rec record) error {
	buf, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling kv record: %w", err)
	}
	buf = append(buf, '\n')

	key := s.segmentKey(s.segmentSeq)
	if err := s.client.Append(ctx, key, buf); err != nil {
		return err
	}
	s.segmentRollSeq += int64(len(buf))
	if s.segmentRollSeq >= segmentRollBytes {
		s.segmentSeq++
		s.segmentRollSeq = 0
	}
	return nil
}

func (s *LogStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.index[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (s *LogStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.appendRecord(ctx, record{Key: key, Value: value}); err != nil {
		return apperror.New("kv.Put", apperror.KindObjectStore, err)
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	s.index[key] = cp
	return nil
}

func (s *LogStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[key]; !ok {
		return nil // idempotent
	}
	if err := s.appendRecord(ctx, record{Key: key, Tombstone: true}); err != nil {
		return apperror.New("kv.Delete", apperror.KindObjectStore, err)
	}
	delete(s.index, key)
	return nil
}

func (s *LogStore) Scan(_ context.Context, r KeyRange) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.index))
	for k, v := range s.index {
		if !r.matches(k) {
			continue
		}
		cp := make([]byte, len(v))
		copy(cp, v)
		out = append(out, Entry{Key: k, Value: cp})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

var _ Store = (*LogStore)(nil)

// compactionsRun is exposed for tests/metrics; it is not part of the
// Store contract.
var compactionsRun int64

// Compact rewrites the whole live index into a single fresh segment and
// drops every prior segment object, bounding replay cost. It is safe to
// call concurrently with reads but serializes with writers.
func (s *LogStore) Compact(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldObjs, err := s.client.List(ctx, s.root)
	if err != nil {
		return err
	}

	newSeq := s.segmentSeq + 1
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for k, v := range s.index {
		if err := enc.Encode(record{Key: k, Value: v}); err != nil {
			return err
		}
	}
	newKey := fmt.Sprintf("%s/segment-%012d.log", s.root, newSeq)
	if err := s.client.Put(ctx, newKey, buf.Bytes()); err != nil {
		return err
	}

	for _, obj := range oldObjs {
		if obj == newKey {
			continue
		}
		if err := s.client.Delete(ctx, obj); err != nil {
			log.Warn().Err(err).Str("object", obj).Msg("kv compaction: failed to remove stale segment")
		}
	}

	s.segmentSeq = newSeq + 1
	s.segmentRollSeq = 0
	atomic.AddInt64(&compactionsRun, 1)
	return nil
}
