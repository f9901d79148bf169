// Package series groups probed DICOM objects by Series Instance UID, keeping
// each series deduplicated and ordered by slice position at all times.
package series

import (
	"hash/fnv"
	"sort"
	"sync"

	"github.com/mrsinham/dicomsort/internal/dicom"
)

// shardCount must be a power of two.
const shardCount = 32

// Entry is one image of a series and the file it was read from.
type Entry struct {
	Object *dicom.Object
	Path   string
}

// Outcome reports what Ingest did with an object.
type Outcome int

const (
	// Added means the object was inserted into its series.
	Added Outcome = iota
	// Duplicate means another file with the same SOP Instance UID was seen first.
	Duplicate
	// MissingSeries means the object has no Series Instance UID.
	MissingSeries
	// MissingSOP means the object has no SOP Instance UID.
	MissingSOP
)

// String returns the string representation of an Outcome.
func (o Outcome) String() string {
	switch o {
	case Added:
		return "added"
	case Duplicate:
		return "duplicate"
	case MissingSeries:
		return "missing-series"
	case MissingSOP:
		return "missing-sop"
	default:
		return "unknown"
	}
}

// Aggregator is a concurrency-safe series collection. Unrelated series never
// share a lock: the map is split into shards, and each series has its own mutex
// for append-and-order.
type Aggregator struct {
	shards [shardCount]shard
	seen   sync.Map // SOP Instance UID -> struct{}
}

type shard struct {
	mu     sync.RWMutex
	series map[string]*seriesEntry
}

type seriesEntry struct {
	mu      sync.Mutex
	entries []item
}

// item caches the position so ordering never re-parses the dataset.
type item struct {
	entry    Entry
	position float64
	hasPos   bool
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	a := &Aggregator{}
	for i := range a.shards {
		a.shards[i].series = make(map[string]*seriesEntry)
	}
	return a
}

// Ingest adds obj read from path to its series. Objects without a series or
// SOP Instance UID, and objects whose SOP Instance UID was already ingested,
// are dropped. The series stays sorted after every insert.
func (a *Aggregator) Ingest(obj *dicom.Object, path string) Outcome {
	seriesUID, ok := obj.SeriesInstanceUID()
	if !ok {
		return MissingSeries
	}
	sopUID, ok := obj.SOPInstanceUID()
	if !ok {
		return MissingSOP
	}
	if _, loaded := a.seen.LoadOrStore(sopUID, struct{}{}); loaded {
		return Duplicate
	}

	pos, hasPos := obj.Position()
	it := item{entry: Entry{Object: obj, Path: path}, position: pos, hasPos: hasPos}

	s := a.getOrCreate(seriesUID)
	s.mu.Lock()
	s.insert(it)
	s.mu.Unlock()
	return Added
}

// insert places it after every entry that does not sort after it, which keeps
// equal and unpositioned entries in insertion order.
func (s *seriesEntry) insert(it item) {
	i := sort.Search(len(s.entries), func(i int) bool {
		return less(it, s.entries[i])
	})
	s.entries = append(s.entries, item{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = it
}

// less orders unpositioned entries before positioned ones, then by ascending
// position.
func less(a, b item) bool {
	if !a.hasPos || !b.hasPos {
		return !a.hasPos && b.hasPos
	}
	return a.position < b.position
}

func (a *Aggregator) shardFor(seriesUID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(seriesUID)) // hash.Write never returns an error
	return &a.shards[h.Sum32()&(shardCount-1)]
}

func (a *Aggregator) getOrCreate(seriesUID string) *seriesEntry {
	sh := a.shardFor(seriesUID)

	sh.mu.RLock()
	s, ok := sh.series[seriesUID]
	sh.mu.RUnlock()
	if ok {
		return s
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if s, ok = sh.series[seriesUID]; !ok {
		s = &seriesEntry{}
		sh.series[seriesUID] = s
	}
	return s
}

// Get returns a copy of the ordered entries of a series.
func (a *Aggregator) Get(seriesUID string) ([]Entry, bool) {
	sh := a.shardFor(seriesUID)
	sh.mu.RLock()
	s, ok := sh.series[seriesUID]
	sh.mu.RUnlock()
	if !ok {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]Entry, len(s.entries))
	for i, it := range s.entries {
		entries[i] = it.entry
	}
	return entries, true
}

// Snapshot returns the number of images per series. Each series is locked only
// while its length is read.
func (a *Aggregator) Snapshot() map[string]int {
	counts := make(map[string]int)
	a.each(func(id string, s *seriesEntry) {
		s.mu.Lock()
		n := len(s.entries)
		s.mu.Unlock()
		// A series is registered just before its first insert completes.
		if n > 0 {
			counts[id] = n
		}
	})
	return counts
}

// IDs returns every known series UID in lexical order.
func (a *Aggregator) IDs() []string {
	var ids []string
	a.each(func(id string, _ *seriesEntry) {
		ids = append(ids, id)
	})
	sort.Strings(ids)
	return ids
}

// Len returns the number of series.
func (a *Aggregator) Len() int {
	n := 0
	for i := range a.shards {
		sh := &a.shards[i]
		sh.mu.RLock()
		n += len(sh.series)
		sh.mu.RUnlock()
	}
	return n
}

// Reset discards every series and the seen SOP Instance UIDs.
func (a *Aggregator) Reset() {
	for i := range a.shards {
		sh := &a.shards[i]
		sh.mu.Lock()
		sh.series = make(map[string]*seriesEntry)
		sh.mu.Unlock()
	}
	a.seen.Range(func(key, _ any) bool {
		a.seen.Delete(key)
		return true
	})
}

// each calls fn for every series without holding a shard lock during fn.
func (a *Aggregator) each(fn func(id string, s *seriesEntry)) {
	for i := range a.shards {
		sh := &a.shards[i]
		sh.mu.RLock()
		ids := make([]string, 0, len(sh.series))
		entries := make([]*seriesEntry, 0, len(sh.series))
		for id, s := range sh.series {
			ids = append(ids, id)
			entries = append(entries, s)
		}
		sh.mu.RUnlock()

		for j, id := range ids {
			fn(id, entries[j])
		}
	}
}
