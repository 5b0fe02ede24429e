package store

import "sync"

// BatchedStore buffers catalog inserts in memory using fake (negative) IDs.
// It implements DataStore so scripts can write to it without knowing whether
// they're hitting SQLite or an in-memory buffer.
//
// Thread safety: the mutex protects fake ID allocation and slice appends.
// Lookups consult the buffer first, then pass through to the underlying
// Store, which is safe for concurrent reads.
type BatchedStore struct {
	store *Store
	mu    sync.Mutex

	Types      []Type
	Fields     []Field
	Tasks      []Task
	Parameters []Parameter
	Literals   []Literal

	nextFakeID int64 // starts at -1, decrements
}

// Compile-time check: *BatchedStore satisfies DataStore.
var _ DataStore = (*BatchedStore)(nil)

// NewBatchedStore creates a BatchedStore backed by the given Store for lookups.
func NewBatchedStore(s *Store) *BatchedStore {
	return &BatchedStore{
		store:      s,
		nextFakeID: -1,
	}
}

func (b *BatchedStore) allocFakeID() int64 {
	id := b.nextFakeID
	b.nextFakeID--
	return id
}

// Empty reports whether nothing has been buffered.
func (b *BatchedStore) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Types)+len(b.Fields)+len(b.Tasks)+len(b.Parameters)+len(b.Literals) == 0
}

func (b *BatchedStore) InsertType(t *Type) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t.ID = b.allocFakeID()
	b.Types = append(b.Types, *t)
	return t.ID, nil
}

func (b *BatchedStore) InsertField(f *Field) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f.ID = b.allocFakeID()
	b.Fields = append(b.Fields, *f)
	return f.ID, nil
}

func (b *BatchedStore) InsertTask(t *Task) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t.ID = b.allocFakeID()
	b.Tasks = append(b.Tasks, *t)
	return t.ID, nil
}

func (b *BatchedStore) InsertParameter(p *Parameter) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p.ID = b.allocFakeID()
	b.Parameters = append(b.Parameters, *p)
	return p.ID, nil
}

func (b *BatchedStore) InsertLiteral(l *Literal) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	l.ID = b.allocFakeID()
	b.Literals = append(b.Literals, *l)
	return l.ID, nil
}

// TypeByName returns the most recently buffered type called name, falling
// back to the database.
func (b *BatchedStore) TypeByName(name string) (*Type, error) {
	b.mu.Lock()
	for i := len(b.Types) - 1; i >= 0; i-- {
		if b.Types[i].Name == name {
			t := b.Types[i]
			b.mu.Unlock()
			return &t, nil
		}
	}
	b.mu.Unlock()
	return b.store.TypeByName(name)
}

// TaskByName returns the most recently buffered task called name, falling
// back to the database.
func (b *BatchedStore) TaskByName(name string) (*Task, error) {
	b.mu.Lock()
	for i := len(b.Tasks) - 1; i >= 0; i-- {
		if b.Tasks[i].Name == name {
			t := b.Tasks[i]
			b.mu.Unlock()
			return &t, nil
		}
	}
	b.mu.Unlock()
	return b.store.TaskByName(name)
}
