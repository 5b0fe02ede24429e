package store

// DataStore is the interface for catalog writes made by scripts. Both Store
// (direct SQLite) and BatchedStore (in-memory buffering for parallel scans)
// implement this interface.
type DataStore interface {
	// Catalog inserts, each returns the assigned ID.
	InsertType(t *Type) (int64, error)
	InsertField(f *Field) (int64, error)
	InsertTask(t *Task) (int64, error)
	InsertParameter(p *Parameter) (int64, error)
	InsertLiteral(l *Literal) (int64, error)

	// Lookups needed by scripts that extend entries declared elsewhere.
	TypeByName(name string) (*Type, error)
	TaskByName(name string) (*Task, error)
}

// Compile-time check: *Store satisfies DataStore.
var _ DataStore = (*Store)(nil)
