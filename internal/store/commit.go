package store

import "fmt"

// CommitBatch inserts all buffered data from a BatchedStore into SQLite
// within a single transaction. Fake (negative) IDs are remapped to real
// IDs, and the type_id/task_id references within the batch are rewritten
// using the fakeToReal mapping.
//
// Insert order respects FK dependencies:
//  1. Types
//  2. Fields (depend on type_id)
//  3. Tasks
//  4. Parameters (depend on task_id)
//  5. Literals
func (s *Store) CommitBatch(batch *BatchedStore) error {
	batch.mu.Lock()
	defer batch.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	fakeToReal := make(map[int64]int64)
	remap := func(id int64) (int64, bool) {
		if id >= 0 {
			return id, true
		}
		rid, ok := fakeToReal[id]
		return rid, ok
	}

	// 1. Types
	for _, t := range batch.Types {
		fakeID := t.ID
		realID, err := replaceTypeTx(tx, &t)
		if err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
		fakeToReal[fakeID] = realID
	}

	// 2. Fields
	for _, f := range batch.Fields {
		typeID, ok := remap(f.TypeID)
		if !ok {
			return fmt.Errorf("commit batch: field %q has type_id=%d not in fakeToReal map (have %d types)", f.Name, f.TypeID, len(batch.Types))
		}
		f.TypeID = typeID
		if _, err := insertFieldTx(tx, &f); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
	}

	// 3. Tasks
	for _, t := range batch.Tasks {
		fakeID := t.ID
		realID, err := replaceTaskTx(tx, &t)
		if err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
		fakeToReal[fakeID] = realID
	}

	// 4. Parameters
	for _, p := range batch.Parameters {
		taskID, ok := remap(p.TaskID)
		if !ok {
			return fmt.Errorf("commit batch: parameter %q has task_id=%d not in fakeToReal map (have %d tasks)", p.Name, p.TaskID, len(batch.Tasks))
		}
		p.TaskID = taskID
		if _, err := insertParameterTx(tx, &p); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
	}

	// 5. Literals
	for _, l := range batch.Literals {
		if _, err := insertLiteralTx(tx, &l); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: commit: %w", err)
	}
	s.touch()
	return nil
}
