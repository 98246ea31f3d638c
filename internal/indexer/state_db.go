package indexer

import "context"

// StateRepository stores named cursor values.
type StateRepository interface {
	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, block uint64) error
}

// DBCursorStore stores the cursor in the watcher_state table.
type DBCursorStore struct {
	Store StateRepository
	Name  string
}

func (s *DBCursorStore) Load(ctx context.Context) (uint64, bool, error) {
	if s == nil || s.Store == nil {
		return 0, false, nil
	}
	return s.Store.LoadState(ctx, s.Name)
}

func (s *DBCursorStore) Save(ctx context.Context, lastProcessed uint64) error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.SaveState(ctx, s.Name, lastProcessed)
}
