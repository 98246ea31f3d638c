package storage

import (
	"context"
	"errors"

	"mintWatch/internal/model"
)

// Storage defines a sink for detected mints.
type Storage interface {
	PutMintBatch(ctx context.Context, records []model.MintRecord) error
}

// Multi writes every batch to all sinks and joins their errors.
type Multi []Storage

// PutMintBatch forwards records to each sink. A failing sink does not stop the others.
func (m Multi) PutMintBatch(ctx context.Context, records []model.MintRecord) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.PutMintBatch(ctx, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
