package keva

import "context"

// ComputeReadWrite is RunReadWrite returning a caller-supplied value. Like the
// unit of work it wraps, fn may be invoked more than once; the value of the
// final, committed run is returned.
func ComputeReadWrite[T any](ctx context.Context, e *Environment, fn func(*Transaction) (T, error)) (T, error) {
	var out T
	err := e.RunReadWrite(ctx, func(txn *Transaction) error {
		v, err := fn(txn)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// ComputeReadOnly is RunReadOnly returning a caller-supplied value.
func ComputeReadOnly[T any](ctx context.Context, e *Environment, fn func(*Transaction) (T, error)) (T, error) {
	var out T
	err := e.RunReadOnly(ctx, func(txn *Transaction) error {
		v, err := fn(txn)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// ComputeExclusive is RunExclusive returning a caller-supplied value.
func ComputeExclusive[T any](ctx context.Context, e *Environment, fn func(*Transaction) (T, error)) (T, error) {
	var out T
	err := e.RunExclusive(ctx, func(txn *Transaction) error {
		v, err := fn(txn)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
