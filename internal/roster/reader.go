package roster

import (
	"context"
	"errors"

	"github.com/roach88/rosterbridge/internal/model"
)

// ErrInvalidRoster marks a roster that was read but cannot be used as a
// snapshot. Fetching it again returns the same data, so it is not retried.
var ErrInvalidRoster = errors.New("invalid roster")

// Reader fetches the current roster. Implementations must return every
// employee currently on the roster, in source order.
type Reader interface {
	FetchRoster(ctx context.Context) ([]model.Employee, error)
}

// StaticReader serves a fixed roster. Used by the scenario harness and tests.
type StaticReader struct {
	Employees []model.Employee
	Err       error
}

// FetchRoster returns a copy of the configured roster or the configured error.
func (r *StaticReader) FetchRoster(ctx context.Context) ([]model.Employee, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.Err != nil {
		return nil, r.Err
	}
	out := make([]model.Employee, len(r.Employees))
	copy(out, r.Employees)
	return out, nil
}
