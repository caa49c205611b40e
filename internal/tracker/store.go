// Package tracker persists the set of person identifiers already delivered
// downstream so repeated runs only send new leads.
package tracker

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// Status summarizes the persisted state.
type Status struct {
	Count       int       `json:"count"`
	LastUpdated time.Time `json:"last_updated"`
}

// Store loads and saves the sent-leads state. Load returns an empty set when
// nothing has been persisted yet. Save writes the union of previous and
// newIDs as the complete new state, stamped with the current time.
type Store interface {
	Load(ctx context.Context) (IDSet, error)
	Save(ctx context.Context, previous, newIDs IDSet) error
	Status(ctx context.Context) (*Status, error)
	Close() error
}

// Options selects and configures a Store backend.
type Options struct {
	Driver      string
	Path        string
	DatabaseURL string
}

// Open returns the Store for opts.Driver ("json", "sqlite" or "postgres").
// Database backends are migrated before being returned.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", "json":
		return NewJSONStore(opts.Path), nil
	case "sqlite":
		st, err := NewSQLite(opts.Path)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close() //nolint:errcheck
			return nil, err
		}
		return st, nil
	case "postgres":
		st, err := NewPostgres(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close() //nolint:errcheck
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("tracker: unknown driver %q", opts.Driver)
	}
}

// now is swapped in tests.
var now = func() time.Time { return time.Now().UTC() }
