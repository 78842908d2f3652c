package repository

import (
	"context"
	"fmt"

	"content-with-coffee/backend/internal/db"
)

// Store drivers accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Store is an opened Repository plus the teardown for its underlying connection.
type Store struct {
	Repository
	close func(context.Context) error
}

// Close releases the store connection.
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// Open connects to the store named by driver and returns a ready Repository. For MongoDB,
// mongoDatabase selects the database and the unique email index is ensured before returning.
func Open(ctx context.Context, driver, dsn, mongoDatabase string) (*Store, error) {
	switch driver {
	case DriverPostgres:
		pool, err := db.OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return &Store{
			Repository: NewPostgresRepository(pool),
			close: func(context.Context) error {
				pool.Close()
				return nil
			},
		}, nil
	case DriverMongo:
		client, err := db.ConnectMongo(ctx, dsn)
		if err != nil {
			return nil, err
		}
		repo := NewMongoRepository(client.Database(mongoDatabase))
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		return &Store{Repository: repo, close: client.Disconnect}, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
}
