package ledger

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	rqlitehttp "github.com/rqlite/rqlite-go-http"

	"github.com/a-h/kv"
	"github.com/a-h/kv/postgreskv"
	"github.com/a-h/kv/rqlitekv"
	"github.com/a-h/kv/sqlitekv"
	"github.com/jackc/pgx/v5/pgxpool"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// NewStore opens the durable key-value store backing the Operation Ledger,
// selectable at runtime between sqlite, rqlite and postgres per spec.md
// §6's "compact embedded SQL store is sufficient" clause. Callers pass the
// returned store to New; closer must be called on shutdown.
func NewStore(ctx context.Context, dbType, dsn string) (store kv.Store, closer func() error, err error) {
	switch dbType {
	case "sqlite":
		store, closer, err = newSqliteStore(dsn)
	case "rqlite":
		store, closer, err = newRqliteStore(dsn)
	case "postgres":
		store, closer, err = newPostgresStore(dsn)
	default:
		return nil, nil, fmt.Errorf("ledger: unsupported store type %q (want sqlite, rqlite or postgres)", dbType)
	}
	if err != nil {
		return nil, nil, err
	}
	if err = store.Init(ctx); err != nil {
		_ = closer()
		return nil, nil, err
	}
	return store, closer, nil
}

// newSqliteStore opens a WAL-capable sqlite pool. WAL is opt-in via the
// `_journal_mode=wal` DSN query param — it doesn't play well with some
// container volume drivers, so the default stays off.
func newSqliteStore(dsn string) (store kv.Store, closer func() error, err error) {
	dsnURI, err := url.Parse(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("ledger: parsing sqlite dsn: %w", err)
	}
	opts := sqlitex.PoolOptions{
		Flags: sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenURI,
	}
	if strings.EqualFold(dsnURI.Query().Get("_journal_mode"), "wal") {
		opts.Flags |= sqlite.OpenWAL
	}
	pool, err := sqlitex.NewPool(dsn, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("ledger: opening sqlite pool: %w", err)
	}
	return sqlitekv.NewStore(pool), pool.Close, nil
}

func newRqliteStore(dsn string) (store kv.Store, closer func() error, err error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("ledger: parsing rqlite dsn: %w", err)
	}
	client := rqlitehttp.NewClient(dsn, nil)
	if u.User != nil {
		pwd, _ := u.User.Password()
		client.SetBasicAuth(u.User.Username(), pwd)
	}
	return rqlitekv.NewStore(client), func() error { return nil }, nil
}

func newPostgresStore(dsn string) (store kv.Store, closer func() error, err error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("ledger: connecting to postgres: %w", err)
	}
	return postgreskv.NewStore(pool), func() error { pool.Close(); return nil }, nil
}
