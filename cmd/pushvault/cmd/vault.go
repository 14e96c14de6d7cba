package cmd

import (
	"fmt"

	"github.com/wesm/pushvault/internal/groupcache"
	"github.com/wesm/pushvault/internal/messages"
	"github.com/wesm/pushvault/internal/query"
	"github.com/wesm/pushvault/internal/store"
)

// vault bundles the handles every command needs. Close releases them.
type vault struct {
	store  *store.Store
	engine *query.SQLiteEngine
	cache  *groupcache.Cache
	mgr    *messages.Manager
}

// openVault opens the database named by the loaded config, applying any
// pending migrations, and wires the messages facade to the shared signal
// file and group cache.
func openVault() (*vault, error) {
	st, err := store.Open(cfg.DatabasePath(),
		store.WithCompactAfterDelete(cfg.Maintenance.CompactAfterDelete))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	engine := query.NewSQLiteEngine(st.DB())
	cache := groupcache.New(cfg.CacheDir(), groupcache.WithLogger(logger))
	mgr := messages.New(st, engine, cache,
		messages.WithLogger(logger),
		messages.WithSignal(cfg.SignalPath()),
		messages.WithPollInterval(cfg.Observer.PollInterval),
		messages.WithDefaultGroup(cfg.Messages.DefaultGroup),
		messages.WithDefaultTTL(cfg.Messages.DefaultTTL),
	)
	return &vault{store: st, engine: engine, cache: cache, mgr: mgr}, nil
}

func (v *vault) Close() error {
	_ = v.engine.Close()
	return v.store.Close()
}
