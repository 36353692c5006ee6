package cmd

import (
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/httpbridge/internal/config"
	"github.com/nextlevelbuilder/httpbridge/internal/sessions"
	"github.com/nextlevelbuilder/httpbridge/internal/store"
	"github.com/nextlevelbuilder/httpbridge/internal/store/file"
	"github.com/nextlevelbuilder/httpbridge/internal/store/pg"
	"github.com/nextlevelbuilder/httpbridge/internal/store/sqlite"
)

// openStores picks the session backend: Postgres in managed mode, otherwise
// sessions.driver ("file" or "sqlite") under sessions.storage.
func openStores(cfg *config.Config) (*store.Stores, error) {
	if cfg.IsManagedMode() {
		stores, err := pg.NewPGStores(store.StoreConfig{
			Driver:      "postgres",
			PostgresDSN: cfg.Database.PostgresDSN,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres stores: %w", err)
		}
		return stores, nil
	}

	dir := cfg.SessionsPath()
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Sessions.Driver)); driver {
	case "", "file":
		return &store.Stores{
			Sessions: file.NewFileSessionStore(sessions.NewManager(dir)),
			Backend:  "file",
		}, nil
	case "sqlite":
		s, err := sqlite.New(dir)
		if err != nil {
			return nil, fmt.Errorf("open sqlite session store: %w", err)
		}
		return &store.Stores{Sessions: s, Backend: "sqlite"}, nil
	default:
		return nil, fmt.Errorf("unknown sessions.driver %q (want file or sqlite)", driver)
	}
}
