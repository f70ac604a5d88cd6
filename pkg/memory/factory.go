package memory

import (
	"fmt"

	"github.com/companionlabs/companion-go/pkg/core"
	"github.com/companionlabs/companion-go/pkg/store"
	memstore "github.com/companionlabs/companion-go/pkg/store/memory"
	"github.com/companionlabs/companion-go/pkg/store/mysql"
	"github.com/companionlabs/companion-go/pkg/store/postgres"
	"github.com/companionlabs/companion-go/pkg/store/sqlite"
)

// OpenStore creates the storage backend named by the configuration.
//
// Supported providers: "sqlite", "postgres", "mysql", "memory".
//
// Parameters:
//   - cfg: store configuration with provider name and DSN
//
// Returns:
//   - store.Store: opened backend
//   - error: unknown provider or connection failure
func OpenStore(cfg core.StoreConfig) (store.Store, error) {
	switch cfg.Provider {
	case "sqlite", "":
		return sqlite.NewStore(&sqlite.Config{DBPath: cfg.DSN})
	case "postgres":
		return postgres.NewStore(&postgres.Config{DSN: cfg.DSN})
	case "mysql":
		return mysql.NewStore(&mysql.Config{DSN: cfg.DSN})
	case "memory":
		return memstore.NewStore(), nil
	default:
		return nil, fmt.Errorf("%w: unknown store provider %q", core.ErrInvalidConfig, cfg.Provider)
	}
}
