package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/httpbridge/internal/channels/httpbridge"
	"github.com/nextlevelbuilder/httpbridge/internal/config"
	"github.com/nextlevelbuilder/httpbridge/internal/store/pg"
	"github.com/nextlevelbuilder/httpbridge/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, accounts and storage health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("httpbridge doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Accounts:")
	for _, id := range httpbridge.ListAccountIDs(cfg) {
		a := httpbridge.ResolveAccount(cfg, id)
		state := "enabled"
		if !a.Enabled {
			state = "disabled"
		}
		configured := "configured"
		if !a.Configured {
			configured = "NOT CONFIGURED (no token or callbackDefault)"
		}
		fmt.Printf("    %-12s %-9s %-24s %s\n", a.AccountID, state, a.WebhookPath(), configured)
		if a.Config.Token == "" {
			fmt.Printf("    %-12s WARNING: no token, inbound webhook is unauthenticated\n", "")
		}
	}

	fmt.Println()
	fmt.Println("  Sessions:")
	if cfg.IsManagedMode() {
		fmt.Printf("    %-12s postgres (managed)\n", "Backend:")
		checkDatabase(cfg.Database.PostgresDSN)
	} else {
		stores, err := openStores(cfg)
		if err != nil {
			fmt.Printf("    %-12s FAILED (%s)\n", "Backend:", err)
		} else {
			fmt.Printf("    %-12s %s at %s\n", "Backend:", stores.Backend, cfg.SessionsPath())
			stores.Close()
		}
	}

	fmt.Println()
	url := localGatewayURL(cfg) + protocol.PathHealth
	fmt.Printf("  Gateway:  %s", url)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if resp, err := http.DefaultClient.Do(req); err != nil {
		fmt.Println(" (not running)")
	} else {
		resp.Body.Close()
		fmt.Printf(" (HTTP %d)\n", resp.StatusCode)
	}
}

func checkDatabase(dsn string) {
	db, err := pg.OpenDB(dsn)
	if err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}
	db.Close()
	fmt.Printf("    %-12s connected\n", "Status:")

	m, err := newMigrator(dsn)
	if err != nil {
		fmt.Printf("    %-12s CHECK FAILED (%s)\n", "Schema:", err)
		return
	}
	defer m.Close()
	v, dirty, err := m.Version()
	switch {
	case err != nil:
		fmt.Printf("    %-12s not migrated (run: httpbridge migrate up)\n", "Schema:")
	case dirty:
		fmt.Printf("    %-12s v%d (DIRTY, fix the schema then run: httpbridge migrate force <version>)\n", "Schema:", v)
	default:
		fmt.Printf("    %-12s v%d\n", "Schema:", v)
	}
}
