package cli

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/wastetrace/wastetrace/internal/api"
	"github.com/wastetrace/wastetrace/internal/config"
	"github.com/wastetrace/wastetrace/internal/domain"
	"github.com/wastetrace/wastetrace/internal/infra/metrics"
	"github.com/wastetrace/wastetrace/internal/infra/sqlite"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (overrides config)")
	serveCmd.Flags().Bool("seed-demo", true, "Seed the demo user accounts on startup")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the backend API server",
	Long: `Run the WasteTrace backend: the system of record for tickets and
eco-point balances. Dashboards and collectors talk to this server.`,
	RunE: runServe,
}

// demoProfiles mirrors the dashboard's demo credential table so the
// backend can answer /users/{id} for them from the first request.
var demoProfiles = []domain.User{
	{ID: "citizen-1", Email: "citizen@demo", Name: "Sarvesh Sapkal", Role: domain.RoleCitizen, EcoPoints: 120},
	{ID: "collector-1", Email: "collector@demo", Name: "Laukika Shinde", Role: domain.RoleCollector, TotalWasteCollected: 45},
	{ID: "municipal-1", Email: "municipal@demo", Name: "Shalvi Maheshwari", Role: domain.RoleMunicipality},
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.APIAddr()
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	store, err := sqlite.Open(cfg.DatabasePath())
	if err != nil {
		return err
	}
	defer store.Close()

	if seed, _ := cmd.Flags().GetBool("seed-demo"); seed {
		for _, u := range demoProfiles {
			if err := store.UpsertUser(u); err != nil {
				return fmt.Errorf("seed demo user %s: %w", u.Email, err)
			}
		}
	}

	server := api.NewServer(store, metrics.New())
	if cfg.Metrics.Enabled {
		server.EnableMetrics()
	}

	fmt.Printf("wastetrace backend listening on %s (db %s)\n", addr, cfg.DatabasePath())
	return http.ListenAndServe(addr, server.Handler())
}
