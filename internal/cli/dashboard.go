package cli

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/wastetrace/wastetrace/internal/classify"
	"github.com/wastetrace/wastetrace/internal/config"
	"github.com/wastetrace/wastetrace/internal/engine"
	"github.com/wastetrace/wastetrace/internal/identity"
	"github.com/wastetrace/wastetrace/internal/location"
	"github.com/wastetrace/wastetrace/internal/repository"
	"github.com/wastetrace/wastetrace/internal/web"
)

func init() {
	rootCmd.AddCommand(dashboardCmd)
	dashboardCmd.Flags().String("addr", "", "Listen address (overrides config)")
	dashboardCmd.Flags().String("backend", "", "Backend base URL (overrides config)")
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Run the role-gated dashboard server",
	Long: `Run the dashboard surface for the three roles: citizens submit and
track waste, collectors work through pickups, the municipality monitors
city-wide progress. Ticket state always comes from the backend; this
server only caches it.`,
	RunE: runDashboard,
}

func runDashboard(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.WebAddr()
	}
	backendURL, _ := cmd.Flags().GetString("backend")
	if backendURL == "" {
		backendURL = cfg.Services.BackendURL
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	repo := repository.New(backendURL, nil)
	classifier := classify.NewClient(cfg.Services.ClassifyURL, nil)
	locator := location.NewProvider(cfg.Services.GeocodeURL, nil)
	eng := engine.New(repo, classifier, locator)
	sessions := identity.NewStore(cfg.SessionsPath())
	users := web.NewUserClient(backendURL, nil)

	server := web.NewServer(sessions, repo, eng, users)

	fmt.Printf("wastetrace dashboard listening on %s (backend %s)\n", addr, backendURL)
	return http.ListenAndServe(addr, server.Handler())
}
