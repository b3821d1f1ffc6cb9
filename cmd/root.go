// Package cmd wires the inkform CLI: scope and variable administration,
// access checks, tree views, the NFS export and the MCP agent.
package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/gravitational/trace"
	"github.com/spf13/cobra"

	"github.com/inkform/inkform/api"
	"github.com/inkform/inkform/internal/config"
	"github.com/inkform/inkform/internal/engine"
	"github.com/inkform/inkform/internal/provider"
	"github.com/inkform/inkform/internal/storage"
)

var (
	configPath    string
	principalID   string
	principalRole string
	emailVerified bool
)

var rootCmd = &cobra.Command{
	Use:           "inkform",
	Short:         "Inkform: scope-gated template hierarchy engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to HCL config file")
	rootCmd.PersistentFlags().StringVar(&principalID, "principal", "", "Principal id (empty for anonymous)")
	rootCmd.PersistentFlags().StringVar(&principalRole, "role", "user", "Principal role: user, admin, superadmin")
	rootCmd.PersistentFlags().BoolVar(&emailVerified, "email-verified", false, "Principal has a verified email")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func principal() (api.Principal, error) {
	if principalID == "" {
		return api.Anonymous, nil
	}
	switch api.Role(principalRole) {
	case api.RoleUser, api.RoleAdmin, api.RoleSuperadmin:
	default:
		return api.Principal{}, trace.BadParameter("unknown role %q", principalRole)
	}
	return api.Principal{
		ID:            principalID,
		Role:          api.Role(principalRole),
		EmailVerified: emailVerified,
	}, nil
}

func setupLogging(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

// newEngine loads configuration and wires the engine over the configured
// template directory and database. The caller closes the database.
func newEngine(ctx context.Context) (*engine.Engine, *config.Config, *sql.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, trace.Wrap(err)
	}
	setupLogging(cfg.LogLevel)

	ttl, err := cfg.ParsedCacheTTL()
	if err != nil {
		return nil, nil, nil, trace.Wrap(err)
	}
	db, err := storage.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, nil, nil, trace.Wrap(err)
	}

	var p provider.Provider = provider.NewBillyFS(osfs.New(cfg.TemplatesDir))
	if ttl > 0 {
		p = provider.NewCache(p, ttl)
	}
	return engine.New(p, db), cfg, db, nil
}
