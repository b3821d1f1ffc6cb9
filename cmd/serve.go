package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/inkform/inkform/internal/nfsexport"
)

var serveRefresh time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the principal's access-filtered tree over NFS",
	Long: `Export the tree the principal may see as a read-only NFS share.
Mount it with, e.g.:

  mount -t nfs -o port=20490,mountport=20490,vers=3,tcp,nolock,ro localhost:/ /mnt/inkform`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, cfg, db, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		p, err := principal()
		if err != nil {
			return err
		}

		fs := nfsexport.NewTreeFS(eng, p, serveRefresh)
		srv, err := nfsexport.NewServer(cfg.NFSListen, fs)
		if err != nil {
			return err
		}
		defer func() { _ = srv.Close() }()
		fmt.Printf("Serving NFS on %s (principal %q)\n", srv.Addr(), p.ID)

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		select {
		case <-stop:
		case <-ctx.Done():
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().DurationVar(&serveRefresh, "refresh", 30*time.Second, "How long the exported tree may lag behind scope changes")
	rootCmd.AddCommand(serveCmd)
}
