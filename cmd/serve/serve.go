// Package serve implements the long-running HTTP API with scheduled passes.
package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fjacquet/networth-sync/cmd/root"
	"fjacquet/networth-sync/internal/container"
)

var (
	listenAddr  string
	noScheduler bool
)

// Cmd represents the serve command
var Cmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and run scheduled ingestion passes",
	Long: `Start the authenticated HTTP API (manual ingestion, CSV import, balance
refresh) and run an ingestion pass on the configured schedule until
interrupted.`,
	RunE: serveFunc,
}

func init() {
	Cmd.Flags().StringVarP(&listenAddr, "addr", "l", "", "Listen address (default: api.listen_addr)")
	Cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "Serve the API without scheduled passes")
}

func serveFunc(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := root.NewContainer(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	addr := listenAddr
	if addr == "" {
		addr = c.GetConfig().API.ListenAddr
	}
	return Run(ctx, c, addr, !noScheduler)
}

// Run serves until ctx is canceled. Scheduled passes are stopped, and any
// running pass awaited, before returning.
func Run(ctx context.Context, c *container.Container, addr string, withScheduler bool) error {
	server, err := c.Server(ctx)
	if err != nil {
		return err
	}

	if withScheduler {
		sched, err := c.Scheduler(ctx)
		if err != nil {
			return err
		}
		sched.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), c.GetConfig().Ingest.PassTimeout+5*time.Second)
			defer cancel()
			sched.Stop(stopCtx)
		}()
	}

	return server.ListenAndServe(ctx, addr)
}
