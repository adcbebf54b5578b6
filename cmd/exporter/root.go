package exporter

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/srvcoord/cmd/util"
	"github.com/ValentinKolb/srvcoord/lib/coordinator"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"net/http"
	"time"
)

var (
	plog = logger.GetLogger("exporter")

	// ExporterCmd represents the exporter command
	ExporterCmd = &cobra.Command{
		Use:   "exporter",
		Short: "Serve the current locks as Prometheus metrics",
		Long: `Periodically read all locks and serve them on /metrics in the Prometheus text format:

  srvcoord_locks                                      number of locked servers
  srvcoord_lock_holders{server,mode}                  number of holders per locked server
  srvcoord_lock_held{server,mode,holder}              1 for every holder of a server`,
		RunE: runExporter,
	}
)

func init() {
	key := "listen"
	ExporterCmd.Flags().String(key, ":9464", util.WrapString("The address to serve the metrics on"))

	key = "interval"
	ExporterCmd.Flags().Duration(key, 15*time.Second, util.WrapString("Time between two reads of all locks"))
}

// runExporter starts the exporter and blocks until the command is interrupted
func runExporter(cmd *cobra.Command, _ []string) error {
	interval := viper.GetDuration("interval")
	if interval <= 0 {
		return fmt.Errorf("invalid interval %s", interval)
	}

	c, s, err := util.GetCoordinator(util.GetClientConfig(), coordinator.DefaultPollInterval)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	e := newLockExporter(c)
	go e.run(ctx, interval)

	server := &http.Server{
		Addr:              viper.GetString("listen"),
		Handler:           e.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	plog.Infof("serving lock metrics on %s/metrics (refresh every %s)", server.Addr, interval)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
