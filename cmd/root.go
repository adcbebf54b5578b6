package cmd

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/srvcoord/cmd/check"
	"github.com/ValentinKolb/srvcoord/cmd/exporter"
	"github.com/ValentinKolb/srvcoord/cmd/lock"
	"github.com/ValentinKolb/srvcoord/cmd/util"
	"github.com/spf13/cobra"
	"os"
	"os/signal"
	"syscall"
)

const (
	Version = "1.0.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "srvcoord",
		Short: "coordinate the use of servers by locking them",
		Long: fmt.Sprintf(`srvcoord (v%s)

Coordinate the use of shared servers between users. Servers can be locked
shared (many users at once) or exclusive (for performance experiments).
Locks are kept in redis or etcd and are taken on all given servers at once.

  srvcoord lock -s 42 49 -e      # wait until 42 and 49 are free, lock them exclusively
  # ... run your experiment ...
  srvcoord unlock -s 42 49 -e`, Version),
		SilenceUsage:      true,
		PersistentPreRunE: util.Prepare,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of srvcoord",
		// no store needed
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("srvcoord v%s\n", Version)
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add Commands
	RootCmd.AddCommand(lock.LockCmd)
	RootCmd.AddCommand(lock.TryLockCmd)
	RootCmd.AddCommand(lock.UnlockCmd)
	RootCmd.AddCommand(check.CheckCmd)
	RootCmd.AddCommand(check.UnlockAllCmd)
	RootCmd.AddCommand(exporter.ExporterCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	util.SetupStoreFlags(RootCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
// An interrupt cancels the running command, a waiting lock gives up without leaving anything locked.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := RootCmd.ExecuteContext(ctx)
	stop()
	util.Shutdown()
	if err != nil {
		os.Exit(1)
	}
}
