package lock

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/srvcoord/cmd/check"
	"github.com/ValentinKolb/srvcoord/cmd/util"
	"github.com/ValentinKolb/srvcoord/lib/coordinator"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"strings"
)

// ErrNotAcquired is returned by trylock if the lock is not available
var ErrNotAcquired = errors.New("failed to acquire lock")

var (
	// LockCmd represents the blocking lock command
	LockCmd = newLockCmd()

	// TryLockCmd represents the non-blocking lock command
	TryLockCmd = newTryLockCmd()

	// UnlockCmd represents the unlock command
	UnlockCmd = newUnlockCmd()
)

func newLockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock -s <id...> [-e]",
		Short: "Lock servers, wait until they are available",
		Long: `Lock all given servers at once. If any of them is not available, nothing is locked and the
command retries every poll interval until all of them can be locked. Interrupt to give up.`,
		Example: "  srvcoord lock -s 42 49 -e",
		RunE:    runLock,
	}
	util.SetupLockFlags(cmd)

	key := "poll-interval"
	cmd.Flags().Duration(key, coordinator.DefaultPollInterval, util.WrapString("Time to wait between two attempts"))
	return cmd
}

func newTryLockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trylock -s <id...> [-e]",
		Short: "Lock servers if they are available right now",
		Long: `Lock all given servers at once without waiting. If any of them is not available, nothing is
locked, the current locks are printed and the command fails.`,
		RunE: runTryLock,
	}
	util.SetupLockFlags(cmd)
	return cmd
}

func newUnlockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unlock -s <id...> [-e]",
		Short: "Release locks on servers",
		Long: `Release the locks held on the given servers. The mode (-e) must match the mode the servers
were locked with. Servers that are not locked by you are skipped. A server you locked shared
several times stays locked until every one of them was released.`,
		Example: "  srvcoord unlock -s 42 49 -e",
		RunE:    runUnlock,
	}
	util.SetupLockFlags(cmd)
	return cmd
}

// open connects to the store and returns the requested servers.
func open(args []string) (coordinator.ICoordinator, func(), []string, error) {
	servers := util.GetServers(args)
	if len(servers) == 0 {
		return nil, nil, nil, fmt.Errorf("no servers to lock or unlock, use -s <id...>")
	}

	c, s, err := util.GetCoordinator(util.GetClientConfig(), viper.GetDuration("poll-interval"))
	if err != nil {
		return nil, nil, nil, err
	}
	return c, func() { _ = s.Close() }, servers, nil
}

// runLock handles the lock command
func runLock(cmd *cobra.Command, args []string) error {
	c, closeFn, servers, err := open(args)
	if err != nil {
		return err
	}
	defer closeFn()

	mode := util.GetMode()
	if err := c.Lock(cmd.Context(), servers, mode); err != nil {
		return fmt.Errorf("failed to lock %s: %w", strings.Join(servers, ", "), err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "locked %s (%s) as %s\n", strings.Join(servers, ", "), mode, c.Holder())
	return nil
}

// runTryLock handles the trylock command
func runTryLock(cmd *cobra.Command, args []string) error {
	c, closeFn, servers, err := open(args)
	if err != nil {
		return err
	}
	defer closeFn()

	mode := util.GetMode()
	granted, err := c.TryLock(cmd.Context(), servers, mode)
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", strings.Join(servers, ", "), err)
	}
	if !granted {
		if locks, err := c.Check(cmd.Context()); err == nil {
			check.PrintText(cmd.OutOrStdout(), locks)
		}
		return ErrNotAcquired
	}
	fmt.Fprintf(cmd.OutOrStdout(), "locked %s (%s) as %s\n", strings.Join(servers, ", "), mode, c.Holder())
	return nil
}

// runUnlock handles the unlock command
func runUnlock(cmd *cobra.Command, args []string) error {
	c, closeFn, servers, err := open(args)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := c.Unlock(cmd.Context(), servers, util.GetMode()); err != nil {
		return fmt.Errorf("failed to unlock: %w", err)
	}
	return nil
}
