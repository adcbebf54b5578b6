package check

import (
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/srvcoord/cmd/util"
	"github.com/ValentinKolb/srvcoord/lib/coordinator"
	"github.com/ValentinKolb/srvcoord/lib/lockstate"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"io"
	"slices"
	"strings"
)

var (
	// CheckCmd represents the check command
	CheckCmd = &cobra.Command{
		Use:   "check [-s <id...>]",
		Short: "Print the current locks",
		Long:  "Print every locked server with its mode and holders. With -s only the given servers are printed.",
		RunE:  runCheck,
	}

	// UnlockAllCmd represents the unlockall command
	UnlockAllCmd = &cobra.Command{
		Use:   "unlockall",
		Short: "Remove all locks of all users (debugging only)",
		Long: `Remove every lock in the namespace, no matter who holds it. Users holding a lock are not
notified. Don't use it except for debugging.`,
		RunE: runUnlockAll,
	}
)

func init() {
	key := "servers"
	CheckCmd.Flags().StringSliceP(key, "s", nil, util.WrapString("Only print these servers"))

	key = "output"
	CheckCmd.Flags().StringP(key, "o", "text", util.WrapString("Output format (text, json)"))
}

// runCheck handles the check command
func runCheck(cmd *cobra.Command, args []string) error {
	format := viper.GetString("output")
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid output format %s", format)
	}

	c, s, err := util.GetCoordinator(util.GetClientConfig(), coordinator.DefaultPollInterval)
	if err != nil {
		return err
	}
	defer s.Close()

	locks, err := c.Check(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to check locks: %w", err)
	}

	if filter := util.GetServers(args); len(filter) > 0 {
		locks = Filter(locks, filter)
	}

	if format == "json" {
		return PrintJSON(cmd.OutOrStdout(), locks)
	}
	PrintText(cmd.OutOrStdout(), locks)
	return nil
}

// runUnlockAll handles the unlockall command
func runUnlockAll(cmd *cobra.Command, _ []string) error {
	c, s, err := util.GetCoordinator(util.GetClientConfig(), coordinator.DefaultPollInterval)
	if err != nil {
		return err
	}
	defer s.Close()

	removed, err := c.UnlockAll(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to remove locks: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d locks\n", removed)
	return nil
}

// --------------------------------------------------------------------------
// Output
// --------------------------------------------------------------------------

// Filter returns the locks of the given servers only.
func Filter(locks map[string]lockstate.Record, servers []string) map[string]lockstate.Record {
	out := make(map[string]lockstate.Record, len(servers))
	for _, server := range servers {
		if r, ok := locks[server]; ok {
			out[server] = r
		}
	}
	return out
}

// PrintText writes one line per locked server, sorted by server id.
func PrintText(w io.Writer, locks map[string]lockstate.Record) {
	if len(locks) == 0 {
		fmt.Fprintln(w, "no lock found")
		return
	}
	width := len("SERVER")
	for _, server := range sortedServers(locks) {
		width = max(width, len(server))
	}
	fmt.Fprintf(w, "%-*s  %-9s  %s\n", width, "SERVER", "MODE", "HOLDERS")
	for _, server := range sortedServers(locks) {
		r := locks[server]
		fmt.Fprintf(w, "%-*s  %-9s  %s\n", width, server, r.Mode, holderList(r))
	}
}

// holderList joins the holders of r, a holder with several shared locks is shown as "name (n)".
func holderList(r lockstate.Record) string {
	holders := r.Distinct()
	for i, h := range holders {
		if n := r.Count(r.Mode, h); n > 1 {
			holders[i] = fmt.Sprintf("%s (%d)", h, n)
		}
	}
	return strings.Join(holders, ", ")
}

// PrintJSON writes the locks as a JSON object keyed by server id.
func PrintJSON(w io.Writer, locks map[string]lockstate.Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(locks)
}

func sortedServers(locks map[string]lockstate.Record) []string {
	servers := make([]string, 0, len(locks))
	for server := range locks {
		servers = append(servers, server)
	}
	slices.Sort(servers)
	return servers
}
