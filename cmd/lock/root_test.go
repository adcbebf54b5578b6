package lock

import (
	"bytes"
	"context"
	"errors"
	"github.com/ValentinKolb/srvcoord/cmd/util"
	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"io"
	"strings"
	"testing"
	"time"
)

// execute runs a fresh command tree with args against mr and returns what was written to stdout.
func execute(ctx context.Context, t *testing.T, mr *miniredis.Miniredis, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	util.InitClientConfig()

	root := &cobra.Command{Use: "srvcoord", SilenceUsage: true, SilenceErrors: true, PersistentPreRunE: util.Prepare}
	util.SetupStoreFlags(root)
	root.AddCommand(newLockCmd(), newTryLockCmd(), newUnlockCmd())

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append(args, "--redis-url", "redis://"+mr.Addr(), "--namespace", "test:", "--log-level", "error"))
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func mustExecute(t *testing.T, mr *miniredis.Miniredis, args ...string) string {
	t.Helper()
	out, err := execute(context.Background(), t, mr, args...)
	if err != nil {
		t.Fatalf("%s failed: %v", strings.Join(args, " "), err)
	}
	return out
}

func assertHolder(t *testing.T, mr *miniredis.Miniredis, server, holder string) {
	t.Helper()
	value, err := mr.Get("test:" + server)
	if err != nil {
		t.Errorf("expected %s to be locked: %v", server, err)
		return
	}
	if !strings.Contains(value, `"`+holder+`"`) {
		t.Errorf("expected %s to be held by %s, got %s", server, holder, value)
	}
}

func TestTryLockServers(t *testing.T) {
	mr := miniredis.RunT(t)

	// positional ids after -s are servers as well
	out := mustExecute(t, mr, "trylock", "--holder", "alice", "-s", "42", "49")
	if out != "locked 42, 49 (shared) as alice\n" {
		t.Errorf("unexpected output %q", out)
	}
	assertHolder(t, mr, "42", "alice")
	assertHolder(t, mr, "49", "alice")

	out = mustExecute(t, mr, "trylock", "--holder", "bob", "-s", "50,51", "-e")
	if out != "locked 50, 51 (exclusive) as bob\n" {
		t.Errorf("unexpected output %q", out)
	}
	assertHolder(t, mr, "51", "bob")
}

func TestTryLockDenied(t *testing.T) {
	mr := miniredis.RunT(t)
	mustExecute(t, mr, "trylock", "--holder", "alice", "-s", "42", "-e")

	out, err := execute(context.Background(), t, mr, "trylock", "--holder", "bob", "-s", "42", "49")
	if !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
	// the current locks are printed, nothing was locked
	if !strings.Contains(out, "42") || !strings.Contains(out, "exclusive") || !strings.Contains(out, "alice") {
		t.Errorf("expected the current locks in the output, got:\n%s", out)
	}
	if mr.Exists("test:49") {
		t.Error("a denied request must not lock any server")
	}
}

func TestNoServers(t *testing.T) {
	mr := miniredis.RunT(t)
	for _, command := range []string{"lock", "trylock", "unlock"} {
		if _, err := execute(context.Background(), t, mr, command, "--holder", "alice", "-s", " "); err == nil || !strings.Contains(err.Error(), "no servers") {
			t.Errorf("%s: expected error for missing servers, got %v", command, err)
		}
	}
}

func TestUnlock(t *testing.T) {
	mr := miniredis.RunT(t)
	mustExecute(t, mr, "trylock", "--holder", "alice", "-s", "42", "-e")

	// wrong mode and wrong holder leave the lock in place
	mustExecute(t, mr, "unlock", "--holder", "alice", "-s", "42")
	mustExecute(t, mr, "unlock", "--holder", "bob", "-s", "42", "-e")
	assertHolder(t, mr, "42", "alice")

	mustExecute(t, mr, "unlock", "--holder", "alice", "-s", "42", "-e")
	if mr.Exists("test:42") {
		t.Error("expected 42 to be free after unlock")
	}

	// unlocking again is fine
	mustExecute(t, mr, "unlock", "--holder", "alice", "-s", "42", "-e")
}

func TestUnlockSameHolderTwice(t *testing.T) {
	mr := miniredis.RunT(t)

	// two jobs of the same user lock the same server shared
	mustExecute(t, mr, "trylock", "--holder", "alice", "-s", "42")
	mustExecute(t, mr, "trylock", "--holder", "alice", "-s", "42")

	mustExecute(t, mr, "unlock", "--holder", "alice", "-s", "42")
	assertHolder(t, mr, "42", "alice")
	if _, err := execute(context.Background(), t, mr, "trylock", "--holder", "bob", "-s", "42", "-e"); !errors.Is(err, ErrNotAcquired) {
		t.Errorf("expected ErrNotAcquired while the second job holds 42, got %v", err)
	}

	mustExecute(t, mr, "unlock", "--holder", "alice", "-s", "42")
	mustExecute(t, mr, "trylock", "--holder", "bob", "-s", "42", "-e")
	assertHolder(t, mr, "42", "bob")
}

func TestLock(t *testing.T) {
	mr := miniredis.RunT(t)

	out := mustExecute(t, mr, "lock", "--holder", "alice", "-s", "42", "-e", "--poll-interval", "10ms")
	if out != "locked 42 (exclusive) as alice\n" {
		t.Errorf("unexpected output %q", out)
	}

	// a waiting lock gives up when its context ends and leaves nothing behind
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := execute(ctx, t, mr, "lock", "--holder", "bob", "-s", "42", "49", "--poll-interval", "10ms")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if mr.Exists("test:49") {
		t.Error("a cancelled lock must not lock any server")
	}
	assertHolder(t, mr, "42", "alice")
}
