package coordinator

import (
	"fmt"
	"github.com/ValentinKolb/srvcoord/lib/lockstate"
	"github.com/google/uuid"
	"os"
	"os/user"
	"time"
)

// DefaultPollInterval is the time Lock waits between two attempts.
const DefaultPollInterval = 5 * time.Second

// Options configures a coordinator.
type Options struct {
	// Namespace is the key prefix of all lock records.
	Namespace string
	// Holder identifies the caller. Locks can only be released by the holder that acquired them.
	Holder string
	// PollInterval is the time Lock waits between two attempts.
	PollInterval time.Duration
}

// DefaultOptions returns the default namespace, the DefaultHolder and the DefaultPollInterval.
func DefaultOptions() *Options {
	return &Options{
		Namespace:    lockstate.DefaultNamespace,
		Holder:       DefaultHolder(),
		PollInterval: DefaultPollInterval,
	}
}

// DefaultHolder returns "user@hostname".
// The identity is stable across processes, so a lock taken by one command of a user
// can be released by a later command of the same user on the same machine. Shared locks
// are counted per acquisition, two jobs of the same user each keep their own lock until
// they released it.
func DefaultHolder() string {
	name := "unknown"
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = u.Username
	} else if env := os.Getenv("USER"); env != "" {
		name = env
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s@%s", name, host)
}

// NewSessionHolder returns "user@hostname/<uuid>", an identity unique to the calling session.
// Use it when several independent callers of the same user and machine must not be confused.
func NewSessionHolder() string {
	return fmt.Sprintf("%s/%s", DefaultHolder(), uuid.NewString())
}

// withDefaults returns a copy of o with all unset fields set to their defaults.
func (o *Options) withDefaults() Options {
	var out Options
	if o != nil {
		out = *o
	}
	if out.Namespace == "" {
		out.Namespace = lockstate.DefaultNamespace
	}
	if out.Holder == "" {
		out.Holder = DefaultHolder()
	}
	if out.PollInterval <= 0 {
		out.PollInterval = DefaultPollInterval
	}
	return out
}
