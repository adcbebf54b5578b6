package util

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/srvcoord/lib/common"
	"github.com/ValentinKolb/srvcoord/lib/coordinator"
	"github.com/ValentinKolb/srvcoord/lib/lockstate"
	"github.com/ValentinKolb/srvcoord/lib/store"
	"github.com/ValentinKolb/srvcoord/lib/store/etcdstore"
	"github.com/ValentinKolb/srvcoord/lib/store/redisstore"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"strings"
	"time"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables (e.g. SRVCOORD_REDIS_URL)
	EnvPrefix = "srvcoord"
)

var (
	plog = logger.GetLogger("cmd")

	// shutdownTracer flushes the tracer provider, set by Prepare if tracing is enabled
	shutdownTracer func(context.Context) error
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Flags
// --------------------------------------------------------------------------

// SetupStoreFlags adds the store connection and identity flags to a command
func SetupStoreFlags(cmd *cobra.Command) {
	key := "backend"
	cmd.PersistentFlags().String(key, common.BackendRedis, WrapString("The store holding the locks (redis, etcd)"))

	key = "redis-url"
	cmd.PersistentFlags().String(key, redisstore.DefaultURL, WrapString("The url of the redis server (redis://[user:password@]host:port/db, rediss:// for TLS)"))

	key = "redis-cluster-addresses"
	cmd.PersistentFlags().String(key, "", WrapString("Comma-separated seed nodes of a redis cluster. Enables cluster mode, the namespace is then wrapped in a hash tag so all locks live in one slot"))

	key = "redis-tls-ca"
	cmd.PersistentFlags().String(key, "", WrapString("PEM file with additional CA certificates for the redis connection"))

	key = "redis-tls-cert"
	cmd.PersistentFlags().String(key, "", WrapString("PEM file with the client certificate for redis (requires --redis-tls-key)"))

	key = "redis-tls-key"
	cmd.PersistentFlags().String(key, "", WrapString("PEM file with the client key for redis (requires --redis-tls-cert)"))

	key = "redis-tls-server-name"
	cmd.PersistentFlags().String(key, "", WrapString("The name the redis server certificate is verified against"))

	key = "redis-tls-insecure"
	cmd.PersistentFlags().Bool(key, false, WrapString("Do not verify the redis server certificate"))

	key = "etcd-endpoints"
	cmd.PersistentFlags().String(key, etcdstore.DefaultEndpoint, WrapString("Comma-separated list of etcd endpoints"))

	key = "namespace"
	cmd.PersistentFlags().String(key, lockstate.DefaultNamespace, WrapString("The key prefix of all lock records. Coordinators only see locks in the same namespace"))

	key = "holder"
	cmd.PersistentFlags().String(key, "", WrapString("The identity locks are taken with (default user@hostname). Locks can only be released with the identity that took them"))

	key = "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds for connecting to the store and for every store request"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "info", WrapString("The level at which logs are written to stderr (debug, info, warn, error)"))

	key = "trace"
	cmd.PersistentFlags().Bool(key, false, WrapString("Print OpenTelemetry spans of all store and lock operations to stderr"))
}

// SetupLockFlags adds the flags selecting resources and mode to a command
func SetupLockFlags(cmd *cobra.Command) {
	key := "servers"
	cmd.Flags().StringSliceP(key, "s", nil, WrapString("The servers (resource ids) to use, e.g. -s 42 49 or -s 42,49"))

	key = "exclusive"
	cmd.Flags().BoolP(key, "e", false, WrapString("Lock exclusively (forbid any other user on the servers, e.g. for performance experiments). Without this flag the servers are locked shared"))
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// InitClientConfig initializes configuration from environment variables
func InitClientConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	holder := strings.TrimSpace(viper.GetString("holder"))
	if holder == "" {
		holder = coordinator.DefaultHolder()
	}

	return &common.ClientConfig{
		Backend:            strings.ToLower(strings.TrimSpace(viper.GetString("backend"))),
		RedisURL:           viper.GetString("redis-url"),
		RedisClusterAddrs:  splitList(viper.GetString("redis-cluster-addresses")),
		RedisTLSCA:         strings.TrimSpace(viper.GetString("redis-tls-ca")),
		RedisTLSCert:       strings.TrimSpace(viper.GetString("redis-tls-cert")),
		RedisTLSKey:        strings.TrimSpace(viper.GetString("redis-tls-key")),
		RedisTLSServerName: strings.TrimSpace(viper.GetString("redis-tls-server-name")),
		RedisTLSInsecure:   viper.GetBool("redis-tls-insecure"),
		EtcdEndpoints:      splitList(viper.GetString("etcd-endpoints")),
		Namespace:          viper.GetString("namespace"),
		Holder:             holder,
		TimeoutSecond:      viper.GetInt("timeout"),
		LogLevel:           strings.ToLower(viper.GetString("log-level")),
		Trace:              viper.GetBool("trace"),
	}
}

// splitList splits a comma or whitespace separated list and drops empty entries
func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
}

// Prepare binds the flags of cmd, validates the resulting configuration and sets up
// logging and tracing. It is run before every command that talks to the store.
func Prepare(cmd *cobra.Command, _ []string) error {
	if err := BindCommandFlags(cmd); err != nil {
		return err
	}

	config := GetClientConfig()
	if err := config.Validate(); err != nil {
		return err
	}

	if err := common.InitLoggers(config.LogLevel); err != nil {
		return err
	}

	if config.Trace && shutdownTracer == nil {
		shutdown, err := common.InitTracer(os.Stderr)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		shutdownTracer = shutdown
	}

	plog.Debugf("configuration:\n%s", config)
	return nil
}

// Shutdown flushes pending spans, it is a no-op if tracing is disabled
func Shutdown() {
	if shutdownTracer == nil {
		return
	}
	if err := shutdownTracer(context.Background()); err != nil {
		plog.Warningf("failed to flush traces: %v", err)
	}
	shutdownTracer = nil
}

// --------------------------------------------------------------------------
// Store and coordinator factories
// --------------------------------------------------------------------------

// GetStore connects to the store selected by the configuration
func GetStore(config *common.ClientConfig) (store.IStore, error) {
	switch config.Backend {
	case common.BackendRedis:
		return redisstore.NewRedisStore(RedisOptions(config))
	case common.BackendEtcd:
		return etcdstore.NewEtcdStore(config.EtcdEndpoints, config.Timeout())
	default:
		return nil, fmt.Errorf("invalid backend %s", config.Backend)
	}
}

// RedisOptions converts the redis part of the configuration
func RedisOptions(config *common.ClientConfig) *redisstore.Options {
	return &redisstore.Options{
		URL:          config.RedisURL,
		ClusterAddrs: config.RedisClusterAddrs,
		Timeout:      config.Timeout(),
		TLS: redisstore.TLSOptions{
			CA:         config.RedisTLSCA,
			Cert:       config.RedisTLSCert,
			Key:        config.RedisTLSKey,
			ServerName: config.RedisTLSServerName,
			Insecure:   config.RedisTLSInsecure,
		},
	}
}

// Namespace returns the namespace the coordinator works in. A redis cluster only runs
// transactions within one hash slot, so the namespace is hash tagged there.
func Namespace(config *common.ClientConfig) string {
	if config.Backend == common.BackendRedis && len(config.RedisClusterAddrs) > 0 {
		return lockstate.HashTagged(config.Namespace)
	}
	return config.Namespace
}

// GetCoordinator connects to the configured store and creates a coordinator on top of it.
// The returned store must be closed by the caller.
func GetCoordinator(config *common.ClientConfig, pollInterval time.Duration) (coordinator.ICoordinator, store.IStore, error) {
	s, err := GetStore(config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", config.Backend, err)
	}
	c := coordinator.NewCoordinator(s, &coordinator.Options{
		Namespace:    Namespace(config),
		Holder:       config.Holder,
		PollInterval: pollInterval,
	})
	return c, s, nil
}

// GetServers returns the servers given with -s. Positional arguments are added as well,
// so "-s 42 49" selects both servers.
func GetServers(args []string) []string {
	return MergeServers(viper.GetStringSlice("servers"), args)
}

// MergeServers trims all ids and drops empty ones.
func MergeServers(flagValues, args []string) []string {
	var servers []string
	for _, list := range [][]string{flagValues, args} {
		for _, id := range list {
			if id = strings.TrimSpace(id); id != "" {
				servers = append(servers, id)
			}
		}
	}
	return servers
}

// GetMode returns the lock mode selected with -e
func GetMode() lockstate.Mode {
	return lockstate.ModeOf(viper.GetBool("exclusive"))
}
