package common

import (
	"errors"
	"fmt"
	"github.com/go-playground/validator/v10"
	"net"
	"net/url"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

// Supported store backends.
const (
	BackendRedis = "redis"
	BackendEtcd  = "etcd"
)

// ClientConfig holds everything needed to connect a coordinator to its store.
type ClientConfig struct {
	// Backend selects the store implementation (redis or etcd)
	Backend string `validate:"required,oneof=redis etcd"`

	// RedisURL is the url of the redis server (redis:// or rediss://)
	RedisURL string `validate:"required_if=Backend redis,omitempty,url"`

	// RedisClusterAddrs are the seed nodes of a redis cluster, setting them enables cluster mode
	RedisClusterAddrs []string `validate:"dive,endpoint"`

	// TLS material for redis (paths to PEM files)
	RedisTLSCA         string `validate:"omitempty,file"`
	RedisTLSCert       string `validate:"required_with=RedisTLSKey,omitempty,file"`
	RedisTLSKey        string `validate:"required_with=RedisTLSCert,omitempty,file"`
	RedisTLSServerName string `validate:"omitempty,hostname_rfc1123"`
	RedisTLSInsecure   bool

	// EtcdEndpoints are the endpoints of the etcd cluster
	EtcdEndpoints []string `validate:"required_if=Backend etcd,dive,endpoint"`

	// Namespace is the key prefix of all lock records
	Namespace string `validate:"required"`

	// Holder is the identity locks are taken with
	Holder string `validate:"required"`

	// TimeoutSecond bounds connecting to the store and every single store request
	TimeoutSecond int `validate:"gte=1,lte=3600"`

	// Logging configuration
	LogLevel string `validate:"oneof=debug info warn warning error"`

	// Trace enables printing OpenTelemetry spans to stderr
	Trace bool
}

// Timeout returns TimeoutSecond as duration.
func (c *ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// Validate checks the configuration and returns one error listing every invalid field.
func (c *ClientConfig) Validate() error {
	err := newValidator().Struct(c)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	msgs := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed on the '%s' tag (value: %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// String returns a formatted string representation of the configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Store")
	addField("Backend", c.Backend)
	switch c.Backend {
	case BackendRedis:
		addField("Redis URL", redactURL(c.RedisURL))
		if len(c.RedisClusterAddrs) > 0 {
			addField("Redis Cluster", strings.Join(c.RedisClusterAddrs, ", "))
		}
		if c.RedisTLSCA != "" || c.RedisTLSCert != "" || c.RedisTLSServerName != "" || c.RedisTLSInsecure {
			addField("Redis TLS CA", c.RedisTLSCA)
			addField("Redis TLS Cert", c.RedisTLSCert)
			addField("Redis TLS Server Name", c.RedisTLSServerName)
			addField("Redis TLS Insecure", fmt.Sprintf("%t", c.RedisTLSInsecure))
		}
	case BackendEtcd:
		addField("Etcd Endpoints", strings.Join(c.EtcdEndpoints, ", "))
	}
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	addSection("Locks")
	addField("Namespace", c.Namespace)
	addField("Holder", c.Holder)

	addSection("Observability")
	addField("Log Level", c.LogLevel)
	addField("Tracing", fmt.Sprintf("%t", c.Trace))

	return sb.String()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// newValidator creates a validator that additionally knows the "endpoint" tag.
func newValidator() *validator.Validate {
	validate := validator.New()

	// an endpoint is either host:port or a url with a host (http://host:2379)
	_ = validate.RegisterValidation("endpoint", func(fl validator.FieldLevel) bool {
		return isEndpoint(fl.Field().String())
	})

	return validate
}

func isEndpoint(s string) bool {
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		return err == nil && u.Host != ""
	}
	host, port, err := net.SplitHostPort(s)
	return err == nil && host != "" && port != ""
}

// redactURL hides the password of a url.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}
