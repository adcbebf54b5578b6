package redisstore

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"github.com/redis/go-redis/v9"
	"os"
	"time"
)

// Options configures the connection to redis.
type Options struct {
	// URL of the server (redis:// or rediss://). In cluster mode only the credentials and
	// the TLS setting of the url are used, the nodes are discovered from ClusterAddrs.
	URL string

	// ClusterAddrs are the seed nodes of a redis cluster. If set, a cluster client is used.
	// All keys of one CompareAndUpdate must then hash to the same slot (see lockstate.HashTagged).
	ClusterAddrs []string

	// Timeout bounds dialing as well as every read and write. Zero keeps the go-redis defaults.
	Timeout time.Duration

	// TLS is applied on top of the TLS setting of the url.
	TLS TLSOptions
}

// TLSOptions holds the paths of the TLS material. Empty fields are ignored.
type TLSOptions struct {
	CA         string // PEM file with additional root certificates
	Cert       string // client certificate, requires Key
	Key        string // client key, requires Cert
	ServerName string // overrides the name the server certificate is verified against
	Insecure   bool   // skip verification of the server certificate
}

// DefaultOptions returns options for a local single node server.
func DefaultOptions() *Options {
	return &Options{URL: DefaultURL}
}

// Cluster reports whether o selects a cluster client.
func (o *Options) Cluster() bool {
	return len(o.ClusterAddrs) > 0
}

func (t TLSOptions) empty() bool {
	return t == TLSOptions{}
}

// NewClient creates a single node or cluster client for o.
func NewClient(o *Options) (redis.UniversalClient, error) {
	url := o.URL
	if url == "" {
		url = DefaultURL
	}
	parsed, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	tlsConfig, err := o.TLS.apply(parsed.TLSConfig)
	if err != nil {
		return nil, err
	}

	if o.Cluster() {
		copts := &redis.ClusterOptions{
			Addrs:     o.ClusterAddrs,
			Username:  parsed.Username,
			Password:  parsed.Password,
			TLSConfig: tlsConfig,
		}
		if o.Timeout > 0 {
			copts.DialTimeout, copts.ReadTimeout, copts.WriteTimeout = o.Timeout, o.Timeout, o.Timeout
		}
		return redis.NewClusterClient(copts), nil
	}

	parsed.TLSConfig = tlsConfig
	if o.Timeout > 0 {
		parsed.DialTimeout, parsed.ReadTimeout, parsed.WriteTimeout = o.Timeout, o.Timeout, o.Timeout
	}
	return redis.NewClient(parsed), nil
}

// apply returns base extended by t. base is returned unchanged if t is empty.
func (t TLSOptions) apply(base *tls.Config) (*tls.Config, error) {
	if t.empty() {
		return base, nil
	}
	if (t.Cert == "") != (t.Key == "") {
		return nil, errors.New("redis tls: certificate and key must be given together")
	}

	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if base != nil {
		cfg = base.Clone()
	}
	if t.ServerName != "" {
		cfg.ServerName = t.ServerName
	}
	cfg.InsecureSkipVerify = cfg.InsecureSkipVerify || t.Insecure

	if t.CA != "" {
		pem, err := os.ReadFile(t.CA)
		if err != nil {
			return nil, fmt.Errorf("redis tls: read ca: %w", err)
		}
		if cfg.RootCAs == nil {
			cfg.RootCAs = x509.NewCertPool()
		}
		if !cfg.RootCAs.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("redis tls: no certificate found in %s", t.CA)
		}
	}

	if t.Cert != "" {
		cert, err := tls.LoadX509KeyPair(t.Cert, t.Key)
		if err != nil {
			return nil, fmt.Errorf("redis tls: load key pair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}
