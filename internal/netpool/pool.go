// Package netpool maintains one pooled HTTP client per remote host so that
// repeated downloads from the same CDN reuse connections instead of paying
// the TCP and TLS handshake cost per file.
package netpool

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/orion-launcher/core/internal/logging"
)

const (
	// DefaultMaxConnsPerHost bounds the total connections a single host's
	// client may open at once.
	DefaultMaxConnsPerHost = 20
	// DefaultMaxIdleConnsPerHost bounds how many idle keep-alive
	// connections are retained for reuse.
	DefaultMaxIdleConnsPerHost = 10
)

// Options configures the clients a Manager hands out.
type Options struct {
	ConnectTimeout      time.Duration // TCP connect timeout, default 10s
	RequestTimeout      time.Duration // full request timeout, default 30s
	MaxConnsPerHost     int
	MaxIdleConnsPerHost int
}

func (o *Options) withDefaults() Options {
	out := Options{
		ConnectTimeout:      10 * time.Second,
		RequestTimeout:      30 * time.Second,
		MaxConnsPerHost:     DefaultMaxConnsPerHost,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
	}
	if o == nil {
		return out
	}
	if o.ConnectTimeout > 0 {
		out.ConnectTimeout = o.ConnectTimeout
	}
	if o.RequestTimeout > 0 {
		out.RequestTimeout = o.RequestTimeout
	}
	if o.MaxConnsPerHost > 0 {
		out.MaxConnsPerHost = o.MaxConnsPerHost
	}
	if o.MaxIdleConnsPerHost > 0 {
		out.MaxIdleConnsPerHost = o.MaxIdleConnsPerHost
	}
	return out
}

// Manager hands out HTTP clients keyed by scheme://host. Safe for
// concurrent use.
type Manager struct {
	mu      sync.Mutex
	clients map[string]*http.Client
	opts    Options
	log     *slog.Logger
}

// NewManager creates a pool manager. opts may be nil for defaults.
func NewManager(opts *Options) *Manager {
	return &Manager{
		clients: make(map[string]*http.Client),
		opts:    opts.withDefaults(),
		log:     logging.L("netpool"),
	}
}

// ClientFor returns the pooled client for the given URL's scheme and host,
// creating it on first use. Two URLs on the same host share one client.
func (m *Manager) ClientFor(rawURL string) (*http.Client, error) {
	key, err := hostKey(rawURL)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.clients[key]; ok {
		return c, nil
	}

	c := m.newClient()
	m.clients[key] = c
	m.log.Debug("created pooled client", "host", key)
	return c, nil
}

// Len reports how many per-host clients exist.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// CloseAll closes idle connections on every pooled client and drops the
// client map. Clients handed out earlier remain usable but no longer share
// state with the manager.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, c := range m.clients {
		if t, ok := c.Transport.(*http.Transport); ok {
			t.CloseIdleConnections()
		}
		delete(m.clients, key)
	}
}

func (m *Manager) newClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   m.opts.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxConnsPerHost:       m.opts.MaxConnsPerHost,
		MaxIdleConnsPerHost:   m.opts.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   m.opts.ConnectTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   m.opts.RequestTimeout,
		// Default policy follows up to 10 redirects, which is what
		// asset mirrors need.
	}
}

func hostKey(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q in %q", u.Scheme, rawURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), nil
}

// HostKey exposes the pooling key used for a URL. Callers grouping work by
// host use the same normalization the manager does.
func HostKey(rawURL string) (string, error) {
	return hostKey(rawURL)
}
