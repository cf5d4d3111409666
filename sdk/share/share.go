// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

// Package share implements the cross-handle cache that transfers may opt into
// to reuse cookies, resolved addresses and TLS sessions.
//
// A Share has no scheduling role. Its lifetime is managed by the caller and
// must cover every handle that references it. All methods are safe for
// concurrent use, so handles driven by coordinators on different goroutines
// may reference the same Share.
package share

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/net/publicsuffix"

	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/errs"
)

// DataKind selects a category of shareable data.
type DataKind int

const (
	DataCookie DataKind = iota + 1
	DataDNS
	DataTLSSession
)

func (k DataKind) String() string {
	switch k {
	case DataCookie:
		return "cookie"
	case DataDNS:
		return "dns"
	case DataTLSSession:
		return "ssl_session"
	default:
		return "unknown"
	}
}

// ParseDataKind maps the names used in configuration files to a DataKind.
func ParseDataKind(name string) (DataKind, bool) {
	switch name {
	case "cookie", "cookies":
		return DataCookie, true
	case "dns":
		return DataDNS, true
	case "ssl_session", "tls", "tls_session":
		return DataTLSSession, true
	}
	return 0, false
}

const (
	defaultDNSTTL       = 60 * time.Second
	defaultDNSCacheSize = 256
	defaultTLSCacheSize = 64
)

type Share struct {
	mu     sync.Mutex
	closed bool
	policy map[DataKind]bool

	jar      http.CookieJar
	dns      *expirable.LRU[string, []string]
	tls      tls.ClientSessionCache
	resolver *net.Resolver

	dnsTTL  time.Duration
	dnsSize int

	dnsHits   atomic.Int64
	dnsMisses atomic.Int64
}

type Option func(*Share)

// WithDNSTTL sets how long resolved addresses stay cached.
func WithDNSTTL(ttl time.Duration) Option {
	return func(s *Share) {
		if ttl > 0 {
			s.dnsTTL = ttl
		}
	}
}

// WithDNSCacheSize bounds the number of cached host names.
func WithDNSCacheSize(n int) Option {
	return func(s *Share) {
		if n > 0 {
			s.dnsSize = n
		}
	}
}

// WithResolver replaces the resolver used on cache misses.
func WithResolver(r *net.Resolver) Option {
	return func(s *Share) {
		if r != nil {
			s.resolver = r
		}
	}
}

// New creates a Share with nothing shared yet.
func New(opts ...Option) *Share {
	s := &Share{
		policy:   map[DataKind]bool{},
		resolver: net.DefaultResolver,
		dnsTTL:   defaultDNSTTL,
		dnsSize:  defaultDNSCacheSize,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetPolicy shares or unshares one kind of data. Unsharing drops what was
// cached for that kind.
func (s *Share) SetPolicy(kind DataKind, shared bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errs.New(errs.KindConfig, "share.SetPolicy", "share is closed")
	}

	switch kind {
	case DataCookie:
		if shared && s.jar == nil {
			jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
			if err != nil {
				return errs.Wrap(errs.KindConfig, "share.SetPolicy", err)
			}
			s.jar = jar
		}
		if !shared {
			s.jar = nil
		}
	case DataDNS:
		if shared && s.dns == nil {
			s.dns = expirable.NewLRU[string, []string](s.dnsSize, nil, s.dnsTTL)
		}
		if !shared {
			s.dns = nil
		}
	case DataTLSSession:
		if shared && s.tls == nil {
			s.tls = tls.NewLRUClientSessionCache(defaultTLSCacheSize)
		}
		if !shared {
			s.tls = nil
		}
	default:
		return errs.New(errs.KindConfig, "share.SetPolicy", "unknown data kind %d", int(kind))
	}
	s.policy[kind] = shared
	return nil
}

// Shared reports whether kind is currently shared.
func (s *Share) Shared(kind DataKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.policy[kind]
}

// Close releases every cache. It is safe to call more than once.
func (s *Share) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.dns != nil {
		s.dns.Purge()
	}
	s.jar, s.dns, s.tls = nil, nil, nil
	s.policy = map[DataKind]bool{}
	return nil
}

func (s *Share) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// CookieJar returns the shared jar, or nil when cookies are not shared.
func (s *Share) CookieJar() http.CookieJar {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.jar == nil {
		return nil
	}
	return s.jar
}

// TLSSessionCache returns the shared session cache, or nil when TLS sessions
// are not shared.
func (s *Share) TLSSessionCache() tls.ClientSessionCache {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.tls == nil {
		return nil
	}
	return s.tls
}

// LookupHost resolves host, going through the cache when DNS is shared.
func (s *Share) LookupHost(ctx context.Context, host string) ([]string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []string{host}, nil
	}

	s.mu.Lock()
	cache, resolver := s.dns, s.resolver
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return nil, errs.New(errs.KindConfig, "share.LookupHost", "share is closed")
	}
	if cache != nil {
		if addrs, ok := cache.Get(host); ok {
			s.dnsHits.Add(1)
			return append([]string(nil), addrs...), nil
		}
	}

	addrs, err := resolver.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		s.dnsMisses.Add(1)
		cache.Add(host, append([]string(nil), addrs...))
	}
	return addrs, nil
}

// DNSStats returns cache hits and misses since creation.
func (s *Share) DNSStats() (hits, misses int64) {
	return s.dnsHits.Load(), s.dnsMisses.Load()
}
