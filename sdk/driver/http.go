// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/errs"
	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/share"
)

const DefaultUserAgent = "digitalhub-transfer/1"

type httpDriver struct{}

// NewHTTP returns the net/http backed driver for http and https URLs.
func NewHTTP() Driver { return httpDriver{} }

func (httpDriver) Schemes() []string { return []string{"http", "https"} }

func (httpDriver) NewSession() Session { return &httpSession{} }

type transportKey struct {
	verifyPeer     bool
	http2          bool
	connectTimeout time.Duration
	share          *share.Share
	dnsShared      bool
	tlsShared      bool
}

// httpSession owns the connection pool of one handle. The pool survives
// across transfers of the same handle as long as the transport settings do
// not change.
type httpSession struct {
	mu        sync.Mutex
	closed    bool
	key       transportKey
	transport *http.Transport
	jar       http.CookieJar
	tlsCache  tls.ClientSessionCache
}

func (s *httpSession) transportFor(req *Request) (*http.Transport, http.CookieJar, error) {
	key := transportKey{
		verifyPeer:     req.VerifyPeer,
		http2:          req.HTTP2,
		connectTimeout: req.ConnectTimeout,
		share:          req.Share,
	}
	var sharedJar http.CookieJar
	var sharedTLS tls.ClientSessionCache
	if req.Share != nil {
		key.dnsShared = req.Share.Shared(share.DataDNS)
		sharedTLS = req.Share.TLSSessionCache()
		key.tlsShared = sharedTLS != nil
		sharedJar = req.Share.CookieJar()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, errors.New("session closed")
	}

	jar := sharedJar
	if jar == nil {
		if s.jar == nil {
			own, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
			if err != nil {
				return nil, nil, err
			}
			s.jar = own
		}
		jar = s.jar
	}

	if s.transport != nil && s.key == key {
		return s.transport, jar, nil
	}
	if s.transport != nil {
		s.transport.CloseIdleConnections()
	}

	tlsCache := sharedTLS
	if tlsCache == nil {
		if s.tlsCache == nil {
			s.tlsCache = tls.NewLRUClientSessionCache(0)
		}
		tlsCache = s.tlsCache
	}
	s.transport = newHTTPTransport(key, req.Share, tlsCache)
	s.key = key
	return s.transport, jar, nil
}

func newHTTPTransport(key transportKey, sh *share.Share, cache tls.ClientSessionCache) *http.Transport {
	connectTimeout := key.connectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	dialer := &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}

	dial := dialer.DialContext
	if key.dnsShared && sh != nil {
		dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			addrs, err := sh.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			var lastErr error
			for _, a := range addrs {
				conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(a, port))
				if err == nil {
					return conn, nil
				}
				lastErr = err
			}
			if lastErr == nil {
				lastErr = &net.DNSError{Err: "no addresses", Name: host, IsNotFound: true}
			}
			return nil, lastErr
		}
	}

	t := &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: dial,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !key.verifyPeer,
			ClientSessionCache: cache,
		},
		ForceAttemptHTTP2:     key.http2,
		MaxIdleConns:          32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   connectTimeout,
		ExpectContinueTimeout: time.Second,
	}
	if !key.http2 {
		t.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	}
	return t
}

func (s *httpSession) Open(ctx context.Context, req *Request, notify func()) (Conn, error) {
	const op = "http.Open"

	if req.URL == nil || req.URL.Host == "" {
		return nil, errs.Transport(errs.CodeURLMalformed, op, nil)
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return nil, errs.Transport(errs.CodeUnsupportedProtocol, op, nil)
	}

	transport, jar, err := s.transportFor(req)
	if err != nil {
		return nil, errs.Transport(errs.CodeUnknown, op, err)
	}

	st := newStream(ctx, notify)

	var body io.Reader
	var contentLength int64 = -1
	switch {
	case req.Upload != nil:
		body = uploadReader(st.ctx, req)
		contentLength = req.UploadSize
	case req.Body != nil:
		body = bytes.NewReader(req.Body)
		contentLength = int64(len(req.Body))
	}

	hreq, err := http.NewRequestWithContext(st.ctx, resolveMethod(req), req.URL.String(), body)
	if err != nil {
		st.Close()
		return nil, errs.Transport(errs.CodeURLMalformed, op, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	if hreq.Header.Get("User-Agent") == "" {
		ua := req.UserAgent
		if ua == "" {
			ua = DefaultUserAgent
		}
		hreq.Header.Set("User-Agent", ua)
	}
	if req.Upload == nil && req.Body != nil && hreq.Header.Get("Content-Type") == "" {
		hreq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if body != nil && contentLength >= 0 {
		hreq.ContentLength = contentLength
	}

	redirects := 0
	client := &http.Client{
		Transport: transport,
		Jar:       jar,
		Timeout:   req.Timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if !req.FollowRedirects {
				return http.ErrUseLastResponse
			}
			if req.MaxRedirects >= 0 && len(via) > req.MaxRedirects {
				return errTooManyRedirects
			}
			redirects = len(via)
			return nil
		},
	}

	st.run(func(ctx context.Context) {
		resp, err := client.Do(hreq)
		if err != nil {
			st.finish(transportError(op, err))
			return
		}
		defer resp.Body.Close()

		meta := &Response{
			StatusCode:    resp.StatusCode,
			Proto:         resp.Proto,
			Header:        resp.Header.Clone(),
			ContentLength: resp.ContentLength,
			ContentType:   resp.Header.Get("Content-Type"),
			EffectiveURL:  resp.Request.URL.String(),
			RedirectCount: redirects,
		}
		if !st.emit(Event{Kind: EventHeader, Response: meta}) {
			return
		}
		if err := st.pump(resp.Body, bufferSize(req)); err != nil {
			st.finish(transportError(op, err))
			return
		}
		st.finish(nil)
	})
	return st, nil
}

func (s *httpSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.transport != nil {
		s.transport.CloseIdleConnections()
		s.transport = nil
	}
	s.jar = nil
	return nil
}

func resolveMethod(req *Request) string {
	switch {
	case req.Method != "":
		return req.Method
	case req.NoBody:
		return http.MethodHead
	case req.Upload != nil:
		return http.MethodPut
	case req.Body != nil:
		return http.MethodPost
	default:
		return http.MethodGet
	}
}
