package adapters

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cenk/backoff"
	"github.com/rs/dnscache"
	circuit "github.com/rubyist/circuitbreaker"
)

const dnsRefreshInterval = 5 * time.Minute

// cachingResolver refreshes cached entries on the first lookup after the
// refresh interval has passed.
type cachingResolver struct {
	resolver    *dnscache.Resolver
	mu          sync.Mutex
	lastRefresh time.Time
}

func newCachingResolver() *cachingResolver {
	return &cachingResolver{resolver: &dnscache.Resolver{}, lastRefresh: time.Now()}
}

func (r *cachingResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	r.mu.Lock()
	if time.Since(r.lastRefresh) > dnsRefreshInterval {
		r.resolver.Refresh(true)
		r.lastRefresh = time.Now()
	}
	r.mu.Unlock()
	return r.resolver.LookupHost(ctx, host)
}

// newHTTPClient returns a client whose dialer resolves through the DNS cache.
func newHTTPClient(timeout time.Duration) *http.Client {
	resolver := newCachingResolver()
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				host, port, err := net.SplitHostPort(addr)
				if err != nil {
					return nil, err
				}
				if ip := net.ParseIP(host); ip != nil {
					return dialer.DialContext(ctx, network, addr)
				}
				ips, err := resolver.LookupHost(ctx, host)
				if err != nil {
					return nil, err
				}
				var lastErr error
				for _, ip := range ips {
					conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
					if err == nil {
						return conn, nil
					}
					lastErr = err
				}
				return nil, fmt.Errorf("failed to dial any address of %s: %w", host, lastErr)
			},
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// hostBreakers hands out one circuit breaker per upstream host.
type hostBreakers struct {
	mu        sync.RWMutex
	breakers  map[string]*circuit.Breaker
	threshold int64
	cooldown  time.Duration
}

func newHostBreakers(threshold int64, cooldown time.Duration) *hostBreakers {
	return &hostBreakers{
		breakers:  map[string]*circuit.Breaker{},
		threshold: threshold,
		cooldown:  cooldown,
	}
}

func (h *hostBreakers) get(host string) *circuit.Breaker {
	h.mu.RLock()
	breaker, ok := h.breakers[host]
	h.mu.RUnlock()
	if ok {
		return breaker
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if breaker, ok := h.breakers[host]; ok {
		return breaker
	}
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = h.cooldown
	expBackoff.MaxInterval = 10 * h.cooldown
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()
	breaker = circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(h.threshold),
	})
	h.breakers[host] = breaker
	return breaker
}
