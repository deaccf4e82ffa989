// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"math"
	"net"
	"net/http"
	"net/netip"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// originPolicy lists the browser origins allowed to call the API. An entry
// is an exact origin, "*" or a "*.domain" suffix. The list is replaced on
// reload.
type originPolicy struct {
	mu      sync.RWMutex
	origins []string
}

func newOriginPolicy(origins []string) *originPolicy {
	p := &originPolicy{}
	p.set(origins)
	return p
}

func (p *originPolicy) set(origins []string) {
	p.mu.Lock()
	p.origins = slices.Clone(origins)
	p.mu.Unlock()
}

// match returns the Access-Control-Allow-Origin value for origin, "" when
// it is refused.
func (p *originPolicy) match(origin string) string {
	if origin == "" {
		return ""
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, o := range p.origins {
		switch {
		case o == "*":
			return "*"
		case o == origin:
			return origin
		case strings.HasPrefix(o, "*.") && strings.HasSuffix(origin, o[1:]):
			return origin
		}
	}
	return ""
}

// limiterIdle is how long a client's bucket survives without requests.
const limiterIdle = 10 * time.Minute

// limiter keeps a token bucket per client address. Bursts are twice the
// per-second rate.
type limiter struct {
	mu      sync.Mutex
	every   rate.Limit
	burst   int
	buckets map[string]*bucket
	swept   time.Time
}

type bucket struct {
	*rate.Limiter
	seen time.Time
}

// newLimiter allows perSecond requests per client; zero or less is
// unlimited.
func newLimiter(perSecond float64) *limiter {
	l := &limiter{buckets: make(map[string]*bucket)}
	l.setRate(perSecond)
	return l
}

func (l *limiter) setRate(perSecond float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.every = rate.Inf
	if perSecond > 0 {
		l.every = rate.Limit(perSecond)
	}
	l.burst = max(1, int(math.Ceil(perSecond*2)))
	for _, b := range l.buckets {
		b.SetLimit(l.every)
		b.SetBurst(l.burst)
	}
}

// wait returns how long a request from addr arriving at now must wait. Zero
// lets it through and takes a token.
func (l *limiter) wait(addr string, now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.every == rate.Inf {
		return 0
	}
	if now.Sub(l.swept) >= time.Minute {
		l.swept = now
		for a, b := range l.buckets {
			if now.Sub(b.seen) > limiterIdle {
				delete(l.buckets, a)
			}
		}
	}

	b, ok := l.buckets[addr]
	if !ok {
		b = &bucket{Limiter: rate.NewLimiter(l.every, l.burst)}
		l.buckets[addr] = b
	}
	b.seen = now

	res := b.ReserveN(now, 1)
	if !res.OK() {
		return time.Minute
	}
	d := res.DelayFrom(now)
	if d > 0 {
		res.CancelAt(now)
	}
	return d
}

// trustedProxies may report the client address in X-Forwarded-For or
// X-Real-IP.
var trustedProxies = []netip.Prefix{
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("fc00::/7"),
}

func fromProxy(addr string) bool {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return false
	}
	ip = ip.Unmap()
	for _, p := range trustedProxies {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

// clientAddr is the address a request is rate limited by. Forwarding
// headers only count when the peer is a trusted proxy.
func clientAddr(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(peer); err == nil {
		peer = host
	}
	if !fromProxy(peer) {
		return peer
	}
	forwarded, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
	for _, c := range []string{forwarded, r.Header.Get("X-Real-IP")} {
		c = strings.TrimSpace(c)
		if _, err := netip.ParseAddr(c); err == nil {
			return c
		}
	}
	return peer
}
