// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package httputil

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/matrix-org/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/hyperclast/pagesync/setup/config"
	"github.com/hyperclast/pagesync/workspaceapi/api"
)

var (
	rateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pagesync",
			Subsystem: "workspaceapi",
			Name:      "rate_limit_rejections",
			Help:      "Total number of requests rejected by rate limiting",
		},
		[]string{"endpoint"},
	)
	rateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pagesync",
			Subsystem: "workspaceapi",
			Name:      "rate_limit_allowed",
			Help:      "Total number of requests allowed by rate limiting",
		},
		[]string{"endpoint"},
	)
)

var registerRateLimiterMetrics sync.Once

func init() {
	registerRateLimiterMetrics.Do(func() {
		prometheus.MustRegister(rateLimitRejections, rateLimitAllowed)
	})
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimits is a token-bucket limiter over REST requests, keyed by user id
// when authenticated and client IP otherwise.
type RateLimits struct {
	limits        map[string]*limiterEntry
	mutex         sync.RWMutex
	enabled       bool
	threshold     int64
	cooloff       time.Duration
	exemptUserIDs map[int64]struct{}
	exemptIPs     []net.IP
	exemptCIDRs   []*net.IPNet
	cleanupDone   chan struct{}
}

func NewRateLimits(cfg *config.HTTPRateLimiting) *RateLimits {
	l := &RateLimits{
		limits:        make(map[string]*limiterEntry),
		enabled:       cfg.Enabled,
		threshold:     cfg.Threshold,
		cooloff:       time.Duration(cfg.CooloffMS) * time.Millisecond,
		exemptUserIDs: map[int64]struct{}{},
		cleanupDone:   make(chan struct{}),
	}
	for _, userID := range cfg.ExemptUserIDs {
		l.exemptUserIDs[userID] = struct{}{}
	}
	for _, ip := range cfg.ExemptIPAddresses {
		if parsedIP := net.ParseIP(ip); parsedIP != nil {
			l.exemptIPs = append(l.exemptIPs, parsedIP)
			continue
		}
		if _, network, err := net.ParseCIDR(ip); err == nil {
			l.exemptCIDRs = append(l.exemptCIDRs, network)
		}
	}
	if l.enabled {
		go l.clean()
	}
	return l
}

// clean drops limiter entries that have not been touched for a minute so
// one-off callers do not accumulate forever.
func (l *RateLimits) clean() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-l.cleanupDone:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-time.Minute)
			l.mutex.Lock()
			for key, entry := range l.limits {
				if entry.lastSeen.Before(cutoff) {
					delete(l.limits, key)
				}
			}
			l.mutex.Unlock()
		}
	}
}

// Stop terminates the cleanup goroutine. Safe to call more than once.
func (l *RateLimits) Stop() {
	if !l.enabled {
		return
	}
	select {
	case <-l.cleanupDone:
	default:
		close(l.cleanupDone)
	}
}

// Limit returns a 429 response if the caller has exhausted their bucket,
// nil otherwise. user may be nil for unauthenticated requests.
func (l *RateLimits) Limit(req *http.Request, user *api.User) *util.JSONResponse {
	endpoint := endpointLabel(req)
	if !l.enabled {
		rateLimitAllowed.WithLabelValues(endpoint).Inc()
		return nil
	}

	var caller string
	var requestIPAddr net.IP
	if ip := requestIP(req); ip != nil {
		requestIPAddr = ip
		caller = ip.String()
	} else if req != nil {
		caller = req.RemoteAddr
	}
	if user != nil {
		if _, ok := l.exemptUserIDs[user.ID]; ok {
			rateLimitAllowed.WithLabelValues(endpoint).Inc()
			return nil
		}
		caller = "user/" + strconv.FormatInt(user.ID, 10)
	}

	if l.isExemptIP(requestIPAddr) {
		rateLimitAllowed.WithLabelValues(endpoint).Inc()
		return nil
	}

	if l.getLimiter(caller).Allow() {
		rateLimitAllowed.WithLabelValues(endpoint).Inc()
		return nil
	}

	rateLimitRejections.WithLabelValues(endpoint).Inc()
	resp := LimitExceededError()
	return &resp
}

// getLimiter retrieves or creates the bucket for the given key. The bucket
// refills at threshold tokens per cooloff period and holds at most
// threshold tokens.
func (l *RateLimits) getLimiter(key string) *rate.Limiter {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if entry, ok := l.limits[key]; ok {
		entry.lastSeen = time.Now()
		return entry.limiter
	}

	burst := int(l.threshold)
	if burst < 1 {
		burst = 1
	}
	perSecond := rate.Limit(float64(l.threshold) * float64(time.Second) / float64(l.cooloff))
	limiter := rate.NewLimiter(perSecond, burst)
	l.limits[key] = &limiterEntry{limiter: limiter, lastSeen: time.Now()}
	return limiter
}

func endpointLabel(req *http.Request) string {
	if req == nil || req.URL == nil {
		return "unknown"
	}
	return req.URL.Path
}

// requestIP extracts the client IP. X-Forwarded-For is only trusted when
// the direct peer is loopback, i.e. a reverse proxy on the same host;
// anything else could trivially spoof the header.
func requestIP(req *http.Request) net.IP {
	if req == nil {
		return nil
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	remoteIP := net.ParseIP(strings.TrimSpace(host))
	if remoteIP == nil {
		return nil
	}

	forwardedFor := req.Header.Get("X-Forwarded-For")
	if forwardedFor != "" {
		if !remoteIP.IsLoopback() {
			logrus.WithFields(logrus.Fields{
				"remote_addr":     remoteIP.String(),
				"x_forwarded_for": forwardedFor,
			}).Debug("Ignoring X-Forwarded-For from non-loopback connection")
			return remoteIP
		}
		for _, part := range strings.Split(forwardedFor, ",") {
			part = strings.TrimSpace(part)
			if ip := net.ParseIP(part); ip != nil && !ip.IsLoopback() {
				return ip
			}
		}
	}
	return remoteIP
}

func (l *RateLimits) isExemptIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, exemptIP := range l.exemptIPs {
		if exemptIP.Equal(ip) {
			return true
		}
	}
	for _, network := range l.exemptCIDRs {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
