// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package httputil

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gorilla/mux"
	"github.com/matrix-org/util"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Route prefixes mounted on the external router.
const (
	PublicWorkspaceAPIPathPrefix = "/api/"
	PublicCollabPathPrefix       = "/ws/"
)

// Routers group the per-surface mux routers that components register their
// handlers on.
type Routers struct {
	Workspace *mux.Router
	Collab    *mux.Router
}

func NewRouters() Routers {
	return Routers{
		Workspace: mux.NewRouter().SkipClean(true).PathPrefix(PublicWorkspaceAPIPathPrefix).Subrouter().UseEncodedPath(),
		Collab:    mux.NewRouter().SkipClean(true).PathPrefix(PublicCollabPathPrefix).Subrouter().UseEncodedPath(),
	}
}

var requestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "pagesync",
		Subsystem: "workspaceapi",
		Name:      "http_request_duration_seconds",
		Help:      "Time spent serving HTTP requests",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"handler", "method", "code"},
)

var registerRequestDuration sync.Once

func init() {
	registerRequestDuration.Do(func() {
		prometheus.MustRegister(requestDuration)
	})
}

// MakeExternalAPI turns a util.JSONRequestHandler function into an
// http.Handler with logging, tracing, panic capture and duration metrics.
// All public REST endpoints are wrapped with this.
func MakeExternalAPI(metricsName string, f func(*http.Request) util.JSONResponse) http.Handler {
	h := func(w http.ResponseWriter, req *http.Request) {
		span := opentracing.StartSpan(metricsName)
		defer span.Finish()
		req = req.WithContext(opentracing.ContextWithSpan(req.Context(), span))

		defer func() {
			if r := recover(); r != nil {
				sentry.CurrentHub().Recover(r)
				sentry.Flush(time.Second * 2)
				panic(r)
			}
		}()

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		util.MakeJSONAPI(util.NewJSONRequestHandler(f)).ServeHTTP(recorder, req)
		requestDuration.WithLabelValues(metricsName, req.Method, strconv.Itoa(recorder.status)).
			Observe(time.Since(start).Seconds())
	}
	return http.HandlerFunc(h)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// BasicAuth is used for authorizing the /metrics endpoint.
type BasicAuth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// WrapHandlerInBasicAuth adds basic auth to a handler. Only used for
// /metrics. Auth is only enforced when both a username and a password are
// configured.
func WrapHandlerInBasicAuth(h http.Handler, b BasicAuth) http.HandlerFunc {
	if h == nil {
		logrus.Panic("Handler is nil")
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if b.Username != "" && b.Password != "" {
			user, pass, ok := r.BasicAuth()
			if !ok || user != b.Username || pass != b.Password {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
		}
		h.ServeHTTP(w, r)
	}
}

// HealthHandler answers load balancer checks.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
