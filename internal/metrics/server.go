// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

type MetricsServer struct {
	server         *http.Server
	manager        *MetricsManager
	basicAuthUsers map[string]string
}

// NewMetricsServer builds the /metrics listener. basicAuthUsers is a comma
// separated list of user:password pairs; passwords may be bcrypt hashes.
func NewMetricsServer(manager *MetricsManager, host string, port int, basicAuthUsers string) *MetricsServer {
	users := parseBasicAuthUsers(basicAuthUsers)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	if len(users) > 0 {
		r.Use(BasicAuth("metrics", users))
	}

	r.Handle("/metrics", promhttp.HandlerFor(manager.GetRegistry(), promhttp.HandlerOpts{
		EnableOpenMetrics: false,
	}))

	return &MetricsServer{
		server: &http.Server{
			Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
		manager:        manager,
		basicAuthUsers: users,
	}
}

func parseBasicAuthUsers(value string) map[string]string {
	users := make(map[string]string)
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		user, pass, ok := strings.Cut(entry, ":")
		if !ok || user == "" {
			log.Warn().Msg("Skipping invalid metrics basic auth entry")
			continue
		}
		users[user] = pass
	}
	return users
}

func (s *MetricsServer) ListenAndServe() error {
	log.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	return s.server.ListenAndServe()
}

func (s *MetricsServer) Stop() error {
	return s.server.Close()
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// BasicAuth guards a handler with HTTP basic auth. Stored passwords that look
// like bcrypt hashes are compared with bcrypt, everything else in constant time.
func BasicAuth(realm string, users map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || !checkPassword(users, user, pass) {
				w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func checkPassword(users map[string]string, user, pass string) bool {
	stored, ok := users[user]
	if !ok {
		return false
	}
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(pass)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(pass)) == 1
}
