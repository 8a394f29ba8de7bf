// Copyright 2016 Qubit Digital Ltd.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Package adminhttp serves the process's Prometheus metrics and a
// Grafana SimpleJSON datasource over the admin listen address,
// supplementing the core TCP query protocol per SPEC_FULL.md.
// Grounded on the `http.Handle("/metrics", promhttp.Handler())`
// bring-up shared by cmd/logs/server, cmd/logs/reader, and
// cmd/logreader's main.go files.
package adminhttp

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	datasource *Datasource
	httpServer *http.Server
}

// New builds the admin HTTP server bound to addr. zones/stats are
// typically the same *engine.Engine. It does not start listening
// until Serve is called.
func New(addr string, zones ZoneLister, stats StatsReader, windowSize time.Duration) *Server {
	s := &Server{
		datasource: NewDatasource(zones, stats, windowSize),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", s.handleGrafanaPing)
	mux.HandleFunc("/search", s.handleGrafanaSearch)
	mux.HandleFunc("/query", s.handleGrafanaQuery)

	s.httpServer = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Serve listens until ctx is cancelled, then shuts down the HTTP
// server gracefully.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
