package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var watchUpgrader = websocket.Upgrader{
	// The debug stream is operator tooling; origin checks stay permissive.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// runMetricsEndpoint serves the Prometheus text exposition on /metrics and a
// live statistics stream for browsers on /debug/watch. Anything else is 404.
func (s *Server) runMetricsEndpoint() {
	mux := http.NewServeMux()
	promHandler := promhttp.Handler()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Connection", "close")
		promHandler.ServeHTTP(w, r)
	})
	mux.HandleFunc("/debug/watch", s.handleWatch)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.MetricsPort),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		<-s.done
		_ = srv.Close()
	}()
	s.log.Infow("metrics endpoint started", "port", s.cfg.MetricsPort)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.log.Errorw("metrics endpoint failed", "err", err)
	}
}

// watchStats is one frame of the live debug stream.
type watchStats struct {
	Time       string `json:"time"`
	QueueDepth int    `json:"queue_depth"`
	Sessions   int    `json:"sessions"`
	QueuedBots int    `json:"queued_bots"`
}

// handleWatch streams registry statistics to an observing browser once per
// second until the peer goes away or the server shuts down.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := watchUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debugw("watch upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}
		queue := s.reg.SnapshotQueue()
		bots := 0
		for _, q := range queue {
			if q.IsBot {
				bots++
			}
		}
		stats := watchStats{
			Time:       time.Now().UTC().Format(time.RFC3339),
			QueueDepth: len(queue),
			Sessions:   len(s.reg.SnapshotAllSessions()),
			QueuedBots: bots,
		}
		if err := conn.WriteJSON(stats); err != nil {
			return
		}
	}
}
