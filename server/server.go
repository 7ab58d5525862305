// Package server exposes the pipeline's state over HTTP: a JSON
// snapshot API and a websocket stream of combined overlay frames.
// Presentation stays on the other side of this boundary; consumers
// re-render from the detection lists we publish.
package server

import (
	"net/http"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/julienschmidt/httprouter"
	"github.com/maskcam/maskcam/pkg/scheduler"
	"github.com/maskcam/maskcam/server/www"
)

type Server struct {
	Log       logs.Log
	scheduler *scheduler.Scheduler
	router    *httprouter.Router
	http      *http.Server
}

func NewServer(logger logs.Log, sched *scheduler.Scheduler) *Server {
	s := &Server{
		Log:       logger,
		scheduler: sched,
		router:    httprouter.New(),
	}
	s.router.GET("/api/ping", www.Handle(logger, s.ping))
	s.router.GET("/api/state", www.Handle(logger, s.state))
	s.router.GET("/api/frame/current", www.Handle(logger, s.currentFrame))
	s.router.GET("/api/ws/overlay", s.overlayWebSocket)
	return s
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	s.Log.Infof("Listening on %v", addr)
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown() {
	if s.http != nil {
		s.http.Close()
	}
}

func (s *Server) ping(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, map[string]any{
		"time": time.Now().Unix(),
	})
}

func (s *Server) state(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, s.scheduler.State())
}

func (s *Server) currentFrame(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	displayed := s.scheduler.Displayed()
	if displayed == nil {
		www.PanicNotFound()
	}
	www.SendJSON(w, displayed)
}
