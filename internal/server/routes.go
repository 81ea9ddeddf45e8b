package server

import (
	"net/http"

	"github.com/hugorneri/RPA-DCTFWEB/internal/handlers"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Control page
	mux.HandleFunc("/", s.app.PageHandler.ServePage("index.html"))

	// Progress stream
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - run control
	mux.HandleFunc("/api/run", s.app.RunHandler.StartHandler)                 // POST - start a run
	mux.HandleFunc("/api/login/confirm", s.app.RunHandler.ConfirmLoginHandler) // POST - operator finished the manual login
	mux.HandleFunc("/api/stop", s.app.RunHandler.StopHandler)                 // POST - cooperative stop
	mux.HandleFunc("/api/status", s.app.RunHandler.StatusHandler)             // GET - run state + ledger

	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return mux
}
