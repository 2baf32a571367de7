package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/kestrel-observatory/mountd/meade"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type commandResult struct {
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
}

type coordsRequest struct {
	RA  float64 `json:"ra"`
	Dec float64 `json:"dec"`
}

type offsetRequest struct {
	DRA  float64 `json:"dra"`
	DDec float64 `json:"ddec"`
}

type altAzRequest struct {
	Alt float64 `json:"alt"`
	Az  float64 `json:"az"`
}

type parkRequest struct {
	Position string `json:"position"`
}

// Router builds the HTTP API. Status endpoints are GETs and open to any
// caller; control endpoints are POSTs gated by the control IP list.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/tel").Subrouter()

	api.HandleFunc("/status", s.statusHandler).Methods(http.MethodGet)
	api.HandleFunc("/ws", s.statusSocketHandler).Methods(http.MethodGet)
	api.HandleFunc("/parks", s.parksHandler).Methods(http.MethodGet)

	api.HandleFunc("/initialize", s.simpleHandler(s.Initialize)).Methods(http.MethodPost)
	api.HandleFunc("/shutdown", s.simpleHandler(s.Shutdown)).Methods(http.MethodPost)
	api.HandleFunc("/stop", s.simpleHandler(s.Stop)).Methods(http.MethodPost)
	api.HandleFunc("/zero", s.simpleHandler(s.Zero)).Methods(http.MethodPost)
	api.HandleFunc("/ping", s.pingHandler).Methods(http.MethodPost)
	api.HandleFunc("/slew", s.coordsHandler(s.SlewRADec)).Methods(http.MethodPost)
	api.HandleFunc("/track", s.coordsHandler(s.TrackRADec)).Methods(http.MethodPost)
	api.HandleFunc("/sync", s.coordsHandler(s.SyncRADec)).Methods(http.MethodPost)
	api.HandleFunc("/offset", s.offsetHandler).Methods(http.MethodPost)
	api.HandleFunc("/altaz", s.altAzHandler).Methods(http.MethodPost)
	api.HandleFunc("/park", s.parkHandler).Methods(http.MethodPost)

	return r
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeResult(w http.ResponseWriter, status meade.CommandStatus) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(commandResult{Status: int(status), Message: status.Message()})
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) simpleHandler(op func(context.Context, string) meade.CommandStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, op(r.Context(), remoteIP(r)))
	}
}

func (s *Server) coordsHandler(op func(context.Context, string, float64, float64) meade.CommandStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req coordsRequest
		if !decode(w, r, &req) {
			return
		}
		writeResult(w, op(r.Context(), remoteIP(r), req.RA, req.Dec))
	}
}

func (s *Server) offsetHandler(w http.ResponseWriter, r *http.Request) {
	var req offsetRequest
	if !decode(w, r, &req) {
		return
	}
	writeResult(w, s.OffsetRADec(r.Context(), remoteIP(r), req.DRA, req.DDec))
}

func (s *Server) altAzHandler(w http.ResponseWriter, r *http.Request) {
	var req altAzRequest
	if !decode(w, r, &req) {
		return
	}
	writeResult(w, s.SlewAltAz(r.Context(), remoteIP(r), req.Alt, req.Az))
}

func (s *Server) parkHandler(w http.ResponseWriter, r *http.Request) {
	var req parkRequest
	if !decode(w, r, &req) {
		return
	}
	writeResult(w, s.Park(r.Context(), remoteIP(r), req.Position))
}

func (s *Server) pingHandler(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.Ping())
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(s.Status())
	if err != nil {
		s.log.Errorw("marshaling status failed", "error", err)
		http.Error(w, "status unavailable", http.StatusInternalServerError)
		return
	}
	w.Write(data)
}

func (s *Server) parksHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(s.Parks())
	if err != nil {
		s.log.Errorw("marshaling parks failed", "error", err)
		http.Error(w, "parks unavailable", http.StatusInternalServerError)
		return
	}
	w.Write(data)
}

// statusSocketHandler streams the status payload over a websocket, pushing
// a fresh copy on every state change. The updates channel is fetched before
// each write so a change landing mid-write still wakes the next wait.
func (s *Server) statusSocketHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Read and discard incoming messages so peer closes are noticed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for {
		updates := s.Updates()
		if err := conn.WriteJSON(s.Status()); err != nil {
			return
		}
		select {
		case <-updates:
		case <-ctx.Done():
			return
		}
	}
}
