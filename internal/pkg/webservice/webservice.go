// Package webservice exposes the twin over HTTP: read accessors for
// assets, metrics and fault history, the operator control endpoint, and
// a websocket feed of per-tick snapshots.
package webservice

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/velridge/substation-twin/internal/pkg/control"
	"github.com/velridge/substation-twin/internal/pkg/msg"
	"github.com/velridge/substation-twin/internal/pkg/twin"
)

// Service routes HTTP traffic to one twin instance.
type Service struct {
	twin     *twin.Twin
	gateway  control.Gateway
	upgrader websocket.Upgrader
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type faultRequest struct {
	FaultType     string `json:"fault_type"`
	FaultLocation string `json:"fault_location"`
}

// New returns a Service for the twin.
func New(tw *twin.Twin) Service {
	return Service{
		twin:    tw,
		gateway: control.NewGateway(tw.Registry()),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ListenAndServe blocks serving the twin API on addr.
func (s Service) ListenAndServe(addr string) error {
	log.Println("[Webservice] listening on", addr)
	return http.ListenAndServe(addr, makeRouter(s))
}

func makeRouter(s Service) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/", s.bannerHandler).Methods("GET")
	router.HandleFunc("/api/assets", s.assetsHandler).Methods("GET")
	router.HandleFunc("/api/assets/{id}", s.assetHandler).Methods("GET")
	router.HandleFunc("/api/metrics", s.metricsHandler).Methods("GET")
	router.HandleFunc("/api/control", s.controlHandler).Methods("POST")
	router.HandleFunc("/api/faults", s.faultsHandler).Methods("GET")
	router.HandleFunc("/api/faults/analyze", s.analyzeFaultHandler).Methods("POST")
	router.HandleFunc("/api/simulation/start", s.startHandler).Methods("POST")
	router.HandleFunc("/api/simulation/stop", s.stopHandler).Methods("POST")
	router.HandleFunc("/ws", s.websocketHandler)
	return router
}

func (s Service) bannerHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Substation Digital Twin API",
		"status":  "running",
		"endpoints": map[string]string{
			"assets":    "/api/assets",
			"metrics":   "/api/metrics",
			"control":   "/api/control",
			"faults":    "/api/faults",
			"websocket": "/ws",
		},
	})
}

func (s Service) assetsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.twin.Registry().Snapshot())
}

func (s Service) assetHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	a, err := s.twin.Registry().Get(vars["id"])
	if err != nil {
		writeJSON(w, http.StatusNotFound, statusResponse{"error", err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s Service) metricsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.twin.Metrics().Snapshot())
}

func (s Service) controlHandler(w http.ResponseWriter, r *http.Request) {
	cmd := control.Command{}
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{"error", "malformed command"})
		return
	}

	result, err := s.gateway.Apply(cmd, time.Now())
	if err != nil {
		code := http.StatusBadRequest
		if control.IsNotFound(err) {
			code = http.StatusNotFound
		}
		result.Message = err.Error()
		writeJSON(w, code, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s Service) faultsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.twin.Faults().List())
}

func (s Service) analyzeFaultHandler(w http.ResponseWriter, r *http.Request) {
	req := faultRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FaultType == "" || req.FaultLocation == "" {
		writeJSON(w, http.StatusBadRequest, statusResponse{"error", "fault_type and fault_location required"})
		return
	}
	rec := s.twin.AnalyzeFault(req.FaultType, req.FaultLocation, time.Now())
	writeJSON(w, http.StatusOK, rec)
}

func (s Service) startHandler(w http.ResponseWriter, r *http.Request) {
	s.twin.Start()
	writeJSON(w, http.StatusOK, statusResponse{"success", "Simulation started"})
}

func (s Service) stopHandler(w http.ResponseWriter, r *http.Request) {
	s.twin.Stop()
	writeJSON(w, http.StatusOK, statusResponse{"success", "Simulation stopped"})
}

// websocketHandler attaches the connection as a broadcast subscriber.
// The writer goroutine drains the subscription; a failed write drops
// only this subscriber.
func (s Service) websocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("[Webservice] websocket upgrade:", err)
		return
	}

	pid, err := uuid.NewUUID()
	if err != nil {
		conn.Close()
		return
	}
	ch, err := s.twin.Subscribe(pid, msg.Update)
	if err != nil {
		conn.Close()
		return
	}

	go func() {
		defer conn.Close()
		for m := range ch {
			if err := conn.WriteJSON(m.Payload()); err != nil {
				s.twin.Unsubscribe(pid)
				return
			}
		}
	}()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.twin.Unsubscribe(pid)
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Println("[Webservice] malformed JSON:", err)
	}
}
