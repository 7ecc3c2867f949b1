package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/purifier-controller/db"
	"github.com/thatsimonsguy/purifier-controller/internal/automation"
	"github.com/thatsimonsguy/purifier-controller/internal/model"
)

// Automation is what the API needs from the automation runner.
type Automation interface {
	Automation() automation.Toggle
	SetAutomation(enabled bool) automation.Toggle
	Config() model.AutomationConfig
	SetConfig(cfg model.AutomationConfig) error
	State() automation.State
	RunCycle(ctx context.Context, reading *float64) automation.Result
	Properties() model.Properties
	History(limit int) ([]db.Cycle, error)
	Overrides(limit int) ([]db.Override, error)
}

type Server struct {
	automation Automation
	httpServer *http.Server
}

type AutomationRequest struct {
	Automation *bool `json:"automation"`
}

type RunRequest struct {
	Sensor *float64 `json:"sensor"`
}

type StateResponse struct {
	Enabled    bool           `json:"enabled"`
	Status     model.Status   `json:"status"`
	LowerBound float64        `json:"lower_bound"`
	UpperBound float64        `json:"upper_bound"`
	Pending    model.Commands `json:"pending"`
	PauseEnd   *time.Time     `json:"pause_end,omitempty"`
}

type HistoryResponse struct {
	Cycles []db.Cycle `json:"cycles"`
}

type OverridesResponse struct {
	Overrides []db.Override `json:"overrides"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

const defaultHistoryLimit = 50
const maxHistoryLimit = 1000

func NewServer(a Automation) *Server {
	return &Server{automation: a}
}

// Handler returns the routed API with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/automation", s.handleAutomation)
	mux.HandleFunc("/api/automation/config", s.handleConfig)
	mux.HandleFunc("/api/automation/state", s.handleState)
	mux.HandleFunc("/api/automation/run", s.handleRun)
	mux.HandleFunc("/api/automation/history", s.handleHistory)
	mux.HandleFunc("/api/automation/overrides", s.handleOverrides)
	mux.HandleFunc("/api/appliance/properties", s.handleProperties)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		mux.ServeHTTP(w, r)
	})
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("address", addr).Msg("Starting REST API server")

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleAutomation(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.automation.Automation())
	case http.MethodPut:
		s.setAutomation(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) setAutomation(w http.ResponseWriter, r *http.Request) {
	var req AutomationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Automation == nil {
		s.writeError(w, http.StatusBadRequest, `Invalid JSON payload, expected {"automation": true|false}`)
		return
	}

	toggle := s.automation.SetAutomation(*req.Automation)
	log.Info().Bool("enabled", *req.Automation).Msg("Automation toggled via API")
	s.writeJSON(w, http.StatusOK, toggle)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.automation.Config())
	case http.MethodPut:
		s.setConfig(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) setConfig(w http.ResponseWriter, r *http.Request) {
	var cfg model.AutomationConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	if err := s.automation.SetConfig(cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log.Info().Int("switch_points", len(cfg.SwitchPoints)).Msg("Automation config updated via API")
	s.writeJSON(w, http.StatusOK, s.automation.Config())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	st := s.automation.State()
	resp := StateResponse{
		Enabled:    st.Enabled,
		Status:     st.Status,
		LowerBound: st.Lower,
		UpperBound: st.Upper,
		Pending:    st.Pending,
	}
	if !st.PauseEnd.IsZero() {
		resp.PauseEnd = &st.PauseEnd
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	res := s.automation.RunCycle(r.Context(), req.Sensor)
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cycles, err := s.automation.History(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read automation history")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, HistoryResponse{Cycles: cycles})
}

func (s *Server) handleOverrides(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	overrides, err := s.automation.Overrides(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read override history")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, OverridesResponse{Overrides: overrides})
}

func (s *Server) handleProperties(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.automation.Properties())
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > maxHistoryLimit {
		return 0, fmt.Errorf("Invalid limit. Must be between 1 and %d", maxHistoryLimit)
	}
	return limit, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
