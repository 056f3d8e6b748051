package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	votingengine "sntportal/contexts/governance/voting-engine"
	"sntportal/contexts/governance/voting-engine/domain/entities"
	votingerrors "sntportal/contexts/governance/voting-engine/domain/errors"
	votinghttp "sntportal/contexts/governance/voting-engine/transport/http"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "sntportal/internal/platform/httpserver/docs"
)

const logModule = "internal/platform/httpserver"

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

type Server struct {
	mux     *http.ServeMux
	logger  *slog.Logger
	addr    string
	voting  votingengine.Module
	metrics http.Handler
}

// New builds the API server. A nil metrics handler leaves /metrics unrouted.
func New(
	voting votingengine.Module,
	metrics http.Handler,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:     http.NewServeMux(),
		logger:  logger,
		addr:    addr,
		voting:  voting,
		metrics: metrics,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", logModule,
		"layer", "platform",
		"addr", s.addr,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("http server stopping",
		"event", "http_server_stopping",
		"module", logModule,
		"layer", "platform",
	)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("POST /api/v1/votings", s.handleCreateVoting)
	s.mux.HandleFunc("GET /api/v1/votings", s.handleListVotings)
	s.mux.HandleFunc("POST /api/v1/votings/reconcile", s.handleReconcile)
	s.mux.HandleFunc("GET /api/v1/votings/{voting_id}", s.handleGetVoting)
	s.mux.HandleFunc("DELETE /api/v1/votings/{voting_id}", s.handleDeleteVoting)
	s.mux.HandleFunc("POST /api/v1/votings/{voting_id}/votes", s.handleCastVote)
	s.mux.HandleFunc("GET /api/v1/votings/{voting_id}/results", s.handleResults)
	s.mux.HandleFunc("GET /api/v1/votings/{voting_id}/export.csv", s.handleExport)
	s.mux.HandleFunc("POST /api/v1/votings/{voting_id}/archive", s.handleArchive)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateVoting godoc
// @Summary Create a voting
// @Tags votings
// @Accept json
// @Produce json
// @Param Idempotency-Key header string true "client supplied key"
// @Param request body votinghttp.CreateVotingRequest true "ballot"
// @Success 201 {object} votinghttp.CreateVotingResponse
// @Failure 400 {object} votinghttp.ErrorResponse
// @Router /votings [post]
func (s *Server) handleCreateVoting(w http.ResponseWriter, r *http.Request) {
	var req votinghttp.CreateVotingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.voting.Handler.CreateVotingHandler(
		r.Context(),
		resolveVoter(r),
		strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		req,
	)
	if err != nil {
		s.writeVotingDomainError(w, r, err)
		return
	}
	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

// handleListVotings godoc
// @Summary List votings by state
// @Tags votings
// @Produce json
// @Param state query string false "active, completed or archived"
// @Success 200 {object} votinghttp.VotingListResponse
// @Router /votings [get]
func (s *Server) handleListVotings(w http.ResponseWriter, r *http.Request) {
	resp, err := s.voting.Handler.ListVotingsHandler(r.Context(), r.URL.Query().Get("state"))
	if err != nil {
		s.writeVotingDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetVoting(w http.ResponseWriter, r *http.Request) {
	resp, err := s.voting.Handler.GetVotingHandler(r.Context(), r.PathValue("voting_id"), resolveVoter(r))
	if err != nil {
		s.writeVotingDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCastVote godoc
// @Summary Cast a vote
// @Tags votes
// @Accept json
// @Produce json
// @Param voting_id path string true "voting id"
// @Param request body votinghttp.CastVoteRequest true "selected option indices"
// @Success 201 {object} votinghttp.CastVoteResponse
// @Failure 403 {object} votinghttp.ErrorResponse
// @Failure 409 {object} votinghttp.ErrorResponse
// @Router /votings/{voting_id}/votes [post]
func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	var req votinghttp.CastVoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.voting.Handler.CastVoteHandler(r.Context(), r.PathValue("voting_id"), resolveVoter(r), req)
	if err != nil {
		s.writeVotingDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	resp, err := s.voting.Handler.ResultsHandler(r.Context(), r.PathValue("voting_id"), resolveVoter(r))
	if err != nil {
		s.writeVotingDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleExport godoc
// @Summary Export voting results as CSV
// @Tags votings
// @Produce text/csv
// @Param voting_id path string true "voting id"
// @Success 200 {file} file
// @Router /votings/{voting_id}/export.csv [get]
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	filename, err := s.voting.Handler.ExportResultsHandler(r.Context(), r.PathValue("voting_id"), resolveVoter(r), &buf)
	if err != nil {
		s.writeVotingDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	resp, err := s.voting.Handler.ArchiveVotingHandler(r.Context(), r.PathValue("voting_id"), resolveVoter(r))
	if err != nil {
		s.writeVotingDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteVoting(w http.ResponseWriter, r *http.Request) {
	resp, err := s.voting.Handler.DeleteVotingHandler(r.Context(), r.PathValue("voting_id"), resolveVoter(r))
	if err != nil {
		s.writeVotingDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReconcile godoc
// @Summary Close every due voting and send pending notifications
// @Tags votings
// @Produce json
// @Success 200 {object} votinghttp.SweepResponse
// @Failure 403 {object} votinghttp.ErrorResponse
// @Router /votings/reconcile [post]
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	resp, err := s.voting.Handler.SweepHandler(r.Context(), resolveVoter(r))
	if err != nil {
		s.writeVotingDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// resolveVoter reads the identity asserted by the upstream gateway.
func resolveVoter(r *http.Request) entities.Voter {
	isOwner, _ := strconv.ParseBool(strings.TrimSpace(r.Header.Get("X-User-Owner")))
	return entities.Voter{
		Email:      entities.NormalizeEmail(r.Header.Get("X-User-Email")),
		Role:       entities.ParseRole(r.Header.Get("X-User-Role")),
		IsOwner:    isOwner,
		FirstName:  strings.TrimSpace(r.Header.Get("X-User-First-Name")),
		LastName:   strings.TrimSpace(r.Header.Get("X-User-Last-Name")),
		PlotNumber: strings.TrimSpace(r.Header.Get("X-User-Plot")),
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeVotingError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return false
	}
	return true
}

func (s *Server) writeVotingDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, votingerrors.ErrNotAuthenticated):
		writeVotingError(w, http.StatusUnauthorized, "not_authenticated", err.Error())
	case errors.Is(err, votingerrors.ErrNotMember),
		errors.Is(err, votingerrors.ErrOwnersOnly):
		writeVotingError(w, http.StatusForbidden, votingerrors.ReasonCode(err), err.Error())
	case errors.Is(err, votingerrors.ErrForbidden):
		writeVotingError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, votingerrors.ErrVotingNotFound):
		writeVotingError(w, http.StatusNotFound, "voting_not_found", err.Error())
	case errors.Is(err, votingerrors.ErrVotingClosed):
		writeVotingError(w, http.StatusConflict, "voting_closed", err.Error())
	case errors.Is(err, votingerrors.ErrAlreadyVoted):
		writeVotingError(w, http.StatusConflict, "already_voted", err.Error())
	case errors.Is(err, votingerrors.ErrInvalidTransition):
		writeVotingError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, votingerrors.ErrIdempotencyConflict):
		writeVotingError(w, http.StatusConflict, "idempotency_conflict", err.Error())
	case errors.Is(err, votingerrors.ErrConflict):
		writeVotingError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, votingerrors.ErrInvalidSelection):
		writeVotingError(w, http.StatusUnprocessableEntity, "invalid_selection", err.Error())
	case errors.Is(err, votingerrors.ErrInvalidVotingInput):
		writeVotingError(w, http.StatusBadRequest, "invalid_voting_input", err.Error())
	case errors.Is(err, votingerrors.ErrIdempotencyKeyRequired):
		writeVotingError(w, http.StatusBadRequest, "idempotency_key_required", err.Error())
	case errors.Is(err, votingerrors.ErrRosterUnavailable),
		errors.Is(err, votingerrors.ErrNotificationFailed):
		writeVotingError(w, http.StatusBadGateway, "upstream_unavailable", err.Error())
	default:
		s.logger.Error("voting request failed",
			"event", "http_voting_request_failed",
			"module", logModule,
			"layer", "platform",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err.Error(),
		)
		writeVotingError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeVotingError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, votinghttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
