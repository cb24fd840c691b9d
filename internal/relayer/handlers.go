package relayer

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Handler exposes the relayer over HTTP.
type Handler struct {
	relayer     *Relayer
	limiter     *RateLimiter
	development bool
	logger      *zap.Logger
}

// NewHandler creates the relayer's HTTP handler. The test routes are only
// served when development is set. limiter may be nil.
func NewHandler(r *Relayer, limiter *RateLimiter, development bool, logger *zap.Logger) *Handler {
	return &Handler{relayer: r, limiter: limiter, development: development, logger: logger}
}

// Router builds the relayer's routes.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	if h.limiter != nil {
		r.Use(h.limiter.Middleware)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/email/submit", h.HandleSubmit)
		r.Get("/email/status/{id}", h.HandleStatus)
		r.Get("/proof/{hash}", h.HandleProof)
		r.Get("/attester", h.HandleAttester)

		if h.development {
			r.Post("/test/generate-proof", h.HandleGenerate)
			r.Get("/test/list-proofs", h.HandleListProofs)
		}
	})

	return r
}

// HandleSubmit handles POST /api/v1/email/submit.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var s Submission
	if !decode(w, r, &s) {
		return
	}

	status, err := h.relayer.Submit(s)
	switch {
	case errors.Is(err, ErrInvalidCommand):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid command in subject",
			Details: err.Error(),
		})
		return
	case errors.Is(err, ErrQueueFull):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		return
	case err != nil:
		h.logger.Error("submit-failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "submit failed"})
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitResponse{
		ID:      status.ID,
		Status:  status.Status,
		Message: "email submitted for processing",
	})
}

// HandleStatus handles GET /api/v1/email/status/{id}.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status, ok := h.relayer.Status(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "status not found"})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleProof handles GET /api/v1/proof/{hash}.
func (h *Handler) HandleProof(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.relayer.Proof(chi.URLParam(r, "hash"))
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "proof not found"})
		return
	}
	writeJSON(w, http.StatusOK, proofResponse(rec))
}

// HandleAttester handles GET /api/v1/attester.
func (h *Handler) HandleAttester(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"attester": h.relayer.Attester().Hex()})
}

// HandleGenerate handles POST /api/v1/test/generate-proof.
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !decode(w, r, &req) {
		return
	}

	rec, err := h.relayer.Generate(req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, proofResponse(rec))
}

// HandleListProofs handles GET /api/v1/test/list-proofs.
func (h *Handler) HandleListProofs(w http.ResponseWriter, r *http.Request) {
	proofs := h.relayer.Proofs()
	writeJSON(w, http.StatusOK, ProofListResponse{Count: len(proofs), Proofs: proofs})
}

func proofResponse(rec *Record) ProofResponse {
	return ProofResponse{
		EmailHash:          rec.EmailHash,
		Proof:              rec.Proof,
		ExtractedData:      rec.Payload,
		ReadyForSubmission: true,
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Details: err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
