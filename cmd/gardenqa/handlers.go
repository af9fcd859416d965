package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joesaby/gardenqa"
	"github.com/joesaby/gardenqa/answer"
	"github.com/joesaby/gardenqa/recommend"
)

// service is the part of *gardenqa.Engine the server uses.
type service interface {
	AnswerQuestion(ctx context.Context, question string, opts ...gardenqa.AskOption) (*answer.Answer, error)
	RecommendPlants(ctx context.Context, cond recommend.Conditions) ([]recommend.ScoredCandidate, error)
	Health(ctx context.Context) error
}

type server struct {
	svc      service
	cfg      gardenqa.ServerConfig
	validate *validator.Validate
}

func newServer(svc service, cfg gardenqa.ServerConfig) *server {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &server{svc: svc, cfg: cfg, validate: v}
}

// routes builds the mux and wraps it in the middleware chain:
// recovery -> request id -> logging -> cors -> auth -> mux.
func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ask", s.handleAsk)
	mux.HandleFunc("POST /recommend", s.handleRecommend)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	var h http.Handler = mux
	h = authMiddleware(s.cfg.APIKey, h)
	h = corsMiddleware(s.cfg.CORSOrigins, h)
	h = logMiddleware(h)
	h = requestIDMiddleware(h)
	h = recoveryMiddleware(h)
	return h
}

type askRequest struct {
	Question string `json:"question" validate:"required,max=2000"`
	// Context holds structured hints such as {"county": "Cork"}.
	Context    map[string]string `json:"context,omitempty" validate:"omitempty,max=10,dive,keys,max=64,endkeys,max=200"`
	NoGenerate bool              `json:"no_generate,omitempty"`
}

type askResponse struct {
	*answer.Answer
	Success   bool   `json:"success"`
	RequestID string `json:"request_id,omitempty"`
}

// POST /ask
// Finding nothing is a 200 with success false.
func (s *server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	opts := []gardenqa.AskOption{gardenqa.WithContext(req.Context)}
	if req.NoGenerate {
		opts = append(opts, gardenqa.WithoutGeneration())
	}
	a, err := s.svc.AnswerQuestion(ctx, req.Question, opts...)
	if err != nil {
		s.fail(w, r, "ask", err)
		return
	}

	writeJSON(w, http.StatusOK, askResponse{
		Answer:    a,
		Success:   a.Trace != nil && a.Trace.Success,
		RequestID: requestID(r.Context()),
	})
}

type recommendRequest struct {
	County      string   `json:"county" validate:"omitempty,max=100"`
	SunExposure string   `json:"sun_exposure" validate:"omitempty,max=50"`
	PlantTypes  []string `json:"plant_types" validate:"omitempty,max=10,dive,required,max=50"`
	NativeOnly  *bool    `json:"native_only"`
	Limit       int      `json:"limit" validate:"gte=0,lte=100"`
}

// POST /recommend
func (s *server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	cands, err := s.svc.RecommendPlants(ctx, recommend.Conditions{
		County:      req.County,
		SunExposure: req.SunExposure,
		PlantTypes:  req.PlantTypes,
		NativeOnly:  req.NativeOnly,
	})
	if err != nil {
		s.fail(w, r, "recommend", err)
		return
	}
	if req.Limit > 0 && len(cands) > req.Limit {
		cands = cands[:req.Limit]
	}
	if cands == nil {
		cands = []recommend.ScoredCandidate{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"recommendations": cands,
		"count":           len(cands),
		"request_id":      requestID(r.Context()),
	})
}

// GET /health
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.svc.Health(ctx); err != nil {
		slog.Warn("server: health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  "graph store unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), s.cfg.Timeout)
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (s *server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if s.cfg.MaxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBody)
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// validationMessage renders validator errors as "field: rule" pairs.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fmt.Sprintf("%s: %s", fieldPath(fe.Namespace()), rule))
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

// fieldPath strips the struct name from a validator namespace such as
// "askRequest.question".
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, gardenqa.ErrEmptyQuestion), errors.Is(err, gardenqa.ErrMissingParameter):
		return http.StatusBadRequest
	case errors.Is(err, gardenqa.ErrStoreUnavailable), errors.Is(err, gardenqa.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, gardenqa.ErrGenerationFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	msg := http.StatusText(status)
	if status == http.StatusBadRequest {
		msg = err.Error()
	}
	slog.Error("server: "+op+" failed",
		"status", status,
		"request_id", requestID(r.Context()),
		"error", err)
	writeError(w, status, strings.ToLower(msg))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
