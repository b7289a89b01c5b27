package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"PortfolioAnalytics/internal/event"
	"PortfolioAnalytics/internal/ingestion"
	"PortfolioAnalytics/internal/query"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"
)

var jsonMarshaler runtime.Marshaler = &runtime.JSONBuiltin{}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type invalidateResponse struct {
	Removed int `json:"removed"`
}

type cacheStatsResponse struct {
	Entries    int    `json:"entries"`
	Generation uint64 `json:"generation"`
}

// Handler builds the HTTP handler: health probes plus the gateway mux with
// the portfolio and admin routes.
func (s *Server) Handler() (http.Handler, error) {
	mux := runtime.NewServeMux()

	routes := []struct {
		method  string
		pattern string
		h       runtime.HandlerFunc
	}{
		{"GET", "/v1/users/{user_id}/portfolio/summary", s.handleSummary},
		{"GET", "/v1/users/{user_id}/portfolio/risk", s.handleRisk},
		{"GET", "/v1/users/{user_id}/portfolio/performance", s.handlePerformance},
		{"GET", "/v1/users/{user_id}/portfolio/analytics", s.handleAnalytics},
		{"POST", "/v1/admin/prices/invalidate", s.handleInvalidate},
		{"GET", "/v1/admin/prices/stats", s.handleCacheStats},
	}
	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, r.h); err != nil {
			return nil, fmt.Errorf("register %s %s: %w", r.method, r.pattern, err)
		}
	}

	httpMux := http.NewServeMux()
	if s.healthChecker != nil {
		httpMux.HandleFunc("/healthz", s.healthChecker.LivenessHandler)
		httpMux.HandleFunc("/readyz", s.healthChecker.ReadinessHandler)
	} else {
		httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `{"status":"ok"}`)
		})
	}
	httpMux.Handle("/", s.withRequestContext(mux))
	return httpMux, nil
}

// withRequestContext bounds every API request by the configured timeout and
// writes one access log line per request.
func (s *Server) withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)

		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
		defer cancel()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		s.log.Debug().
			Str("request_id", reqID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, params map[string]string) {
	userID, err := query.ParseUserID(params["user_id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp, err := s.svc.GetPortfolioSummary(r.Context(), userID)
	s.respond(w, resp, err)
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request, params map[string]string) {
	userID, err := query.ParseUserID(params["user_id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp, err := s.svc.GetPortfolioRisk(r.Context(), userID)
	s.respond(w, resp, err)
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request, params map[string]string) {
	userID, window, err := parseWindowed(r, params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp, err := s.svc.GetPortfolioPerformance(r.Context(), userID, window)
	s.respond(w, resp, err)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request, params map[string]string) {
	userID, window, err := parseWindowed(r, params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp, err := s.svc.GetPortfolioAnalytics(r.Context(), userID, window)
	s.respond(w, resp, err)
}

// handleInvalidate drops cached prices. The body is {"symbols":[...]}; an
// empty body clears the whole cache.
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if s.prices == nil {
		s.writeStatus(w, http.StatusNotImplemented, "unimplemented", "price cache not configured")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		s.writeStatus(w, http.StatusBadRequest, query.CodeInvalidArgument, err.Error())
		return
	}
	symbols, err := ingestion.ParseInvalidation(body)
	if err != nil {
		s.writeStatus(w, http.StatusBadRequest, query.CodeInvalidArgument, err.Error())
		return
	}
	removed := s.prices.Invalidate(symbols...)
	s.log.Info().Strs("symbols", symbols).Int("removed", removed).Msg("price cache invalidated via API")
	s.respond(w, invalidateResponse{Removed: removed}, nil)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if s.prices == nil {
		s.writeStatus(w, http.StatusNotImplemented, "unimplemented", "price cache not configured")
		return
	}
	st := s.prices.Stats()
	s.respond(w, cacheStatsResponse{Entries: st.Entries, Generation: st.Generation}, nil)
}

func parseWindowed(r *http.Request, params map[string]string) (uuid.UUID, event.DateRange, error) {
	userID, err := query.ParseUserID(params["user_id"])
	if err != nil {
		return uuid.Nil, event.DateRange{}, err
	}
	q := r.URL.Query()
	window, err := query.ParseDateRange(q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		return uuid.Nil, event.DateRange{}, err
	}
	return userID, window, nil
}

func (s *Server) respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	data, err := jsonMarshaler.Marshal(v)
	if err != nil {
		s.writeError(w, fmt.Errorf("marshal response: %w", err))
		return
	}
	w.Header().Set("Content-Type", jsonMarshaler.ContentType(v))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := query.ErrorCode(err)
	msg := err.Error()
	if code == query.CodeInternal {
		s.log.Error().Err(err).Msg("request failed")
		msg = "internal error"
	}
	s.writeStatus(w, HTTPStatus(code), code, msg)
}

func (s *Server) writeStatus(w http.ResponseWriter, status int, code, msg string) {
	data, _ := jsonMarshaler.Marshal(errorBody{Error: errorDetail{Code: code, Message: msg}})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

// HTTPStatus maps a query error code onto the gRPC code space and from there
// onto HTTP, the same way gateway-proxied errors are mapped.
func HTTPStatus(code string) int {
	return runtime.HTTPStatusFromCode(grpcCode(code))
}

func grpcCode(code string) codes.Code {
	switch code {
	case "":
		return codes.OK
	case query.CodeInvalidArgument:
		return codes.InvalidArgument
	case query.CodeNotFound:
		return codes.NotFound
	case query.CodeUpstreamUnavailable:
		return codes.Unavailable
	case query.CodeDeadlineExceeded:
		return codes.DeadlineExceeded
	case query.CodeCanceled:
		return codes.Canceled
	default:
		return codes.Internal
	}
}
