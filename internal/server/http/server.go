// Package httpserver exposes the HTTP control surface: route submission and
// simulation, execution inspection, the fee schedule admin, and the live
// event stream.
package httpserver

import (
	"crypto/subtle"
	"net/http"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/coachpo/swapflow/config"
	"github.com/coachpo/swapflow/errs"
	"github.com/coachpo/swapflow/internal/engine"
	"github.com/coachpo/swapflow/internal/events"
	"github.com/coachpo/swapflow/internal/fees"
	"github.com/coachpo/swapflow/internal/journal"
	"github.com/coachpo/swapflow/internal/observability"
	"github.com/coachpo/swapflow/internal/simulate"
	"github.com/coachpo/swapflow/internal/venue"
	"github.com/coachpo/swapflow/lib/async"
)

const (
	maxJSONBodyBytes int64 = 1 << 20 // 1 MiB

	routesPath          = "/routes"
	simulatePath        = "/simulate"
	executionsPath      = "/executions"
	executionsPrefix    = executionsPath + "/"
	feesPath            = "/fees"
	feesPrefix          = feesPath + "/"
	adminWithdrawPath   = "/admin/withdraw"
	adminCollectorPath  = "/admin/collector"
	eventsPath          = "/events"
	healthPath          = "/healthz"
)

type handlerFunc func(http.ResponseWriter, *http.Request)

// Deps bundles the collaborators the handler needs.
type Deps struct {
	Engine    *engine.Engine
	Simulator *simulate.Simulator
	Fees      *fees.Schedule
	Journal   *journal.Recorder
	Bus       *events.Bus
	Bank      venue.Bank

	// EngineAccount is the bank holder carrying custodied funds and swap
	// proceeds; the emergency withdraw sweeps from it.
	EngineAccount string

	// Exec bounds how many route executions run at once. Nil runs executions
	// on the request goroutine.
	Exec *async.Pool
}

type httpServer struct {
	deps       Deps
	limiter    *rate.Limiter
	adminToken string
}

// NewHandler builds the HTTP handler tree.
func NewHandler(cfg config.ServerConfig, deps Deps) http.Handler {
	server := &httpServer{
		deps:       deps,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		adminToken: cfg.AdminToken,
	}
	mux := http.NewServeMux()

	mux.Handle(routesPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodPost: server.limited(server.executeRoute),
	}))
	mux.Handle(simulatePath, server.methodHandlers(map[string]handlerFunc{
		http.MethodPost: server.limited(server.simulateRoute),
	}))
	mux.Handle(executionsPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.listExecutions,
	}))
	mux.Handle(executionsPrefix, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.getExecution,
	}))
	mux.Handle(feesPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.listFees,
	}))
	mux.Handle(feesPrefix, server.methodHandlers(map[string]handlerFunc{
		http.MethodPut:    server.requireAdmin(server.setFee),
		http.MethodDelete: server.requireAdmin(server.removeFee),
	}))
	mux.Handle(adminWithdrawPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodPost: server.requireAdmin(server.withdraw),
	}))
	mux.Handle(adminCollectorPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodPut: server.requireAdmin(server.setCollector),
	}))
	mux.Handle(eventsPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.streamEvents,
	}))
	mux.Handle(healthPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		},
	}))

	return withCORS(mux)
}

func (s *httpServer) methodHandlers(handlers map[string]handlerFunc) http.Handler {
	allowed := allowedMethods(handlers)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler(w, r)
			return
		}
		w.Header().Set("Allow", strings.Join(allowed, ", "))
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

func (s *httpServer) limited(next handlerFunc) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			observability.Telemetry().IncCounter("swapflow_http_throttled_total", 1,
				map[string]string{"path": r.URL.Path})
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}

func (s *httpServer) requireAdmin(next handlerFunc) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			writeError(w, http.StatusServiceUnavailable, "admin surface disabled")
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid admin token")
			return
		}
		next(w, r)
	}
}

func allowedMethods(handlers map[string]handlerFunc) []string {
	out := make([]string, 0, len(handlers))
	for method := range handlers {
		out = append(out, method)
	}
	sort.Strings(out)
	return out
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	if err := decoder.Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": message})
}

// writeDomainError maps the error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errs.CodeOf(err) {
	case errs.CodeValidation, errs.CodeInvalid:
		status = http.StatusBadRequest
	case errs.CodeNotFound:
		status = http.StatusNotFound
	case errs.CodeConflict:
		status = http.StatusConflict
	case errs.CodeVenue, errs.CodeNormalization, errs.CodePayout, errs.CodeArithmetic:
		status = http.StatusUnprocessableEntity
	case errs.CodeUnavailable:
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, err.Error())
}

func withCORS(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
