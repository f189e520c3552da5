// Package server exposes the guild engine over HTTP with chi and huma.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"guildline/internal/domain"
	"guildline/internal/engine"
	"guildline/internal/logger"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Logger   *zap.Logger
	// DefaultActor acts for requests without X-Actor-Id. When empty such writes are rejected.
	DefaultActor string
}

// New returns an HTTP handler exposing the Guildline API under cfg.BasePath.
func New(cfg Config) (http.Handler, error) {
	basePath := "/" + strings.Trim(cfg.BasePath, "/")
	if basePath == "/" {
		basePath = "/v0"
	}
	installErrorConstructors()
	huma.DefaultArrayNullable = false

	router := chi.NewRouter()
	router.Use(middleware.RequestID, middleware.Recoverer)
	router.Use(newRequestLogger(logger.OrNop(cfg.Logger)))
	router.Use(newActorMiddleware(basePath, cfg.DefaultActor))
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondStatusError(w, newAPIError(http.StatusNotFound, "not_found", "no route for "+r.URL.Path, nil))
	})

	hcfg := huma.DefaultConfig("Guildline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	for _, register := range []func(huma.API, engine.Engine){
		registerJobs,
		registerContracts,
		registerVault,
		registerWorkshops,
		registerMembers,
		registerEvents,
	} {
		register(group, cfg.Engine)
	}
	registerHealth(group)
	mountDocs(router, api, basePath)
	return router, nil
}

func registerHealth(api huma.API) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status" example:"ok"`
		}
	}
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*healthOutput, error) {
		out := &healthOutput{}
		out.Body.Status = "ok"
		return out, nil
	})
}

// Error envelope

type apiErrorBody struct {
	Code    string         `json:"code" example:"insufficient_funds"`
	Message string         `json:"message" example:"insufficient funds: balance 20000.00, requested 25000.00"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError is rendered as {"error":{...}}.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = codeForStatus(status)
	}
	return &apiError{status: status, Body: apiErrorBody{Code: code, Message: message, Details: details}}
}

// installErrorConstructors routes huma's own errors through the envelope. Request
// validation failures come back as 400 rather than huma's 422.
func installErrorConstructors() {
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnprocessableEntity:
		return "unprocessable"
	case http.StatusInternalServerError:
		return "internal_error"
	}
	return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}

// errorRules map sentinel errors to statuses. Order matters: not-found errors also
// match ErrValidation.
var errorRules = []struct {
	target error
	status int
	code   string
}{
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrValidation, http.StatusBadRequest, "bad_request"},
	{domain.ErrVaultNotInitialized, http.StatusConflict, "vault_not_initialized"},
	{domain.ErrConflict, http.StatusConflict, "conflict"},
}

// handleError converts an engine error into the API envelope.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	msg := err.Error()
	var funds *domain.InsufficientFundsError
	if errors.As(err, &funds) {
		return newAPIError(http.StatusUnprocessableEntity, "insufficient_funds", msg, map[string]any{
			"available": funds.Available,
			"requested": funds.Requested,
		})
	}
	var inv *domain.InvariantError
	if errors.As(err, &inv) {
		return newAPIError(http.StatusUnprocessableEntity, "invariant_violation", msg, map[string]any{"invariant": inv.Invariant})
	}
	for _, rule := range errorRules {
		if !errors.Is(err, rule.target) {
			continue
		}
		var details map[string]any
		var ve *domain.ValidationError
		if rule.status == http.StatusBadRequest && errors.As(err, &ve) && ve.Field != "" {
			details = map[string]any{"field": ve.Field}
		}
		return newAPIError(rule.status, rule.code, msg, details)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

var mutationErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}
