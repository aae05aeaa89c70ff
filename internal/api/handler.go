// Package api serves the reconciliation operations over HTTP
package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"cashflow-reconciler/internal/reconciler"
	"cashflow-reconciler/pkg/errors"
	"cashflow-reconciler/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

// DefaultMaxUploadBytes bounds the size of an imported statement file
const DefaultMaxUploadBytes = 10 << 20

// Service is the set of operations the handlers expose
type Service interface {
	FetchStatements(ctx context.Context, req reconciler.FetchRequest) (*reconciler.FetchResult, error)
	ImportStatementFile(ctx context.Context, req reconciler.ImportRequest) (*reconciler.ImportResult, error)
	Reconcile(ctx context.Context, companyID string) (*reconciler.RunResult, error)
	ReconcileAll(ctx context.Context) ([]*reconciler.RunResult, error)
}

// Handler holds the HTTP handlers
type Handler struct {
	svc            Service
	validate       *validator.Validate
	logger         logger.Logger
	MaxUploadBytes int64
}

// NewHandler creates the HTTP handlers for svc
func NewHandler(svc Service, log logger.Logger) *Handler {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Handler{
		svc:            svc,
		validate:       newValidator(),
		logger:         log.WithComponent("api"),
		MaxUploadBytes: DefaultMaxUploadBytes,
	}
}

// newValidator reports fields by their json names
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return strings.ToLower(f.Name)
		}
		return name
	})
	return v
}

// Router registers every route on a new gorilla/mux router
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.logRequests)

	r.NotFoundHandler = http.HandlerFunc(h.routeNotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(h.methodNotAllowed)

	// Full paths on the root router: a method mismatch inside a PathPrefix
	// subrouter is reported by mux as not found.
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/statements/fetch", h.FetchStatements).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/statements/import", h.ImportStatements).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/reconciliations/run", h.RunReconciliation).Methods(http.MethodPost)

	return r
}

const apiPrefix = "/api/v1"

func (h *Handler) routeNotFound(w http.ResponseWriter, r *http.Request) {
	h.logger.WithFields(logger.Fields{"method": r.Method, "path": r.URL.Path}).Debug("no route")
	writeJSON(w, http.StatusNotFound, errorBody{Error: "route not found: " + r.URL.Path})
}

func (h *Handler) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.logger.WithFields(logger.Fields{"method": r.Method, "path": r.URL.Path}).Debug("method not allowed")
	writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method " + r.Method + " not allowed on " + r.URL.Path})
}

// Health reports that the server is up
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// FetchStatements handles POST /api/v1/statements/fetch
func (h *Handler) FetchStatements(w http.ResponseWriter, r *http.Request) {
	var req reconciler.FetchRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.check(&req); err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.svc.FetchStatements(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ImportStatements handles POST /api/v1/statements/import with a multipart
// form carrying file, company_id and account_code
func (h *Handler) ImportStatements(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.MaxUploadBytes); err != nil {
		h.writeError(w, r, errors.FileError(errors.CodeFileCorrupted, "file", err).
			WithSuggestion("send a multipart/form-data body with a 'file' part"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, r, errors.ValidationError(errors.CodeMissingField, "file", nil, err))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, r, errors.FileError(errors.CodeFileCorrupted, header.Filename, err))
		return
	}

	req := reconciler.ImportRequest{
		CompanyID:   strings.TrimSpace(r.FormValue("company_id")),
		AccountCode: strings.TrimSpace(r.FormValue("account_code")),
		FileName:    header.Filename,
		Content:     content,
	}
	if err := h.check(&req); err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.svc.ImportStatementFile(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RunReconciliation handles POST /api/v1/reconciliations/run. Without a
// company_id every company is reconciled and the response carries results.
func (h *Handler) RunReconciliation(w http.ResponseWriter, r *http.Request) {
	var req reconciler.RunRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if req.CompanyID == "" {
		results, err := h.svc.ReconcileAll(r.Context())
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"results": results,
		})
		return
	}

	result, err := h.svc.Reconcile(r.Context(), req.CompanyID)
	if err != nil {
		if result != nil {
			h.logFailure(r, err)
			writeJSON(w, errors.HTTPStatusOf(err), result)
			return
		}
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// decode reads an optional JSON body; an empty body leaves dst untouched
func (h *Handler) decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !stderrors.Is(err, io.EOF) {
		return errors.ParseError(errors.CodeInvalidFormat, "request body", err.Error(), err).
			WithSuggestion("send a JSON object body")
	}
	return nil
}

// check runs struct validation and reports the first failing field
func (h *Handler) check(v interface{}) error {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return errors.ValidationError(errors.CodeInvalidData, "request", nil, err)
	}

	fe := fieldErrs[0]
	code := errors.CodeOutOfRange
	if fe.Tag() == "required" {
		code = errors.CodeMissingField
	}
	return errors.ValidationError(code, fe.Field(), fe.Value(), err)
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	h.logFailure(r, err)

	rerr := errors.WrapIfNeeded(err, errors.CategoryInternal, errors.CodeUnexpectedError, err.Error())
	writeJSON(w, rerr.HTTPStatus(), errorBody{Error: err.Error(), Code: string(rerr.Code)})
}

func (h *Handler) logFailure(r *http.Request, err error) {
	status := errors.HTTPStatusOf(err)
	entry := h.logger.WithError(err).WithFields(logger.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": status,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
		return
	}
	entry.Warn("Request rejected")
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.WithFields(logger.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		}).Debug("Handled request")
	})
}
