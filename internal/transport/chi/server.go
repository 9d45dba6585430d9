package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/domain"
	domchat "github.com/kailas-cloud/finrag/internal/domain/chat"
	domusage "github.com/kailas-cloud/finrag/internal/domain/usage"
	logpkg "github.com/kailas-cloud/finrag/internal/logger"
	healthuc "github.com/kailas-cloud/finrag/internal/usecase/health"
	"github.com/kailas-cloud/finrag/internal/version"
)

const (
	defaultMaxUploadMB = 32
	// multipart parts above this size spill to temp files
	multipartMemory = 32 << 20
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server serves the finrag HTTP API.
type Server struct {
	ingest        Ingester
	documents     Documents
	chat          Chatter
	usage         UsageReporter
	health        HealthChecker
	maxUpload     int64
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. maxUploadMB <= 0 uses the default of 32.
func NewServer(
	ingest Ingester,
	documents Documents,
	chat Chatter,
	usage UsageReporter,
	health HealthChecker,
	maxUploadMB int,
	logger *zap.Logger,
) *Server {
	if maxUploadMB <= 0 {
		maxUploadMB = defaultMaxUploadMB
	}
	s := &Server{
		ingest:    ingest,
		documents: documents,
		chat:      chat,
		usage:     usage,
		health:    health,
		maxUpload: int64(maxUploadMB) << 20,
		logger:    logger,
	}
	// Порядок важен: уточнения раньше классов.
	s.errorHandlers = []errorHandler{
		clientHandler(domain.ErrInvalidInput, http.StatusBadRequest, ErrorCodeBadRequest),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, ErrorCodeNotFound, "not found"),
		sentinelHandler(domain.ErrNoReadableText, http.StatusUnprocessableEntity, ErrorCodeUnreadable,
			"No readable text found in the PDF"),
		sentinelHandler(domain.ErrExtraction, http.StatusUnprocessableEntity, ErrorCodeUnreadable,
			"Could not read the PDF"),
		sentinelHandler(domain.ErrEmbeddingQuotaExceeded, http.StatusTooManyRequests, ErrorCodeQuotaExceeded,
			"embedding quota exceeded"),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, ErrorCodeRateLimited,
			"provider rate limit hit, retry later"),
		sentinelHandler(domain.ErrConfiguration, http.StatusServiceUnavailable, ErrorCodeNotConfigured,
			"service is not configured"),
		sentinelHandler(domain.ErrEmbedding, http.StatusBadGateway, ErrorCodeUpstream, "upstream provider error"),
		sentinelHandler(domain.ErrGeneration, http.StatusBadGateway, ErrorCodeUpstream, "upstream provider error"),
		sentinelHandler(domain.ErrStore, http.StatusServiceUnavailable, ErrorCodeUnavailable, "service unavailable"),
	}
	return s
}

// Upload handles POST /api/fundamental/upload.
func (s *Server) Upload(w http.ResponseWriter, r *http.Request) {
	ns := NamespaceFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrorCodePayloadTooLarge,
				fmt.Sprintf("File exceeds the %d MB limit", s.maxUpload>>20))
			return
		}
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "No file provided")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "No file provided")
		return
	}
	defer func() { _ = file.Close() }()

	filename := cleanFilename(header.Filename)
	if filename == "" {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "No file selected")
		return
	}
	if !strings.EqualFold(path.Ext(filename), ".pdf") {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Only PDF files are supported")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Could not read uploaded file")
		return
	}

	summary, err := s.ingest.Ingest(r.Context(), data, filename, ns)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setUsageHeaders(w, r)
	writeJSON(w, http.StatusOK, UploadResponse{
		Filename:   summary.Filename(),
		PageCount:  summary.PageCount(),
		ChunkCount: summary.ChunkCount(),
		Message: fmt.Sprintf("Processed %s: %d pages, %d chunks indexed",
			summary.Filename(), summary.PageCount(), summary.ChunkCount()),
	})
}

// ListDocuments handles GET /api/fundamental/documents.
func (s *Server) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.documents.List(r.Context(), NamespaceFromContext(r.Context()))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]DocumentItem, len(docs))
	for i, d := range docs {
		items[i] = DocumentItem{Filename: d.Filename(), PageCount: d.PageCount(), ChunkCount: d.ChunkCount()}
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: items})
}

// DeleteDocument handles DELETE /api/fundamental/document/{filename}.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	var filename string
	err := runtime.BindStyledParameterWithOptions("simple", "filename", chi.URLParam(r, "filename"), &filename,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid format for parameter filename")
		return
	}

	res, err := s.documents.Delete(r.Context(), NamespaceFromContext(r.Context()), filename)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Success: true, Deleted: res.Deleted, Degraded: res.Degraded})
}

// Chat handles POST /api/fundamental/chat.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var params ChatParams
	if err := runtime.BindQueryParameter("form", true, false, "stream", r.URL.Query(), &params.Stream); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid format for parameter stream")
		return
	}
	stream := params.Stream == nil || *params.Stream

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body")
		return
	}

	history := make([]domchat.Turn, 0, len(req.History))
	for _, h := range req.History {
		history = append(history, domchat.Turn{Role: domchat.Role(h.Role), Content: h.Content})
	}

	reply, err := s.chat.Chat(r.Context(), NamespaceFromContext(r.Context()), req.Message, history, stream)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	if reply.Events != nil {
		s.writeEventStream(w, r, reply.Events)
		return
	}

	setUsageHeaders(w, r)
	writeJSON(w, http.StatusOK, ChatResponse{Answer: reply.Answer.Text, Citations: nonNil(reply.Answer.Citations)})
}

// GetUsage handles GET /api/usage.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	period, err := domusage.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, err.Error())
		return
	}

	report := s.usage.GetReport(r.Context(), period)
	writeJSON(w, http.StatusOK, UsageResponse{
		Period:          string(report.Period()),
		Provider:        report.Provider(),
		PeriodStartAt:   time.UnixMilli(report.PeriodStart()).UTC(),
		PeriodEndAt:     time.UnixMilli(report.PeriodEnd()).UTC(),
		TokensUsed:      report.TokensUsed(),
		TokensLimit:     report.TokensLimit(),
		TokensRemaining: report.TokensRemaining(),
		IsExhausted:     report.IsExhausted(),
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, HealthResponse{Status: string(report.Status), Checks: checks, Version: version.Version})
}

// cleanFilename keeps the base name of a client-supplied path.
func cleanFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = strings.TrimSpace(path.Base(name))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

func nonNil(c []domchat.Citation) []domchat.Citation {
	if c == nil {
		return []domchat.Citation{}
	}
	return c
}

func setUsageHeaders(w http.ResponseWriter, r *http.Request) {
	u := domain.UsageFromContext(r.Context())
	if u == nil {
		return
	}
	if n := u.EmbeddingTokens(); n > 0 {
		w.Header().Set("X-Embedding-Tokens", strconv.FormatInt(n, 10))
	}
	if n := u.GenerationTokens(); n > 0 {
		w.Header().Set("X-Generation-Tokens", strconv.FormatInt(n, 10))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// clientHandler reports the error text itself; it describes the caller's own input.
func clientHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, err.Error())
		return true
	}
}

// sentinelHandler returns an errorHandler that matches a single sentinel with a fixed message.
func sentinelHandler(sentinel error, status int, code ErrorCode, message string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, message)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.Or(r.Context(), s.logger)
	for _, h := range s.errorHandlers {
		if h(w, err) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternal, "internal error")
}
