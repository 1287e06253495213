// Package chi wires the HTTP API on top of the chi router.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/divekit/manualindex/internal/domain"
	conflictuc "github.com/divekit/manualindex/internal/usecase/conflict"
	healthuc "github.com/divekit/manualindex/internal/usecase/health"
	ingestuc "github.com/divekit/manualindex/internal/usecase/ingest"
	searchuc "github.com/divekit/manualindex/internal/usecase/search"
)

// errorCode is the machine-readable error discriminator in responses.
type errorCode string

const (
	codeBadRequest        errorCode = "bad_request"
	codeValidationFailed  errorCode = "validation_failed"
	codeNotFound          errorCode = "not_found"
	codeDocumentNotFound  errorCode = "document_not_found"
	codeDimensionMismatch errorCode = "dimension_mismatch"
	codeProviderError     errorCode = "embedding_provider_error"
	codeConflictClosed    errorCode = "conflict_closed"
	codeIngestInProgress  errorCode = "ingest_in_progress"
	codeUnauthorized      errorCode = "unauthorized"
	codeInternalError     errorCode = "internal_error"
)

type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

// LedgerReader serves the audit endpoint.
type LedgerReader interface {
	List(ctx context.Context, action string, limit int) ([]domain.LedgerEntry, error)
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server implements the HTTP API.
type Server struct {
	ingest        *ingestuc.Service
	search        *searchuc.Service
	conflicts     *conflictuc.Service
	health        *healthuc.Service
	ledger        LedgerReader
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	ingest *ingestuc.Service,
	search *searchuc.Service,
	conflicts *conflictuc.Service,
	health *healthuc.Service,
	ledger LedgerReader,
	logger *zap.Logger,
) *Server {
	s := &Server{
		ingest:    ingest,
		search:    search,
		conflicts: conflicts,
		health:    health,
		ledger:    ledger,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, codeDocumentNotFound),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrDimensionMismatch, http.StatusBadRequest, codeDimensionMismatch),
		sentinelHandler(domain.ErrInvalidArgument, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrConflictClosed, http.StatusConflict, codeConflictClosed),
		sentinelHandler(domain.ErrIngestInProgress, http.StatusConflict, codeIngestInProgress),
		sentinelHandler(domain.ErrProviderError, http.StatusBadGateway, codeProviderError),
	}
	return s
}

// Register mounts all API routes onto the router.
func (s *Server) Register(r chi.Router) {
	r.Get("/health", s.healthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", s.ingestDocument)
			r.Get("/", s.listDocuments)
			r.Get("/{name}", s.getDocument)
			r.Delete("/{name}", s.deleteDocument)
			r.Patch("/{name}", s.updateMetadata)
			r.Get("/{name}/chunks", s.listChunks)
		})
		r.Get("/chunks/{id}", s.getChunk)
		r.Post("/search", s.searchChunks)
		r.Route("/conflicts", func(r chi.Router) {
			r.Post("/scan", s.scanConflicts)
			r.Get("/", s.listConflicts)
			r.Get("/{key}", s.getConflict)
			r.Post("/{key}/resolve", s.resolveConflict)
		})
		r.Get("/topics", s.listTopics)
		r.Get("/ledger", s.listLedger)
	})
}

type ingestRequest struct {
	Name               string     `json:"name"`
	Text               string     `json:"text"`
	Actor              string     `json:"actor,omitempty"`
	Classification     string     `json:"classification,omitempty"`
	ComplianceStandard string     `json:"compliance_standard,omitempty"`
	EffectiveDate      *time.Time `json:"effective_date,omitempty"`
	SupersededBy       string     `json:"superseded_by,omitempty"`
	MandatoryReview    *time.Time `json:"mandatory_review,omitempty"`
	SourcePath         string     `json:"source_path,omitempty"`
}

type ingestResponse struct {
	Document      documentResponse `json:"document"`
	ChunkIDs      []int64          `json:"chunk_ids"`
	SkippedChunks int              `json:"skipped_chunks"`
	NewTopics     int              `json:"new_topics"`
}

// ingestDocument handles POST /api/documents.
func (s *Server) ingestDocument(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "document name is required")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "document text is required")
		return
	}

	res, err := s.ingest.Ingest(r.Context(), ingestuc.Request{
		Name:  req.Name,
		Text:  req.Text,
		Actor: req.Actor,
		Metadata: domain.DocumentMetadata{
			Classification:     domain.Classification(req.Classification),
			ComplianceStandard: req.ComplianceStandard,
			EffectiveDate:      req.EffectiveDate,
			SupersededBy:       req.SupersededBy,
			MandatoryReview:    req.MandatoryReview,
			SourcePath:         req.SourcePath,
		},
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ingestResponse{
		Document:      documentToResponse(res.Document),
		ChunkIDs:      res.ChunkIDs,
		SkippedChunks: res.SkippedChunks,
		NewTopics:     res.NewTopics,
	})
}

// listDocuments handles GET /api/documents.
func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.ingest.ListDocuments(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		resp = append(resp, documentToResponse(d))
	}
	writeJSON(w, http.StatusOK, resp)
}

// getDocument handles GET /api/documents/{name}.
func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.ingest.GetDocument(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, documentToResponse(*doc))
}

// deleteDocument handles DELETE /api/documents/{name}. The acting
// identity comes from the actor query parameter.
func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.ingest.DeleteDocument(r.Context(), name, r.URL.Query().Get("actor")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updateMetadataRequest struct {
	Actor              string     `json:"actor,omitempty"`
	Classification     string     `json:"classification"`
	ComplianceStandard string     `json:"compliance_standard,omitempty"`
	EffectiveDate      *time.Time `json:"effective_date,omitempty"`
	SupersededBy       string     `json:"superseded_by,omitempty"`
	MandatoryReview    *time.Time `json:"mandatory_review,omitempty"`
	SourcePath         string     `json:"source_path,omitempty"`
}

// updateMetadata handles PATCH /api/documents/{name}.
func (s *Server) updateMetadata(w http.ResponseWriter, r *http.Request) {
	var req updateMetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	name := chi.URLParam(r, "name")
	err := s.ingest.UpdateMetadata(r.Context(), name, req.Actor, domain.DocumentMetadata{
		Classification:     domain.Classification(req.Classification),
		ComplianceStandard: req.ComplianceStandard,
		EffectiveDate:      req.EffectiveDate,
		SupersededBy:       req.SupersededBy,
		MandatoryReview:    req.MandatoryReview,
		SourcePath:         req.SourcePath,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	doc, err := s.ingest.GetDocument(r.Context(), name)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, documentToResponse(*doc))
}

// listChunks handles GET /api/documents/{name}/chunks.
func (s *Server) listChunks(w http.ResponseWriter, r *http.Request) {
	chunks, err := s.ingest.ListChunks(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := make([]chunkResponse, 0, len(chunks))
	for _, c := range chunks {
		resp = append(resp, chunkToResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// getChunk handles GET /api/chunks/{id}.
func (s *Server) getChunk(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid chunk id")
		return
	}

	chunk, err := s.ingest.GetChunk(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chunkToResponse(*chunk))
}

type searchRequest struct {
	Query     string    `json:"query,omitempty"`
	Vector    []float32 `json:"vector,omitempty"`
	K         int       `json:"k"`
	Documents []string  `json:"documents,omitempty"`
}

type hitResponse struct {
	Chunk chunkResponse `json:"chunk"`
	Score float32       `json:"score"`
}

type searchResponse struct {
	Hits []hitResponse `json:"hits"`
}

// searchChunks handles POST /api/search. Either a text query or a raw
// vector must be supplied; a raw vector takes precedence.
func (s *Server) searchChunks(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Query == "" && len(req.Vector) == 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "either query or vector is required")
		return
	}

	var (
		hits []searchuc.Hit
		err  error
	)
	if len(req.Vector) > 0 {
		hits, err = s.search.Retrieve(r.Context(), req.Vector, req.K, req.Documents)
	} else {
		hits, err = s.search.RetrieveText(r.Context(), req.Query, req.K, req.Documents)
	}
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := searchResponse{Hits: make([]hitResponse, 0, len(hits))}
	for _, h := range hits {
		resp.Hits = append(resp.Hits, hitResponse{Chunk: chunkToResponse(h.Chunk), Score: h.Score})
	}
	writeJSON(w, http.StatusOK, resp)
}

type scanRequest struct {
	TopicKey string `json:"topic_key,omitempty"`
	Actor    string `json:"actor,omitempty"`
}

type scanResponse struct {
	ChunksScanned int `json:"chunks_scanned"`
	PairsCompared int `json:"pairs_compared"`
	Created       int `json:"created"`
	AlreadyKnown  int `json:"already_known"`
}

// scanConflicts handles POST /api/conflicts/scan.
func (s *Server) scanConflicts(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	res, err := s.conflicts.Detect(r.Context(), req.TopicKey, req.Actor)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, scanResponse{
		ChunksScanned: res.ChunksScanned,
		PairsCompared: res.PairsCompared,
		Created:       res.Created,
		AlreadyKnown:  res.AlreadyKnown,
	})
}

// listConflicts handles GET /api/conflicts.
func (s *Server) listConflicts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	conflicts, err := s.conflicts.List(r.Context(), q.Get("status"), q.Get("topic"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := make([]conflictResponse, 0, len(conflicts))
	for _, c := range conflicts {
		resp = append(resp, conflictToResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// getConflict handles GET /api/conflicts/{key}.
func (s *Server) getConflict(w http.ResponseWriter, r *http.Request) {
	c, err := s.conflicts.Get(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conflictToResponse(*c))
}

type resolveRequest struct {
	Status     string `json:"status"`
	ResolvedBy string `json:"resolved_by"`
	Notes      string `json:"notes,omitempty"`
}

// resolveConflict handles POST /api/conflicts/{key}/resolve.
func (s *Server) resolveConflict(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	key := chi.URLParam(r, "key")
	if err := s.conflicts.Resolve(r.Context(), key, req.Status, req.ResolvedBy, req.Notes); err != nil {
		s.handleDomainError(w, err)
		return
	}

	c, err := s.conflicts.Get(r.Context(), key)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conflictToResponse(*c))
}

type topicResponse struct {
	Key         string    `json:"key"`
	Description string    `json:"description"`
	FirstSeen   time.Time `json:"first_seen"`
}

// listTopics handles GET /api/topics.
func (s *Server) listTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := s.ingest.ListTopics(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := make([]topicResponse, 0, len(topics))
	for _, t := range topics {
		resp = append(resp, topicResponse{Key: t.Key, Description: t.Description, FirstSeen: t.FirstSeen})
	}
	writeJSON(w, http.StatusOK, resp)
}

type ledgerEntryResponse struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail"`
}

// listLedger handles GET /api/ledger.
func (s *Server) listLedger(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 100
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, codeBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.ledger.List(r.Context(), q.Get("action"), limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := make([]ledgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, ledgerEntryResponse{
			Seq:       e.Seq,
			Timestamp: e.Timestamp,
			Actor:     e.Actor,
			Action:    e.Action,
			Detail:    e.Detail,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// healthCheck handles GET /health.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

type documentResponse struct {
	Name               string     `json:"name"`
	Classification     string     `json:"classification"`
	ComplianceStandard string     `json:"compliance_standard,omitempty"`
	EffectiveDate      *time.Time `json:"effective_date,omitempty"`
	SupersededBy       string     `json:"superseded_by,omitempty"`
	MandatoryReview    *time.Time `json:"mandatory_review,omitempty"`
	SourcePath         string     `json:"source_path,omitempty"`
	IngestedAt         time.Time  `json:"ingested_at"`
}

func documentToResponse(d domain.Document) documentResponse {
	return documentResponse{
		Name:               d.Name,
		Classification:     string(d.Classification),
		ComplianceStandard: d.ComplianceStandard,
		EffectiveDate:      d.EffectiveDate,
		SupersededBy:       d.SupersededBy,
		MandatoryReview:    d.MandatoryReview,
		SourcePath:         d.SourcePath,
		IngestedAt:         d.IngestedAt,
	}
}

type chunkResponse struct {
	ID                 int64                `json:"id"`
	Document           string               `json:"document"`
	Text               string               `json:"text"`
	Heading            string               `json:"heading"`
	HeadingNum         string               `json:"heading_num,omitempty"`
	Path               []string             `json:"path"`
	Level              int                  `json:"level"`
	TopicKey           string               `json:"topic_key"`
	IsEmergency        bool                 `json:"is_emergency"`
	EmergencyCategory  string               `json:"emergency_category,omitempty"`
	Units              []domain.UnitMention `json:"units"`
	DivingModes        []string             `json:"diving_modes"`
	PhysiologyTags     []string             `json:"physiology_tags"`
	SystemsTags        []string             `json:"systems_tags"`
	NormativeLanguage  string               `json:"normative_language,omitempty"`
	ConflictQualifiers []domain.Qualifier   `json:"conflict_qualifiers"`
}

func chunkToResponse(c domain.Chunk) chunkResponse {
	units := c.Units
	if units == nil {
		units = []domain.UnitMention{}
	}
	qualifiers := c.ConflictQualifiers
	if qualifiers == nil {
		qualifiers = []domain.Qualifier{}
	}
	return chunkResponse{
		ID:                 c.ID,
		Document:           c.Document,
		Text:               c.Text,
		Heading:            c.Heading,
		HeadingNum:         c.HeadingNum,
		Path:               c.Path,
		Level:              c.Level,
		TopicKey:           c.TopicKey,
		IsEmergency:        c.IsEmergency,
		EmergencyCategory:  c.EmergencyCategory,
		Units:              units,
		DivingModes:        emptyIfNil(c.DivingModes),
		PhysiologyTags:     emptyIfNil(c.PhysiologyTags),
		SystemsTags:        emptyIfNil(c.SystemsTags),
		NormativeLanguage:  c.NormativeLanguage,
		ConflictQualifiers: qualifiers,
	}
}

func emptyIfNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

type conflictResponse struct {
	Key        string     `json:"key"`
	ChunkA     int64      `json:"chunk_a"`
	ChunkB     int64      `json:"chunk_b"`
	TopicKey   string     `json:"topic_key"`
	Kind       string     `json:"kind"`
	Detail     string     `json:"detail"`
	ContextA   string     `json:"context_a"`
	ContextB   string     `json:"context_b"`
	Status     string     `json:"status"`
	DetectedAt time.Time  `json:"detected_at"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

func conflictToResponse(c domain.Conflict) conflictResponse {
	return conflictResponse{
		Key:        c.Key,
		ChunkA:     c.ChunkA,
		ChunkB:     c.ChunkB,
		TopicKey:   c.TopicKey,
		Kind:       string(c.Kind),
		Detail:     c.Detail,
		ContextA:   c.ContextA,
		ContextB:   c.ContextB,
		Status:     string(c.Status),
		DetectedAt: c.DetectedAt,
		ResolvedBy: c.ResolvedBy,
		ResolvedAt: c.ResolvedAt,
		Notes:      c.Notes,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns an error message that is safe to expose to
// clients. Internal details stay in the logs.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrDocumentNotFound,
		domain.ErrNotFound,
		domain.ErrDimensionMismatch,
		domain.ErrInvalidArgument,
		domain.ErrConflictClosed,
		domain.ErrIngestInProgress,
		domain.ErrProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
