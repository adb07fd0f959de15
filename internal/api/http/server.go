package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"kinobot/internal/delivery"
	"kinobot/internal/domain"
	"kinobot/internal/resultcache"
	"kinobot/internal/search"
)

const maxQueryLength = 256

type SearchService interface {
	FindTopMatches(ctx context.Context, query string, opts search.MatchOptions) ([]domain.MatchResult, error)
}

type DeliveryService interface {
	DeliverAndRepair(ctx context.Context, token string, job domain.DeliveryJob) (delivery.Receipt, error)
}

type CatalogStats interface {
	Count(ctx context.Context) (int64, error)
}

type Server struct {
	search   SearchService
	cache    resultcache.Store
	delivery DeliveryService
	catalog  CatalogStats
	logger   *slog.Logger
	match    search.MatchOptions
	pageSize int
	protect  bool
	ttl      time.Duration
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithDelivery(d DeliveryService, protect bool, ttl time.Duration) ServerOption {
	return func(s *Server) {
		s.delivery = d
		s.protect = protect
		s.ttl = ttl
	}
}

func WithCatalogStats(c CatalogStats) ServerOption {
	return func(s *Server) {
		s.catalog = c
	}
}

func WithMatchOptions(opts search.MatchOptions, pageSize int) ServerOption {
	return func(s *Server) {
		s.match = opts
		if pageSize > 0 {
			s.pageSize = pageSize
		}
	}
}

func NewServer(searchService SearchService, cache resultcache.Store, options ...ServerOption) *Server {
	server := &Server{
		search:   searchService,
		cache:    cache,
		logger:   slog.Default(),
		match:    search.DefaultMatchOptions(),
		pageSize: resultcache.DefaultPageSize,
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/search/page", s.handlePage)
	mux.HandleFunc("/search/select", s.handleSelect)
	mux.HandleFunc("/catalog/stats", s.handleStats)
	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "kinobot",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, rateLimitMiddleware(50, 100, metricsMiddleware(traced)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

type searchResponse struct {
	Query      string               `json:"query"`
	Normalized string               `json:"normalized"`
	Total      int                  `json:"total"`
	Token      string               `json:"token,omitempty"`
	Items      []domain.MatchResult `json:"items"`
	Page       *domain.Page         `json:"page,omitempty"`
}

// handleSearch runs a query for an owner. Any non-empty list is cached and
// returned with its first page; selection needs that token.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if len(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query too long (max 256 characters)")
		return
	}
	owner, err := parseInt64(r, "owner")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "owner is required")
		return
	}
	opts := s.match
	if opts.Limit, err = parsePositiveInt(r, "limit", opts.Limit); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
		return
	}

	results, err := s.search.FindTopMatches(r.Context(), query, opts)
	if err != nil {
		s.logger.Warn("search request failed",
			slog.String("query", clip(query, 80)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "search_failed", "search failed")
		return
	}

	resp := searchResponse{
		Query:      query,
		Normalized: search.Normalize(query),
		Total:      len(results),
		Items:      results,
	}
	if len(results) > 0 && s.cache != nil {
		token, err := s.cache.Create(r.Context(), owner, results)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to store results")
			return
		}
		page, err := s.cache.GetPage(r.Context(), token, owner, 0, s.pageSize)
		if err != nil {
			s.writeCacheError(w, err)
			return
		}
		resp.Token = token
		resp.Items = nil
		resp.Page = &page
	}
	if resp.Items == nil && resp.Page == nil {
		resp.Items = []domain.MatchResult{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.cache == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "result cache is not configured")
		return
	}
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}
	owner, err := parseInt64(r, "owner")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "owner is required")
		return
	}
	pageIndex, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("page")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid page")
		return
	}

	page, err := s.cache.GetPage(r.Context(), token, owner, pageIndex, s.pageSize)
	if err != nil {
		s.writeCacheError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type selectRequest struct {
	Token       string `json:"token"`
	Owner       int64  `json:"owner"`
	Destination int64  `json:"destination"`
	ContainerID int64  `json:"containerId"`
	ItemID      int64  `json:"itemId"`
}

type selectResponse struct {
	Delivered bool                 `json:"delivered"`
	State     domain.DeliveryState `json:"state"`
	RelayedID int64                `json:"relayedId,omitempty"`
	Remaining int                  `json:"remaining"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.delivery == nil {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "delivery is not configured")
		return
	}
	var req selectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Destination == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "destination is required")
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}
	if s.cache == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "result cache is not configured")
		return
	}
	set, err := s.cache.Get(r.Context(), req.Token, req.Owner)
	if err != nil {
		s.writeCacheError(w, err)
		return
	}
	if !set.Contains(domain.Locator{ContainerID: req.ContainerID, ItemID: req.ItemID}) {
		writeError(w, http.StatusBadRequest, "invalid_request", "item is not in the result list")
		return
	}

	receipt, err := s.delivery.DeliverAndRepair(r.Context(), req.Token, domain.DeliveryJob{
		Destination: req.Destination,
		ContainerID: req.ContainerID,
		ItemID:      req.ItemID,
		Protect:     s.protect,
		TTL:         s.ttl,
	})
	if err != nil && receipt.State != domain.DeliveryStaleSource {
		s.logger.Warn("delivery failed",
			slog.Int64("destination", req.Destination),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "delivery_failed", "delivery failed")
		return
	}
	writeJSON(w, http.StatusOK, selectResponse{
		Delivered: receipt.State != domain.DeliveryStaleSource,
		State:     receipt.State,
		RelayedID: receipt.RelayedID,
		Remaining: receipt.Remaining,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "catalog is not configured")
		return
	}
	count, err := s.catalog.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to count catalog")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": count})
}

func (s *Server) writeCacheError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrCacheNotFound):
		writeError(w, http.StatusNotFound, "not_found", "results expired, search again")
	case errors.Is(err, domain.ErrCacheForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "results belong to another user")
	case errors.Is(err, domain.ErrCacheOutOfRange):
		writeError(w, http.StatusBadRequest, "invalid_page", "invalid page")
	default:
		s.logger.Error("result cache failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "result cache failed")
	}
}

func parseInt64(r *http.Request, key string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get(key)), 10, 64)
}

func parsePositiveInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, errors.New("invalid value")
	}
	return parsed, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
