package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/louisbranch/memimg/internal/memimg"
	"github.com/louisbranch/memimg/internal/memimg/event"
	apperrors "github.com/louisbranch/memimg/internal/platform/errors"
	"github.com/louisbranch/memimg/internal/platform/logging"
	"github.com/louisbranch/memimg/internal/platform/requestctx"
)

// Route paths.
const (
	MutationsPath = "/v1/mutations/"
	QueriesPath   = "/v1/queries/"
	TypesPath     = "/v1/types"
	HealthPath    = "/healthz"
	MetricsPath   = "/metrics"
)

// RequestIDHeader carries the request correlation ID in both directions.
const RequestIDHeader = "X-Request-ID"

const defaultMaxBodyBytes = 1 << 20

// Option configures a Handler.
type Option func(*config)

type config struct {
	logger       *zap.Logger
	codecs       *Codecs
	gatherer     prometheus.Gatherer
	maxBodyBytes int64
	newID        func() string
	languages    []language.Tag
}

// WithLogger sets the logger used for request failures.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		c.logger = logging.OrNop(logger)
	}
}

// WithCodecs replaces the default codecs.
func WithCodecs(codecs *Codecs) Option {
	return func(c *config) {
		if codecs != nil {
			c.codecs = codecs
		}
	}
}

// WithGatherer serves metrics from gatherer. Without it /metrics is not
// mounted.
func WithGatherer(gatherer prometheus.Gatherer) Option {
	return func(c *config) {
		c.gatherer = gatherer
	}
}

// WithMaxBodyBytes limits request bodies.
func WithMaxBodyBytes(limit int64) Option {
	return func(c *config) {
		if limit > 0 {
			c.maxBodyBytes = limit
		}
	}
}

// WithIDGenerator sets how request IDs are generated when the client sends
// none.
func WithIDGenerator(newID func() string) Option {
	return func(c *config) {
		if newID != nil {
			c.newID = newID
		}
	}
}

// WithLanguages sets the languages plain-text responses are localized into.
// The first one is the fallback.
func WithLanguages(tags ...language.Tag) Option {
	return func(c *config) {
		if len(tags) > 0 {
			c.languages = tags
		}
	}
}

// Handler serves mutations and queries against one image.
type Handler[S any] struct {
	image   *memimg.Image[S]
	config  config
	matcher language.Matcher
	mux     *http.ServeMux
}

// New builds the HTTP handler for image.
func New[S any](image *memimg.Image[S], opts ...Option) (*Handler[S], error) {
	if image == nil {
		return nil, fmt.Errorf("image is required")
	}
	cfg := config{
		logger:       zap.NewNop(),
		codecs:       DefaultCodecs(),
		maxBodyBytes: defaultMaxBodyBytes,
		newID:        uuid.NewString,
		languages:    []language.Tag{language.English, language.Spanish},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	h := &Handler[S]{
		image:   image,
		config:  cfg,
		matcher: language.NewMatcher(cfg.languages),
		mux:     http.NewServeMux(),
	}
	h.mux.HandleFunc("POST "+MutationsPath+"{type}", h.handleMutation)
	h.mux.HandleFunc("POST "+QueriesPath+"{type}", h.handleQuery)
	h.mux.HandleFunc("GET "+TypesPath, h.handleTypes)
	h.mux.HandleFunc("GET "+HealthPath, h.handleHealth)
	if cfg.gatherer != nil {
		h.mux.Handle("GET "+MetricsPath, promhttp.HandlerFor(cfg.gatherer, promhttp.HandlerOpts{}))
	}
	return h, nil
}

// ServeHTTP tags the request with an ID and dispatches it.
func (h *Handler[S]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = h.config.newID()
	}
	w.Header().Set(RequestIDHeader, requestID)
	h.mux.ServeHTTP(w, r.WithContext(requestctx.WithRequestID(r.Context(), requestID)))
}

func (h *Handler[S]) handleMutation(w http.ResponseWriter, r *http.Request) {
	codec, mediaType, err := h.config.codecs.ForResponse(r.Header.Get("Accept"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	mutation, err := h.image.Registry().NewMutation(event.Type(r.PathValue("type")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.decode(w, r, mutation); err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.image.ExecuteMutation(r.Context(), mutation)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, codec, mediaType, result)
}

func (h *Handler[S]) handleQuery(w http.ResponseWriter, r *http.Request) {
	codec, mediaType, err := h.config.codecs.ForResponse(r.Header.Get("Accept"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	query, err := h.image.Registry().NewQuery(r.PathValue("type"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.decode(w, r, query); err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.image.ExecuteQuery(r.Context(), query)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, codec, mediaType, result)
}

// Types lists the operations a client may address.
type Types struct {
	Mutations []event.Type `json:"mutations" yaml:"mutations"`
	Queries   []string     `json:"queries" yaml:"queries"`
}

func (h *Handler[S]) handleTypes(w http.ResponseWriter, r *http.Request) {
	codec, mediaType, err := h.config.codecs.ForResponse(r.Header.Get("Accept"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	registry := h.image.Registry()
	h.respond(w, r, codec, mediaType, Types{
		Mutations: registry.MutationTypes(),
		Queries:   registry.QueryTypes(),
	})
}

func (h *Handler[S]) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.image.Healthy(); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", MediaTypeText+"; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok\n")
}

func (h *Handler[S]) decode(w http.ResponseWriter, r *http.Request, v any) error {
	codec, mediaType, err := h.config.codecs.ForRequest(r.Header.Get("Content-Type"))
	if err != nil {
		return err
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.config.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.Application(apperrors.CodeDecode, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), nil)
		}
		return apperrors.Application(apperrors.CodeDecode, "reading request body", err)
	}
	if err := codec.Decode(body, v); err != nil {
		return apperrors.Application(apperrors.CodeDecode, "decoding "+mediaType+" request body", err)
	}
	return nil
}

// respond encodes into a buffer first so encoding failures still get a
// proper status.
func (h *Handler[S]) respond(w http.ResponseWriter, r *http.Request, codec Codec, mediaType string, result any) {
	var body bytes.Buffer
	if err := codec.Encode(&body, result, h.language(r)); err != nil {
		h.fail(w, r, apperrors.System(apperrors.CodeEncode, "encoding "+mediaType+" response", err))
		return
	}
	w.Header().Set("Content-Type", mediaType+"; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body.Bytes()); err != nil {
		h.config.logger.Debug("write response", zap.Error(err), zap.String("request_id", requestctx.RequestIDFromContext(r.Context())))
	}
}

func (h *Handler[S]) fail(w http.ResponseWriter, r *http.Request, err error) {
	logging.LogFailure(h.config.logger, err,
		zap.String("request_id", requestctx.RequestIDFromContext(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
	w.Header().Set("Content-Type", MediaTypeText+"; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(apperrors.HTTPStatus(err))
	_, _ = io.WriteString(w, err.Error()+"\n")
}

func (h *Handler[S]) language(r *http.Request) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err != nil || len(tags) == 0 {
		return h.config.languages[0]
	}
	tag, _, _ := h.matcher.Match(tags...)
	return tag
}
