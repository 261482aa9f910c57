package datasource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vanderheijden86/bmo/pkg/loader"
	"github.com/vanderheijden86/bmo/pkg/metrics"
	"github.com/vanderheijden86/bmo/pkg/model"
)

// maxBody caps a single response body.
const maxBody = 64 << 20

// HTTPSource fetches modules from the BMO REST backend.
type HTTPSource struct {
	base      *url.URL
	client    *http.Client
	limiter   *rate.Limiter
	endpoints map[model.Module][]Endpoint
	token     string
	logger    *zap.Logger
}

// HTTPOption configures an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithEndpoints replaces the endpoint table.
func WithEndpoints(eps map[model.Module][]Endpoint) HTTPOption {
	return func(s *HTTPSource) {
		if len(eps) > 0 {
			s.endpoints = eps
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(s *HTTPSource) {
		if d > 0 {
			s.client.Timeout = d
		}
	}
}

// WithRateLimit paces requests. A non-positive rate disables limiting.
func WithRateLimit(perSecond float64, burst int) HTTPOption {
	return func(s *HTTPSource) {
		if perSecond <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// WithToken sends a bearer token on every request.
func WithToken(token string) HTTPOption {
	return func(s *HTTPSource) { s.token = token }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		if c != nil {
			s.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) HTTPOption {
	return func(s *HTTPSource) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewHTTPSource creates a source rooted at baseURL.
func NewHTTPSource(baseURL string, opts ...HTTPOption) (*HTTPSource, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid source url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid source url %q: scheme must be http or https", baseURL)
	}
	s := &HTTPSource{
		base:      u,
		client:    &http.Client{Timeout: 15 * time.Second},
		endpoints: DefaultEndpoints,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name implements Source.
func (s *HTTPSource) Name() string { return "http:" + s.base.Host }

// Fetch implements Source. All endpoints of the module must succeed.
func (s *HTTPSource) Fetch(ctx context.Context, module model.Module) ([]model.Record, error) {
	eps, ok := s.endpoints[module]
	if !ok {
		return nil, fmt.Errorf("fetch %s: %w", module, model.ErrUnknownModule)
	}
	var records []model.Record
	seen := make(map[string]bool)
	for _, ep := range eps {
		recs, err := s.fetchEndpoint(ctx, module, ep)
		if err != nil {
			return nil, err
		}
		records = mergeUnique(records, seen, recs)
	}
	return records, nil
}

func (s *HTTPSource) fetchEndpoint(ctx context.Context, module model.Module, ep Endpoint) ([]model.Record, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", ep.Path, err)
		}
	}
	target := s.base.ResolveReference(&url.URL{Path: strings.TrimLeft(ep.Path, "/")})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ep.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", ep.Path, err)
	}
	metrics.Fetch.Record(time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &StatusError{Code: resp.StatusCode, URL: target.String(), Body: snippet}
	}

	warn := func(msg string) {
		s.logger.Debug("normalize warning", zap.String("endpoint", ep.Path), zap.String("msg", msg))
	}
	stop := metrics.Timer(metrics.Normalize)
	recs, err := loader.DecodeWithOptions(body, module, loader.ParseOptions{Kind: ep.Kind, WarningHandler: warn})
	stop()
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", ep.Path, err)
	}
	s.logger.Debug("fetched",
		zap.String("module", string(module)),
		zap.String("endpoint", ep.Path),
		zap.String("request_id", reqID),
		zap.Int("records", len(recs)),
		zap.Duration("duration", time.Since(start)),
	)
	return recs, nil
}
