package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"FinArb/internal/domain/models"
	"FinArb/internal/service/ratelimit"
	xhttp "FinArb/pkg/http"
	"FinArb/pkg/util"
)

// RESTSource fetches quotes from a JSON HTTP endpoint. The endpoint is
// expected to answer GET <baseURL>?symbol=<entity> with a flat object of
// numeric fields plus an optional "as_of" timestamp.
type RESTSource struct {
	name    string
	baseURL string
	apiKey  string
	client  *xhttp.Client
	limiter *ratelimit.Limiter
	// rps caps outgoing requests; exceeding it yields a transient
	// rate-limit failure instead of a wire call.
	rps float64
}

type RESTOption func(*RESTSource)

// WithAPIKey sets the token sent in the Authorization header.
func WithAPIKey(key string) RESTOption {
	return func(s *RESTSource) { s.apiKey = key }
}

// WithRateLimit caps requests per second to the upstream.
func WithRateLimit(rps float64) RESTOption {
	return func(s *RESTSource) {
		if rps > 0 {
			s.rps = rps
		}
	}
}

// WithHTTPClient overrides the HTTP client, for tests.
func WithHTTPClient(c *xhttp.Client) RESTOption {
	return func(s *RESTSource) { s.client = c }
}

func NewRESTSource(name, baseURL string, opts ...RESTOption) *RESTSource {
	s := &RESTSource{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  xhttp.NewClient(),
		limiter: ratelimit.New(),
		rps:     10,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type restQuote struct {
	Fields map[string]float64 `json:"fields"`
	AsOf   string             `json:"as_of"`
}

// Fetch implements repository.Fetcher.
func (s *RESTSource) Fetch(ctx context.Context, capability models.Capability, entity string, fields []string, timeout time.Duration) (*models.SuccessPayload, error) {
	if !s.limiter.Allow(s.name, s.rps, s.rps) {
		return nil, models.Transient("rate_limited", nil)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	headers := map[string]string{}
	if s.apiKey != "" {
		headers["Authorization"] = "Bearer " + s.apiKey
	}

	var q restQuote
	resp, err := s.client.SendRequest(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     s.baseURL + "/quote",
		Headers: headers,
		QueryParams: map[string][]string{
			"symbol":     {entity},
			"capability": {string(capability)},
			"fields":     {strings.Join(fields, ",")},
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, models.Transient("timeout", err)
		}
		return nil, models.Transient("network", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}
	if err := xhttp.DecodeJSON(resp.Body, &q); err != nil {
		return nil, models.Transient("decode", err)
	}
	if len(q.Fields) == 0 {
		return nil, models.Permanent("empty_payload", nil)
	}

	asOf := util.ParseTimeDefault(q.AsOf, time.Now())
	payload := &models.SuccessPayload{Fields: make(map[string]models.FieldValue, len(q.Fields))}
	for name, v := range q.Fields {
		payload.Fields[name] = models.FieldValue{Value: v, AsOf: asOf}
	}
	return payload, nil
}

func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return models.Transient("rate_limited", fmt.Errorf("status %d", code))
	case code >= 500:
		return models.Transient("server_error", fmt.Errorf("status %d", code))
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return models.Permanent("auth", fmt.Errorf("status %d", code))
	case code == http.StatusNotFound:
		return models.Permanent("unknown_entity", fmt.Errorf("status %d", code))
	default:
		return models.Permanent("bad_request", fmt.Errorf("status %d", code))
	}
}
