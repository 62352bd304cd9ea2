package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"noir-registry/internal/ports"
	"noir-registry/internal/shared"
	"noir-registry/internal/types"
)

const (
	DefaultRegistryURL    = "http://localhost:8080/api"
	registryClientAgent   = "noir-registry-cli"
	maxRegistryBodyLength = 4 << 20
)

// RegistryClientAdapter queries a registry server's HTTP surface. Network
// failures, timeouts, 429 and 5xx responses are retried with exponential
// backoff; a 404 ends the request immediately.
type RegistryClientAdapter struct {
	BaseURL    string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	// OnRetry, when set, observes every scheduled retry.
	OnRetry func(err error, delay time.Duration)

	client *http.Client
}

func NewRegistryClientAdapter(baseURL string, timeout time.Duration, retries int, retryDelay time.Duration) *RegistryClientAdapter {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultRegistryURL
	}
	timeout = normalizeTimeout(timeout)
	return &RegistryClientAdapter{
		BaseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Timeout:    timeout,
		Retries:    normalizeAttempts(retries),
		RetryDelay: normalizeBaseDelay(retryDelay),
		client:     newHTTPClient(timeout),
	}
}

func (a *RegistryClientAdapter) URL() string {
	return a.BaseURL
}

func (a *RegistryClientAdapter) Package(ctx context.Context, name string) (types.PackageDetail, error) {
	endpoint := a.BaseURL + "/packages/" + url.PathEscape(name)
	var detail types.PackageDetail
	notFound := fmt.Sprintf("package %q not found in registry %s", name, a.BaseURL)
	if err := a.getJSON(ctx, endpoint, notFound, &detail); err != nil {
		return types.PackageDetail{}, err
	}
	return detail, nil
}

func (a *RegistryClientAdapter) Search(ctx context.Context, term string, query types.ListQuery) ([]types.Package, error) {
	params := url.Values{}
	params.Set("q", term)
	if query.Sort != "" {
		params.Set("sort", string(query.Sort))
	}
	if query.Limit > 0 {
		params.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.Keyword != "" {
		params.Set("keyword", query.Keyword)
	}
	if query.Category != "" {
		params.Set("category", query.Category)
	}
	endpoint := a.BaseURL + "/search?" + params.Encode()
	var packages []types.Package
	if err := a.getJSON(ctx, endpoint, fmt.Sprintf("registry %s has no search endpoint", a.BaseURL), &packages); err != nil {
		return nil, err
	}
	return packages, nil
}

func (a *RegistryClientAdapter) getJSON(ctx context.Context, endpoint string, notFound string, out interface{}) error {
	policy := newRetryPolicy(a.Retries, a.RetryDelay)
	policy.Notify = func(err error, delay time.Duration) {
		log.Ctx(ctx).Debug().Err(err).Dur("retry_in", delay).Str("url", endpoint).Msg("registry request failed, retrying")
		if a.OnRetry != nil {
			a.OnRetry(err, delay)
		}
	}
	var lastErr error
	err := policy.run(ctx, func() error {
		err := a.fetchOnce(ctx, endpoint, notFound, out)
		lastErr = err
		return err
	})
	if err == nil {
		return nil
	}
	if errbuilder.CodeOf(err) != errbuilder.CodeUnavailable && ctx.Err() == nil {
		return err
	}
	return errbuilder.New().
		WithCode(errbuilder.CodeUnavailable).
		WithMsg(fmt.Sprintf("registry request failed after %d attempts: %s", policy.Attempts, endpoint)).
		WithCause(lastErr)
}

func (a *RegistryClientAdapter) fetchOnce(ctx context.Context, endpoint string, notFound string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return permanent(errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("invalid registry url %s", endpoint)).
			WithCause(err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", registryClientAgent)
	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return permanent(err)
		}
		return errbuilder.New().
			WithCode(errbuilder.CodeUnavailable).
			WithMsg(fmt.Sprintf("registry unreachable: %s", endpoint)).
			WithCause(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxRegistryBodyLength))
		if err != nil {
			if ctx.Err() != nil {
				return permanent(err)
			}
			// timeouts and dropped connections mid-body are retried
			return errbuilder.New().
				WithCode(errbuilder.CodeUnavailable).
				WithMsg(fmt.Sprintf("registry response interrupted: %s", endpoint)).
				WithCause(err)
		}
		if err := json.Unmarshal(body, out); err != nil {
			return permanent(errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("registry returned an undecodable response: %s", endpoint)).
				WithCause(err))
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return permanent(errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(notFound))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return errbuilder.New().
			WithCode(errbuilder.CodeUnavailable).
			WithMsg("registry temporarily unavailable").
			WithCause(shared.HTTPStatusError(resp.StatusCode, endpoint))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return permanent(errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("registry rejected the request").
			WithCause(shared.HTTPStatusErrorWithBody(resp.StatusCode, endpoint, strings.TrimSpace(string(body)))))
	}
}

var _ ports.RegistryPort = (*RegistryClientAdapter)(nil)
