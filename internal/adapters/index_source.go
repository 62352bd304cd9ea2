package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/docker/go-units"
	"github.com/rs/zerolog/log"

	"noir-registry/internal/ports"
	"noir-registry/internal/shared"
)

const (
	DefaultIndexURL   = "https://raw.githubusercontent.com/noir-lang/awesome-noir/main/README.md"
	maxIndexDocument  = 8 * units.MiB
	indexSourceAgent  = "noir-registry-ingest"
	indexFileSchemeID = "file://"
)

// IndexSourceAdapter fetches the curated index from an HTTP(S) URL or a
// local file path.
type IndexSourceAdapter struct {
	Location string
	Timeout  time.Duration
	Retries  int
	Delay    time.Duration

	client *http.Client
}

func NewIndexSourceAdapter(location string, timeout time.Duration, retries int, delay time.Duration) IndexSourceAdapter {
	if strings.TrimSpace(location) == "" {
		location = DefaultIndexURL
	}
	timeout = normalizeTimeout(timeout)
	return IndexSourceAdapter{
		Location: strings.TrimSpace(location),
		Timeout:  timeout,
		Retries:  normalizeAttempts(retries),
		Delay:    normalizeBaseDelay(delay),
		client:   newHTTPClient(timeout),
	}
}

func (a IndexSourceAdapter) FetchIndex(ctx context.Context) ([]byte, error) {
	if !isHTTPLocation(a.Location) {
		return a.readFile()
	}
	policy := newRetryPolicy(a.Retries, a.Delay)
	policy.Notify = func(err error, delay time.Duration) {
		log.Ctx(ctx).Warn().Err(err).Dur("retry_in", delay).Str("url", a.Location).Msg("index fetch failed")
	}
	var document []byte
	err := policy.run(ctx, func() error {
		data, err := a.fetchOnce(ctx)
		if err != nil {
			return err
		}
		document = data
		return nil
	})
	if err != nil {
		if errbuilder.CodeOf(err) == errbuilder.CodeUnavailable || ctx.Err() != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeUnavailable).
				WithMsg(fmt.Sprintf("failed to fetch index after %d attempts: %s", a.Retries, a.Location)).
				WithCause(err)
		}
		return nil, err
	}
	return document, nil
}

func (a IndexSourceAdapter) fetchOnce(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.Location, nil)
	if err != nil {
		return nil, permanent(errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("invalid index url %s", a.Location)).
			WithCause(err))
	}
	req.Header.Set("User-Agent", indexSourceAgent)
	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, permanent(ctx.Err())
		}
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeUnavailable).
			WithMsg("index request failed").
			WithCause(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeUnavailable).
			WithMsg("index source unavailable").
			WithCause(shared.HTTPStatusError(resp.StatusCode, a.Location))
	}
	if resp.StatusCode != http.StatusOK {
		code := errbuilder.CodeFailedPrecondition
		if resp.StatusCode == http.StatusNotFound {
			code = errbuilder.CodeNotFound
		}
		return nil, permanent(errbuilder.New().
			WithCode(code).
			WithMsg("index request rejected").
			WithCause(shared.HTTPStatusError(resp.StatusCode, a.Location)))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxIndexDocument+1))
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeUnavailable).
			WithMsg("failed to read index body").
			WithCause(err)
	}
	if int64(len(data)) > maxIndexDocument {
		return nil, permanent(errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("index document exceeds %s", units.BytesSize(float64(maxIndexDocument)))))
	}
	return data, nil
}

func (a IndexSourceAdapter) readFile() ([]byte, error) {
	path := strings.TrimPrefix(a.Location, indexFileSchemeID)
	data, err := os.ReadFile(path)
	if err != nil {
		code := errbuilder.CodeInternal
		if os.IsNotExist(err) {
			code = errbuilder.CodeNotFound
		}
		return nil, errbuilder.New().
			WithCode(code).
			WithMsg(fmt.Sprintf("failed to read index file %s", path)).
			WithCause(err)
	}
	return data, nil
}

func isHTTPLocation(location string) bool {
	lower := strings.ToLower(location)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

var _ ports.IndexSourcePort = IndexSourceAdapter{}
