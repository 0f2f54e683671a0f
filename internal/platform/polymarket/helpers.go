package polymarket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/polyonboard/internal/domain"
)

// ErrBadRequest is returned for HTTP 400 responses.
var ErrBadRequest = errors.New("bad request")

// HTTPError carries the status and body of a non-2xx response. It unwraps
// to the matching domain sentinel so callers can use errors.Is.
type HTTPError struct {
	StatusCode int
	Body       string
	kind       error
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) Unwrap() error { return e.kind }

// newLimiter returns a limiter allowing rps requests per second, or nil for
// no limit.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// send waits for the limiter, performs req and returns the body of a 2xx
// response.
func send(ctx context.Context, hc *http.Client, lim *rate.Limiter, req *http.Request) ([]byte, error) {
	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var kind error
	switch statusCode {
	case http.StatusBadRequest:
		kind = ErrBadRequest
	case http.StatusNotFound:
		kind = domain.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = domain.ErrUnauthorized
	case http.StatusTooManyRequests:
		kind = domain.ErrRateLimited
	}
	return &HTTPError{StatusCode: statusCode, Body: string(body), kind: kind}
}

func setHeaders(req *http.Request, headers map[string]string) {
	for k, v := range headers {
		req.Header.Set(k, v)
	}
}

func bigString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}
