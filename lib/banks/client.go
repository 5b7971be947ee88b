package banks

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"bankfeed/lib/browser"
	"bankfeed/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
)

// same UA the cookies were minted under
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0"

// NewHttpClient builds the resty client every connector fetches
// through: session cookies and headers injected up front, bounded
// exponential-backoff retry on transient statuses only. Login
// redirects and auth failures must never retry, so the retry condition
// is limited to timeouts, 5xx and 429.
func NewHttpClient(baseUrl string, sess browser.Session, limits Limits, tracerName string) *resty.Client {
	client := resty.New()
	client.SetBaseURL(baseUrl)
	client.SetCookies(sess.Cookies())
	client.SetHeader("user-agent", userAgent)
	client.SetHeader("accept", "*/*")
	client.SetHeader("accept-language", "en-US,en;q=0.5")
	if sess.Referer() != "" {
		client.SetHeader("referer", sess.Referer())
	}
	client.SetHeaders(sess.Headers())
	client.SetTimeout(limits.Timeout)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetRetryCount(limits.MaxRetries)
	client.SetRetryWaitTime(limits.RetryWait)
	client.SetRetryMaxWaitTime(limits.RetryMaxWait)
	client.AddRetryCondition(func(res *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return res.StatusCode() >= 500 || res.StatusCode() == http.StatusTooManyRequests
	})

	telemetry.InstrumentResty(client, tracerName)

	return client
}

// ResponseError classifies the outcome of a request into the pipeline
// error taxonomy. loginMarkers are institution-specific substrings of
// the final URL or body that mean the session hit a login wall; they
// are checked first, expiry always wins over a transient reading.
// Returns nil for a usable 2xx response.
func ResponseError(res *resty.Response, err error, loginMarkers ...string) error {
	if err != nil {
		attempts := 1
		if res != nil && res.Request != nil {
			attempts = res.Request.Attempt
		}
		return &TransientError{Cause: err, Attempts: attempts}
	}

	finalUrl := ""
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		finalUrl = res.RawResponse.Request.URL.String()
	}
	for _, marker := range loginMarkers {
		if strings.Contains(finalUrl, marker) || strings.Contains(res.String(), marker) {
			return fmt.Errorf("%s: %w", marker, ErrSessionExpired)
		}
	}

	switch {
	case res.StatusCode() == http.StatusUnauthorized || res.StatusCode() == http.StatusForbidden:
		return fmt.Errorf("status %d: %w", res.StatusCode(), ErrSessionExpired)
	case res.StatusCode() >= 300:
		return &TransientError{
			Cause:    fmt.Errorf("unexpected status %d", res.StatusCode()),
			Attempts: res.Request.Attempt,
		}
	}
	return nil
}

// NewBreaker builds the per-institution circuit breaker the
// orchestrator runs fetches through. Only transient failures count:
// once an institution times out repeatedly, its remaining accounts
// fail fast instead of hammering a struggling bank.
func NewBreaker(inst Institution) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: string(inst),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		Timeout: time.Minute,
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
	})
}
