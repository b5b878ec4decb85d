package reliability

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/ent0n29/summitchat/internal/completion"
)

// Classification is how an upstream failure is reported to the caller.
type Classification struct {
	Status    int
	Code      string
	Retryable bool
}

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// Classify maps a provider error to the status the client receives. Rate
// limits pass through as 429, deadlines become 504, and every other upstream
// failure is a 502.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Status: http.StatusOK}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Classification{Status: http.StatusGatewayTimeout, Code: "upstream_timeout", Retryable: true}
	}
	if errors.Is(err, context.Canceled) {
		return Classification{Status: 499, Code: "client_closed"}
	}

	var upstream *completion.UpstreamError
	if !errors.As(err, &upstream) {
		return Classification{Status: http.StatusBadGateway, Code: "upstream_error"}
	}

	code := upstream.Code
	if code == "" && upstream.StatusCode > 0 {
		code = strconv.Itoa(upstream.StatusCode)
	}
	if code == "" {
		code = "upstream_error"
	}

	status := http.StatusBadGateway
	switch upstream.StatusCode {
	case http.StatusTooManyRequests:
		status = http.StatusTooManyRequests
	case http.StatusGatewayTimeout:
		status = http.StatusGatewayTimeout
	}
	return Classification{
		Status:    status,
		Code:      code,
		Retryable: IsRetryableHTTPStatus(upstream.StatusCode),
	}
}
