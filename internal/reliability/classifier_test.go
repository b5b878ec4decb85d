package reliability

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ent0n29/summitchat/internal/completion"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{401, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		got := IsRetryableHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
	}{
		{"nil", nil, 200, "", false},
		{"deadline", fmt.Errorf("stream: %w", context.DeadlineExceeded), 504, "upstream_timeout", true},
		{"canceled", context.Canceled, 499, "client_closed", false},
		{"rate limited", &completion.UpstreamError{Provider: "openai", StatusCode: 429, Code: "rate_limit_exceeded"}, 429, "rate_limit_exceeded", true},
		{"bad key", &completion.UpstreamError{Provider: "openai", StatusCode: 401, Code: "invalid_api_key"}, 502, "invalid_api_key", false},
		{"server error without code", &completion.UpstreamError{Provider: "openai", StatusCode: 503}, 502, "503", true},
		{"wrapped", fmt.Errorf("open: %w", &completion.UpstreamError{Provider: "openai", StatusCode: 500}), 502, "500", true},
		{"opaque", errors.New("connection reset"), 502, "upstream_error", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			if got.Status != tc.status || got.Code != tc.code || got.Retryable != tc.retryable {
				t.Fatalf("Classify() = %+v, want {%d %s %v}", got, tc.status, tc.code, tc.retryable)
			}
		})
	}
}
