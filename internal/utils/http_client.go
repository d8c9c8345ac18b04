package utils

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// LoggingTransport implements http.RoundTripper and logs every outbound call. Bodies are
// never logged since gateway traffic carries payment details.
type LoggingTransport struct {
	Transport http.RoundTripper
	Log       *zap.Logger
}

// RoundTrip executes a single HTTP transaction and logs the outcome
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	transport := t.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	start := time.Now()
	resp, err := transport.RoundTrip(req)
	duration := time.Since(start)

	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("host", req.URL.Host),
		zap.String("path", req.URL.Path),
		zap.Duration("latency", duration),
	}
	if err != nil {
		t.Log.Warn("outbound request failed", append(fields, zap.Error(err))...)
		return nil, err
	}

	fields = append(fields, zap.Int("status", resp.StatusCode))
	if resp.StatusCode >= 500 {
		t.Log.Warn("outbound request", fields...)
	} else {
		t.Log.Debug("outbound request", fields...)
	}
	return resp, nil
}

// NewHTTPClient returns a new http.Client with logging enabled
func NewHTTPClient(timeout time.Duration, log *zap.Logger) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &LoggingTransport{
			Transport: http.DefaultTransport,
			Log:       log,
		},
	}
}
