package cli

import (
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyConnectionError(t *testing.T) {
	const endpoint = "http://127.0.0.1:8095"

	tests := []struct {
		name string
		err  error
		want ConnectionErrorType
	}{
		{name: "dns", err: &net.DNSError{Err: "no such host", Name: "nowhere"}, want: ConnectionErrorDNS},
		{name: "tls", err: fmt.Errorf("get: %w", x509.UnknownAuthorityError{}), want: ConnectionErrorTLS},
		{name: "timeout", err: fmt.Errorf("get: %w", timeoutErr{}), want: ConnectionErrorTimeout},
		{name: "dial timeout", err: &net.OpError{Op: "dial", Net: "tcp", Err: timeoutErr{}}, want: ConnectionErrorTimeout},
		{name: "refused", err: &url.Error{Op: "Get", URL: "http://127.0.0.1:8095", Err: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}}, want: ConnectionErrorNetwork},
		{name: "other", err: errors.New("something odd"), want: ConnectionErrorUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := ClassifyConnectionError(tt.err, endpoint)
			require.NotNil(t, ce)
			assert.Equal(t, tt.want, ce.Type)
			assert.Equal(t, endpoint, ce.Endpoint)
			assert.ErrorIs(t, ce, tt.err)
			assert.Contains(t, ce.Error(), endpoint)
		})
	}

	assert.Nil(t, ClassifyConnectionError(nil, endpoint))
}

func TestConnectionErrorHint(t *testing.T) {
	ce := &ConnectionError{Endpoint: "http://x", Type: ConnectionErrorNetwork, Reason: errors.New("refused")}
	assert.Contains(t, ce.Hint(), "conductor serve")
	assert.Contains(t, FormatError(fmt.Errorf("wrapped: %w", ce)), "conductor serve")

	unknown := &ConnectionError{Type: ConnectionErrorUnknown, Reason: errors.New("x")}
	assert.Empty(t, unknown.Hint())
}

func TestAPIError(t *testing.T) {
	err := fmt.Errorf("call: %w", &APIError{Status: http.StatusConflict, Title: "Conflict", Detail: "service db has running dependents: api"})
	assert.True(t, IsAPIStatus(err, http.StatusConflict))
	assert.False(t, IsAPIStatus(err, http.StatusNotFound))
	assert.Equal(t, "call: service db has running dependents: api", err.Error())

	bare := &APIError{Status: http.StatusServiceUnavailable, Title: "Service Unavailable"}
	assert.Equal(t, "503 Service Unavailable", bare.Error())
}
