package cli

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
)

// ConnectionErrorType tells why the control plane could not be reached.
type ConnectionErrorType int

const (
	ConnectionErrorUnknown ConnectionErrorType = iota
	ConnectionErrorTLS
	ConnectionErrorNetwork
	ConnectionErrorTimeout
	ConnectionErrorDNS
)

var connectionErrorNames = map[ConnectionErrorType]string{
	ConnectionErrorTLS:     "TLS failure",
	ConnectionErrorNetwork: "network failure",
	ConnectionErrorTimeout: "timeout",
	ConnectionErrorDNS:     "name lookup failure",
}

func (t ConnectionErrorType) String() string {
	if name, ok := connectionErrorNames[t]; ok {
		return name
	}
	return "connection failure"
}

// ConnectionError is returned when a request never got a response.
type ConnectionError struct {
	Endpoint string
	Type     ConnectionErrorType
	Reason   error
}

// ClassifyConnectionError wraps a transport error from the admin client.
// It returns nil for a nil err.
func ClassifyConnectionError(err error, endpoint string) *ConnectionError {
	if err == nil {
		return nil
	}
	return &ConnectionError{Endpoint: endpoint, Type: connectionErrorType(err), Reason: err}
}

// connectionErrorType checks the most specific causes first: a timed out or
// refused dial still arrives as a *net.OpError.
func connectionErrorType(err error) ConnectionErrorType {
	var (
		unknownAuthority x509.UnknownAuthorityError
		hostname         x509.HostnameError
		invalidCert      x509.CertificateInvalidError
		verification     *tls.CertificateVerificationError
		recordHeader     tls.RecordHeaderError
		dnsErr           *net.DNSError
		netErr           net.Error
		opErr            *net.OpError
	)
	switch {
	case errors.As(err, &unknownAuthority), errors.As(err, &hostname),
		errors.As(err, &invalidCert), errors.As(err, &verification),
		errors.As(err, &recordHeader):
		return ConnectionErrorTLS
	case errors.As(err, &dnsErr):
		return ConnectionErrorDNS
	case errors.As(err, &netErr) && netErr.Timeout():
		return ConnectionErrorTimeout
	case errors.As(err, &opErr):
		return ConnectionErrorNetwork
	default:
		return ConnectionErrorUnknown
	}
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: cannot reach %s: %v", e.Type, e.Endpoint, e.Reason)
}

func (e *ConnectionError) Unwrap() error { return e.Reason }

// Hint suggests what the user can check next. It is empty when there is
// nothing useful to say.
func (e *ConnectionError) Hint() string {
	switch e.Type {
	case ConnectionErrorNetwork:
		return "Is the control plane running? Start it with: conductor serve"
	case ConnectionErrorTLS:
		return "Check the server certificate or use an http:// endpoint for local servers"
	case ConnectionErrorDNS:
		return "Check the host name in --endpoint or CONDUCTOR_ENDPOINT"
	case ConnectionErrorTimeout:
		return "Increase --timeout or check the network path to the server"
	}
	return ""
}

// APIError is a problem response from the admin API.
type APIError struct {
	Status int
	Title  string
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("%d %s", e.Status, e.Title)
}

// IsAPIStatus reports whether err carries an APIError with the given status.
func IsAPIStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
