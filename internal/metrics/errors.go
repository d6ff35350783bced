package metrics

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"os"
	"strings"
	"syscall"
)

// Transport error categories reported in HTTP stats.
const (
	ErrorTimeout           = "timeout"
	ErrorCanceled          = "canceled"
	ErrorConnectionRefused = "connection refused"
	ErrorConnectionReset   = "connection reset"
	ErrorDNS               = "dns lookup failed"
	ErrorTLS               = "tls error"
	ErrorNetwork           = "network error"
	ErrorOther             = "other"
)

// ClassifyError maps a transport error to a short category so that errors
// from many requests can be counted together.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}

	var dnsErr *net.DNSError
	var netErr net.Error
	var certErr *tls.CertificateVerificationError
	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var recordErr tls.RecordHeaderError
	var opErr *net.OpError

	switch {
	case errors.Is(err, context.Canceled):
		return ErrorCanceled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return ErrorTimeout
	case errors.As(err, &dnsErr):
		return ErrorDNS
	case errors.Is(err, syscall.ECONNREFUSED):
		return ErrorConnectionRefused
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return ErrorConnectionReset
	case errors.As(err, &certErr), errors.As(err, &unknownAuthority),
		errors.As(err, &hostnameErr), errors.As(err, &recordErr):
		return ErrorTLS
	case errors.As(err, &netErr) && netErr.Timeout():
		return ErrorTimeout
	case errors.As(err, &opErr):
		return ErrorNetwork
	}

	// Some transports only surface a message.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"):
		return ErrorConnectionRefused
	case strings.Contains(msg, "connection reset"), strings.Contains(msg, "broken pipe"):
		return ErrorConnectionReset
	case strings.Contains(msg, "timeout"):
		return ErrorTimeout
	case strings.Contains(msg, "no such host"):
		return ErrorDNS
	case strings.Contains(msg, "tls:"), strings.Contains(msg, "x509:"):
		return ErrorTLS
	}
	return ErrorOther
}
