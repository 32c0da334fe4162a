package upstream

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
)

// Kind is the transport failure category observed on an upstream call.
type Kind string

const (
	KindTLS               Kind = "tls"
	KindTimeout           Kind = "timeout"
	KindConnectionRefused Kind = "connection_refused"
	KindDNS               Kind = "dns"
	KindNetwork           Kind = "network"
	KindOther             Kind = "other"
)

// TransportError is returned when no HTTP response was obtained from the upstream.
type TransportError struct {
	Kind Kind
	Op   string
	URL  string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upstream %s %s: %s: %v", e.Op, e.URL, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PanicError carries a non-error value recovered from the HTTP doer.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("upstream doer panicked: %v", e.Value)
}

// KindOf reports the transport kind of err, or "" when err is not a *TransportError.
func KindOf(err error) Kind {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// Classify inspects the error chain. TLS is checked first because a failed
// handshake also surfaces as a network operation error.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case isTLS(err):
		return KindTLS
	case isTimeout(err):
		return KindTimeout
	case isDNS(err):
		return KindDNS
	case errors.Is(err, syscall.ECONNREFUSED):
		return KindConnectionRefused
	case isNetwork(err):
		return KindNetwork
	default:
		return KindOther
	}
}

func isTLS(err error) bool {
	if errors.Is(err, http.ErrSchemeMismatch) {
		return true
	}
	var (
		recordErr    tls.RecordHeaderError
		alertErr     tls.AlertError
		verifyErr    *tls.CertificateVerificationError
		authorityErr x509.UnknownAuthorityError
		hostErr      x509.HostnameError
		invalidErr   x509.CertificateInvalidError
	)
	return errors.As(err, &recordErr) ||
		errors.As(err, &alertErr) ||
		errors.As(err, &verifyErr) ||
		errors.As(err, &authorityErr) ||
		errors.As(err, &hostErr) ||
		errors.As(err, &invalidErr)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isDNS(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isNetwork(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
