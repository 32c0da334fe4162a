package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"intake/internal/upstream"
)

// Classify maps a failed upstream call to an envelope. First match wins:
// configuration, TLS, timeout, network, any other error, non-error panic.
func Classify(err error) ErrorEnvelope {
	if errors.Is(err, upstream.ErrNotConfigured) {
		return newErrorEnvelope(ConfigurationError, msgNotConfigured)
	}

	var panicErr *upstream.PanicError
	if errors.As(err, &panicErr) {
		return newErrorEnvelope(UnknownError, msgUnknown)
	}

	if errors.Is(err, upstream.ErrResponseTooLarge) {
		env := newErrorEnvelope(ServerError, msgResponseTooLarge)
		env.Error.StatusCode = http.StatusBadGateway
		return env
	}

	var te *upstream.TransportError
	if errors.As(err, &te) {
		switch te.Kind {
		case upstream.KindTLS:
			env := newErrorEnvelope(SSLError, msgSSL)
			env.Error.Details = detailsSSL
			env.Error.URL = te.URL
			return env
		case upstream.KindTimeout:
			env := newErrorEnvelope(TimeoutError, msgTimeout)
			env.Error.Note = noteTimeout
			return env
		case upstream.KindDNS, upstream.KindConnectionRefused, upstream.KindNetwork:
			env := newErrorEnvelope(NetworkError, msgNetwork)
			env.Error.Details = te.Err.Error()
			return env
		}
		return serverError(te.Err)
	}

	if err == nil {
		return newErrorEnvelope(UnknownError, msgUnknown)
	}
	return serverError(err)
}

func serverError(err error) ErrorEnvelope {
	msg := msgServerDefault
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return newErrorEnvelope(ServerError, msg)
}

// FromUpstream decides what the browser receives for an upstream reply:
// the status to write and the exact body bytes.
func FromUpstream(resp *upstream.Response) (int, []byte) {
	if !resp.OK() {
		return fromUpstreamFailure(resp)
	}

	trimmed := strings.TrimSpace(string(resp.Body))
	if resp.IsJSON() && trimmed != "" {
		if json.Valid(resp.Body) {
			return resp.StatusCode, resp.Body
		}
		env := newErrorEnvelope(ServerError, msgInvalidUpstreamJS)
		return env.Error.StatusCode, mustMarshal(env)
	}

	message := trimmed
	if message == "" {
		message = msgProcessed
	}
	status := resp.StatusCode
	if status == http.StatusNoContent || status == http.StatusResetContent {
		status = http.StatusOK
	}
	return status, mustMarshal(SuccessEnvelope{Success: true, Message: message})
}

// fromUpstreamFailure passes a JSON error body through untouched and wraps
// anything else in a synthesized envelope.
func fromUpstreamFailure(resp *upstream.Response) (int, []byte) {
	if json.Valid(resp.Body) && resp.StatusCode >= 400 {
		return resp.StatusCode, resp.Body
	}

	text := strings.TrimSpace(string(resp.Body))
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "?")
	}

	var env ErrorEnvelope
	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		env = newErrorEnvelope(ServiceUnavailable, text)
		if text == "" {
			env.Error.Message = msgUnavailable
		}
		env.Error.Details = detailsUnavailable
	case resp.StatusCode >= 400:
		env = newErrorEnvelope(ServerError, text)
		if text == "" {
			env.Error.Message = fmt.Sprintf("Error %d: %s", resp.StatusCode, resp.StatusText)
		}
	default:
		// 1xx/3xx cannot carry an envelope; report a bad gateway instead.
		env = newErrorEnvelope(ServerError, fmt.Sprintf("Error %d: %s", resp.StatusCode, resp.StatusText))
		env.Error.StatusCode = http.StatusBadGateway
		return env.Error.StatusCode, mustMarshal(env)
	}
	env.Error.StatusCode = resp.StatusCode
	return env.Error.StatusCode, mustMarshal(env)
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Envelopes hold only strings and ints.
		panic(err)
	}
	return data
}
