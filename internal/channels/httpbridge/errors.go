package httpbridge

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrCallbackUnavailable means neither a remembered nor a default callback
// URL exists for the conversation.
var ErrCallbackUnavailable = errors.New("callbackUrl is required (or set channels.httpbridge.callbackDefault)")

// ErrMissingTarget is returned by direct sends without a conversation id.
var ErrMissingTarget = errors.New("delivering to HTTP Bridge requires target <conversationId>")

// InboundErrorKind classifies rejected inbound requests.
type InboundErrorKind string

const (
	KindMethodNotAllowed    InboundErrorKind = "method_not_allowed"
	KindPayloadTooLarge     InboundErrorKind = "payload_too_large"
	KindInvalidPayload      InboundErrorKind = "invalid_payload"
	KindUnauthorized        InboundErrorKind = "unauthorized"
	KindCallbackInvalid     InboundErrorKind = "callback_invalid"
	KindCallbackUnavailable InboundErrorKind = "callback_unavailable"
	KindRateLimited         InboundErrorKind = "rate_limited"
)

// InboundError is a client-facing rejection: an HTTP status and a plain-text body.
type InboundError struct {
	Kind    InboundErrorKind
	Status  int
	Message string
	Err     error
}

func (e *InboundError) Error() string { return e.Message }

func (e *InboundError) Unwrap() error { return e.Err }

func errMethodNotAllowed() *InboundError {
	return &InboundError{Kind: KindMethodNotAllowed, Status: http.StatusMethodNotAllowed, Message: "Method Not Allowed"}
}

func errPayloadTooLarge() *InboundError {
	return &InboundError{Kind: KindPayloadTooLarge, Status: http.StatusRequestEntityTooLarge, Message: "payload too large"}
}

func errInvalidPayload(msg string) *InboundError {
	return &InboundError{Kind: KindInvalidPayload, Status: http.StatusBadRequest, Message: msg}
}

func errUnauthorized() *InboundError {
	return &InboundError{Kind: KindUnauthorized, Status: http.StatusUnauthorized, Message: "unauthorized"}
}

func errCallbackInvalid(msg string) *InboundError {
	return &InboundError{Kind: KindCallbackInvalid, Status: http.StatusBadRequest, Message: msg}
}

func errCallbackUnavailable() *InboundError {
	return &InboundError{
		Kind:    KindCallbackUnavailable,
		Status:  http.StatusBadRequest,
		Message: ErrCallbackUnavailable.Error(),
		Err:     ErrCallbackUnavailable,
	}
}

func errRateLimited() *InboundError {
	return &InboundError{Kind: KindRateLimited, Status: http.StatusTooManyRequests, Message: "rate limited"}
}

// DeliveryError is a failed callback POST: either a non-2xx status or a
// transport error.
type DeliveryError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("callback failed: %v", e.Err)
	}
	return fmt.Sprintf("callback failed (%d)", e.StatusCode)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
