// Package errors carries the failure taxonomy shared between the
// pipeline, the scheduler, and the API layer.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure so callers can decide whether to skip,
// fall back, or abort.
type Kind string

const (
	// KindTransientFetch is a network or timeout failure fetching a
	// listing page or article body. Skip the item, keep going.
	KindTransientFetch Kind = "transient_fetch"
	// KindUpstreamUnavailable is the remote summarizer being down,
	// unauthorized, or out of quota. Triggers the sticky local fallback.
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	// KindEmptyInput means there was nothing to summarize.
	KindEmptyInput Kind = "empty_input"
	// KindNoContent means a whole run produced zero articles.
	KindNoContent Kind = "no_content"
	// KindRenderFailure means document assembly failed. No partial
	// artifact is ever produced.
	KindRenderFailure Kind = "render_failure"
	// KindDelivery is a dispatch failure, sub-classified by Reason.
	KindDelivery Kind = "delivery"
)

// DeliveryReason narrows a KindDelivery error enough for an operator
// to judge whether a manual retry could help.
type DeliveryReason string

const (
	ReasonAuth      DeliveryReason = "auth"
	ReasonRecipient DeliveryReason = "recipient"
	ReasonNetwork   DeliveryReason = "network"
)

// Error is the structured error passed between components.
type Error struct {
	Kind   Kind
	Reason DeliveryReason // set only for KindDelivery
	Status int            // HTTP status for the API layer
	Err    error          // the error this wraps
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// statusFor maps each kind to the HTTP status the API surfaces.
var statusFor = map[Kind]int{
	KindTransientFetch:      http.StatusBadGateway,
	KindUpstreamUnavailable: http.StatusBadGateway,
	KindEmptyInput:          http.StatusUnprocessableEntity,
	KindNoContent:           http.StatusNotFound,
	KindRenderFailure:       http.StatusInternalServerError,
	KindDelivery:            http.StatusBadGateway,
}

// E builds an *Error from whatever is passed in: a Kind, a
// DeliveryReason, an int status, a string message, or an error to wrap.
func E(args ...any) *Error {
	ret := &Error{
		Status: http.StatusInternalServerError,
	}

	for _, arg := range args {
		switch arg := arg.(type) {
		case Kind:
			ret.Kind = arg
			if s, ok := statusFor[arg]; ok {
				ret.Status = s
			}
		case DeliveryReason:
			ret.Reason = arg
		case int:
			ret.Status = arg
		case string:
			ret.Err = errors.New(arg)
		case error:
			ret.Err = arg
		}
	}
	if ret.Err == nil {
		ret.Err = errors.New(string(ret.Kind))
	}

	return ret
}

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// ReasonOf extracts the delivery reason from err, or "" if it isn't a
// delivery error.
func ReasonOf(err error) DeliveryReason {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindDelivery {
		return e.Reason
	}
	return ""
}

type transport struct {
	Message string `json:"message"`
	Kind    Kind   `json:"kind"`
	Reason  string `json:"reason,omitempty"`
	Status  int    `json:"status"`
}

func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(transport{
		Message: e.Err.Error(),
		Kind:    e.Kind,
		Reason:  string(e.Reason),
		Status:  e.Status,
	})
}
