package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error codes surfaced to the triggering actor.
const (
	CodeSystemClosed      = "SYSTEM_CLOSED"
	CodeCooldownActive    = "COOLDOWN_ACTIVE"
	CodeDuplicateTicket   = "DUPLICATE_TICKET"
	CodePermissionDenied  = "PERMISSION_DENIED"
	CodeKeywordMissing    = "KEYWORD_MISSING"
	CodeAttachmentMissing = "ATTACHMENT_MISSING"
	CodeRewardNotFound    = "REWARD_NOT_FOUND"
	CodeAlreadyClosed     = "ALREADY_CLOSED"
	CodeNotAuthorized     = "NOT_AUTHORIZED"
	CodeAlreadyDecided    = "ALREADY_DECIDED"
	CodeInvalidState      = "INVALID_STATE"
	CodeNotFound          = "NOT_FOUND"
	CodeValidation        = "VALIDATION_FAILED"
	CodeClosureFailed     = "CLOSURE_FAILED"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeInternal          = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewSystemClosed(reason string) error {
	return NewDomainError(CodeSystemClosed, reason, http.StatusServiceUnavailable, map[string]any{"reason": reason})
}

// NewCooldownActive reports the time left before the user may open another ticket.
func NewCooldownActive(remaining time.Duration, expiresAt time.Time) error {
	return NewDomainError(CodeCooldownActive,
		fmt.Sprintf("cooldown active, try again in %s", FormatDuration(remaining)),
		http.StatusTooManyRequests,
		map[string]any{
			"remaining_seconds": int64(remaining.Seconds()),
			"expires_at":        expiresAt.UTC(),
		})
}

func NewDuplicateTicket(channelID string) error {
	return NewDomainError(CodeDuplicateTicket, "an active ticket already exists", http.StatusConflict,
		map[string]any{"channel_id": channelID})
}

func NewPermissionDenied(message string, err error) error {
	de := NewDomainError(CodePermissionDenied, message, http.StatusBadGateway, nil)
	de.Err = err
	return de
}

func NewKeywordMissing(required []string) error {
	return NewDomainError(CodeKeywordMissing, "required keyword missing from proof", http.StatusUnprocessableEntity,
		map[string]any{"required": required})
}

func NewAttachmentMissing() error {
	return NewDomainError(CodeAttachmentMissing, "proof screenshot attachment required", http.StatusUnprocessableEntity, nil)
}

func NewRewardNotFound(key string) error {
	return NewDomainError(CodeRewardNotFound, fmt.Sprintf("reward %q not found", key), http.StatusNotFound,
		map[string]any{"reward_key": key})
}

func NewAlreadyClosed(ticketID string) error {
	return NewDomainError(CodeAlreadyClosed, "ticket already closed", http.StatusConflict,
		map[string]any{"ticket_id": ticketID})
}

func NewNotAuthorized(message string) error {
	return NewDomainError(CodeNotAuthorized, message, http.StatusForbidden, nil)
}

func NewAlreadyDecided(reviewID string) error {
	return NewDomainError(CodeAlreadyDecided, "proof already decided", http.StatusConflict,
		map[string]any{"review_id": reviewID})
}

func NewInvalidState(message string, details map[string]any) error {
	return NewDomainError(CodeInvalidState, message, http.StatusConflict, details)
}

func NewClosureFailed(err error) error {
	de := NewDomainError(CodeClosureFailed, "ticket closure failed", http.StatusBadGateway, nil)
	de.Err = err
	return de
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err carries the given domain code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// FormatDuration renders a duration as H:MM:SS, dropping sub-second precision.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Truncate(time.Second)
	h := int64(d / time.Hour)
	m := int64((d % time.Hour) / time.Minute)
	s := int64((d % time.Minute) / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}
