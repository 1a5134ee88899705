package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Failure kinds. Every error returned by Service wraps exactly one of them.
var (
	ErrConfiguration  = errors.New("chat service is not configured")
	ErrAuth           = errors.New("chat service rejected the credentials")
	ErrQuota          = errors.New("chat service quota exhausted")
	ErrUnknownService = errors.New("chat service failed")
)

// User-facing texts for each failure kind.
const (
	MessageConfiguration = "لم يتم تكوين مفتاح API للذكاء الاصطناعي."
	MessageAuth          = "عذراً، يبدو أن هناك مشكلة في مفتاح API. يرجى التحقق منه."
	MessageQuota         = "عذراً، لقد تجاوزت حصتك من استخدام واجهة برمجة التطبيقات."
	MessageUnknown       = "عذراً، حدث خطأ غير متوقع أثناء الاتصال بالذكاء الاصطناعي."
)

var (
	authMarkers = []string{
		"api key not valid",
		"invalid api key",
		"invalid_api_key",
		"incorrect api key",
		"unauthorized",
		"authenticationerror",
		"permission_denied",
	}
	quotaMarkers = []string{
		"quota",
		"rate limit",
		"ratelimit",
		"rate_limit",
		"resource_exhausted",
		"accountoverdue",
	}
)

// ServiceError carries a failure kind plus the text shown to the user.
type ServiceError struct {
	Kind    error
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.Error()
}

func (e *ServiceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// UserMessage returns the text to display for err.
func UserMessage(err error) string {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Message != "" {
		return svcErr.Message
	}
	if err != nil && strings.TrimSpace(err.Error()) != "" {
		return err.Error()
	}
	return MessageUnknown
}

func configurationError(err error) *ServiceError {
	return &ServiceError{Kind: ErrConfiguration, Message: MessageConfiguration, Err: err}
}

// classify maps a backend failure onto a failure kind.
func classify(err error) *ServiceError {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}

	switch statusCode(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &ServiceError{Kind: ErrAuth, Message: MessageAuth, Err: err}
	case http.StatusTooManyRequests:
		return &ServiceError{Kind: ErrQuota, Message: MessageQuota, Err: err}
	}

	text := strings.ToLower(err.Error())
	if containsAny(text, authMarkers) {
		return &ServiceError{Kind: ErrAuth, Message: MessageAuth, Err: err}
	}
	if containsAny(text, quotaMarkers) {
		return &ServiceError{Kind: ErrQuota, Message: MessageQuota, Err: err}
	}

	message := strings.TrimSpace(err.Error())
	if message == "" || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		message = MessageUnknown
	}
	return &ServiceError{Kind: ErrUnknownService, Message: message, Err: err}
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func containsAny(text string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
