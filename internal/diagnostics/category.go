package diagnostics

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/shaiso/Procura/internal/domain"
)

// Category — категория ошибки.
type Category string

const (
	CategoryRateLimit    Category = "rate_limit"
	CategoryTokenLimit   Category = "token_limit"
	CategoryNetwork      Category = "network"
	CategoryTimeout      Category = "timeout"
	CategoryValidation   Category = "validation"
	CategoryBackendError Category = "backend_error"
	CategoryToolError    Category = "tool_error"
	CategoryUnknown      Category = "unknown"
)

// FallbackAction — действие, предлагаемое вызывающему после ошибки.
type FallbackAction string

const (
	FallbackNone             FallbackAction = ""
	FallbackUseFallbackModel FallbackAction = "use_fallback_model"
	FallbackReduceBatchSize  FallbackAction = "reduce_batch_size"
	FallbackSkipItem         FallbackAction = "skip_item"
	FallbackAbort            FallbackAction = "abort"
)

// Policy — политика обработки категории.
type Policy struct {
	Category    Category
	Recoverable bool
	BaseDelay   time.Duration
	MaxRetries  int
	Fallback    FallbackAction
	Remediation string
}

type rule struct {
	pattern *regexp.Regexp
	policy  Policy
}

// rules — упорядоченная таблица категорий, unknown не входит.
var rules = []rule{
	{
		pattern: regexp.MustCompile(`(?i)rate.?limit|too many requests|\b429\b|quota exceeded`),
		policy: Policy{
			Category:    CategoryRateLimit,
			Recoverable: true,
			BaseDelay:   2 * time.Second,
			MaxRetries:  5,
			Remediation: "wait for the upstream quota to refill or lower requests per second",
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)context.?length|context window|token.?limit|max(imum)?.?tokens|prompt is too long`),
		policy: Policy{
			Category:    CategoryTokenLimit,
			Recoverable: true,
			BaseDelay:   500 * time.Millisecond,
			MaxRetries:  2,
			Fallback:    FallbackReduceBatchSize,
			Remediation: "shorten descriptions or reduce the batch size",
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)connection (refused|reset|closed)|econnrefused|econnreset|no such host|broken pipe|network|unexpected eof`),
		policy: Policy{
			Category:    CategoryNetwork,
			Recoverable: true,
			BaseDelay:   time.Second,
			MaxRetries:  3,
			Remediation: "check connectivity to the upstream service",
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)timeout|timed out|deadline exceeded|etimedout`),
		policy: Policy{
			Category:    CategoryTimeout,
			Recoverable: true,
			BaseDelay:   2 * time.Second,
			MaxRetries:  3,
			Remediation: "raise the upstream timeout or reduce concurrency",
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)validation|invalid|malformed|unmarshal|cannot parse|failed to parse|schema|bad request|\b400\b`),
		policy: Policy{
			Category:    CategoryValidation,
			Recoverable: false,
			Fallback:    FallbackSkipItem,
			Remediation: "fix the input record or the model output format",
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)\b5\d\d\b|internal server error|service unavailable|bad gateway|overloaded|server error`),
		policy: Policy{
			Category:    CategoryBackendError,
			Recoverable: true,
			BaseDelay:   3 * time.Second,
			MaxRetries:  3,
			Fallback:    FallbackUseFallbackModel,
			Remediation: "retry later or switch to the fallback model",
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)\btool\b|taxonomy|search failed|lookup failed`),
		policy: Policy{
			Category:    CategoryToolError,
			Recoverable: true,
			BaseDelay:   500 * time.Millisecond,
			MaxRetries:  2,
			Fallback:    FallbackSkipItem,
			Remediation: "check the taxonomy index",
		},
	},
}

var unknownPolicy = Policy{
	Category:    CategoryUnknown,
	Recoverable: true,
	BaseDelay:   time.Second,
	MaxRetries:  1,
	Fallback:    FallbackAbort,
	Remediation: "inspect the error message and logs",
}

var canceledPolicy = Policy{
	Category:    CategoryUnknown,
	Recoverable: false,
	Fallback:    FallbackAbort,
	Remediation: "the operation was canceled by the caller",
}

// Diagnosis — результат классификации ошибки.
type Diagnosis struct {
	Policy
	Message string
}

// Classify определяет категорию ошибки.
// Отмена контекста невосстановима, истечение дедлайна — timeout.
func Classify(err error) Diagnosis {
	if err == nil {
		return Diagnosis{Policy: unknownPolicy}
	}
	msg := err.Error()

	switch {
	case errors.Is(err, context.Canceled):
		return Diagnosis{Policy: canceledPolicy, Message: msg}
	case errors.Is(err, context.DeadlineExceeded):
		return Diagnosis{Policy: PolicyFor(CategoryTimeout), Message: msg}
	}

	for _, r := range rules {
		if r.pattern.MatchString(msg) {
			return Diagnosis{Policy: r.policy, Message: msg}
		}
	}
	return Diagnosis{Policy: unknownPolicy, Message: msg}
}

// PolicyFor возвращает политику категории.
func PolicyFor(c Category) Policy {
	for _, r := range rules {
		if r.policy.Category == c {
			return r.policy
		}
	}
	return unknownPolicy
}

// Record строит ErrorRecord для журнала ошибок сессии.
func (d Diagnosis) Record(stage domain.Stage, recordID string, retryCount int) domain.ErrorRecord {
	return domain.ErrorRecord{
		Stage:          stage,
		RecordID:       recordID,
		Code:           string(d.Category),
		Message:        d.Message,
		Recoverable:    d.Recoverable,
		RetryCount:     retryCount,
		MaxRetries:     d.MaxRetries,
		FallbackAction: string(d.Fallback),
		Remediation:    d.Remediation,
		OccurredAt:     time.Now(),
	}
}
