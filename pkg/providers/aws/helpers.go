package aws

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"

	"github.com/terrane-io/terrane/pkg/engine"
)

// stringProp extracts a string attribute with a default.
func stringProp(attrs map[string]any, key, def string) string {
	v, ok := attrs[key]
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// requireString extracts a mandatory string attribute.
func requireString(attrs map[string]any, key string) (string, error) {
	s := stringProp(attrs, key, "")
	if s == "" {
		return "", engine.NewPermanentError(
			fmt.Sprintf("attribute %q is required", key), nil).
			WithCode(engine.ErrCodeValidation)
	}
	return s, nil
}

// int32Prop extracts an integer attribute with a default.
func int32Prop(attrs map[string]any, key string, def int32) int32 {
	v, ok := attrs[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return int32(n)
	case int32:
		return n
	case int64:
		return int32(n)
	case float64:
		return int32(n)
	default:
		return def
	}
}

// float64Prop extracts a float attribute with a default.
func float64Prop(attrs map[string]any, key string, def float64) float64 {
	v, ok := attrs[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	default:
		return def
	}
}

// boolProp extracts a bool attribute with a default.
func boolProp(attrs map[string]any, key string, def bool) bool {
	v, ok := attrs[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// stringSliceProp extracts a string slice attribute.
func stringSliceProp(attrs map[string]any, key string) []string {
	v, ok := attrs[key]
	if !ok {
		return nil
	}
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		var result []string
		for _, item := range s {
			if str, ok := item.(string); ok {
				result = append(result, str)
			}
		}
		return result
	default:
		return nil
	}
}

// mapProp extracts a nested attribute map.
func mapProp(attrs map[string]any, key string) map[string]any {
	v, ok := attrs[key]
	if !ok {
		return nil
	}
	m, _ := v.(map[string]any)
	return m
}

// stringMapProp extracts a string-to-string attribute map, typically tags.
func stringMapProp(attrs map[string]any, key string) map[string]string {
	m := mapProp(attrs, key)
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// throttleCodes are API error codes that classify as throttling.
var throttleCodes = map[string]bool{
	"Throttling":                             true,
	"ThrottlingException":                    true,
	"TooManyRequestsException":               true,
	"RequestLimitExceeded":                   true,
	"ProvisionedThroughputExceededException": true,
}

// conflictCodes are API error codes that classify as state conflicts.
var conflictCodes = map[string]bool{
	"ConflictException":           true,
	"ResourceInUseException":      true,
	"ResourceConflictException":   true,
	"InvalidParameterCombination": true,
	"DependencyViolation":         true,
}

// classifyAWSError wraps an SDK error with an engine classification. API
// errors map by code; anything that never reached the service (DNS,
// timeouts, connection resets) counts as transient.
func classifyAWSError(operation string, err error) *engine.EngineError {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return engine.NewTransientError(operation, err).
			WithCode(engine.ErrCodeProviderFailed).
			WithOperation(operation)
	}

	code := apiErr.ErrorCode()
	switch {
	case throttleCodes[code]:
		return engine.NewThrottledError(operation, err).
			WithCode(engine.ErrCodeProviderFailed).
			WithOperation(operation)
	case conflictCodes[code]:
		return engine.NewConflictError(operation, err).
			WithCode(engine.ErrCodeProviderFailed).
			WithOperation(operation)
	default:
		return engine.NewPermanentError(operation, err).
			WithCode(engine.ErrCodeProviderFailed).
			WithOperation(operation)
	}
}

// isNotFound reports whether err is an API not-found error. Deletes treat
// these as success so removing an already-absent resource stays idempotent.
func isNotFound(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	code := apiErr.ErrorCode()
	for _, c := range codes {
		if code == c {
			return true
		}
	}
	return false
}
