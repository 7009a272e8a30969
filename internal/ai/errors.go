package ai

import "errors"

// Completion failures. Callers match them with errors.Is; the job record
// stores the classified kind, not these values.
var (
	// ErrProviderUnavailable means the chat endpoint could not be reached or
	// rejected the request.
	ErrProviderUnavailable = errors.New("llm provider unavailable")
	// ErrInferenceTimeout means one completion outlived AI_INFERENCE_TIMEOUT_SECS.
	ErrInferenceTimeout = errors.New("llm completion timed out")
	ErrInvalidResponse  = errors.New("llm returned an unusable completion")
)

// Retryable reports whether an agent may ask the model again after err.
// Only unusable answers are retried; transport failures and timeouts are not.
func Retryable(err error) bool {
	return errors.Is(err, ErrInvalidResponse)
}
