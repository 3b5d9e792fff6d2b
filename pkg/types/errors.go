package types

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every layer. Each error is a small concrete type
// with a constructor and an Is* predicate so callers can branch without
// string matching. Predicates use errors.As and therefore see through
// wrapping.

// catalogUnavailableError signals that the catalog source is unreachable and
// no cached copy exists.
type catalogUnavailableError struct{ cause error }

func (e catalogUnavailableError) Error() string {
	return "catalog unavailable: " + e.cause.Error()
}
func (e catalogUnavailableError) Unwrap() error { return e.cause }

// ErrCatalogUnavailable constructs a catalogUnavailableError.
func ErrCatalogUnavailable(cause error) error { return catalogUnavailableError{cause: cause} }

// IsCatalogUnavailable reports whether err indicates an unreachable catalog.
func IsCatalogUnavailable(err error) bool {
	var e catalogUnavailableError
	return errors.As(err, &e)
}

// modelNotFoundError signals that a name or alias resolved to no catalog entry.
type modelNotFoundError struct{ name string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.name }

// ErrModelNotFound returns an error for an unresolved model name or alias.
func ErrModelNotFound(name string) error { return modelNotFoundError{name: name} }

// IsModelNotFound reports whether the error indicates an unresolved model.
func IsModelNotFound(err error) bool {
	var e modelNotFoundError
	return errors.As(err, &e)
}

// noCompatibleProviderError signals an empty intersection between host
// capability and an entry's supported providers.
type noCompatibleProviderError struct{ modelID string }

func (e noCompatibleProviderError) Error() string {
	return "no compatible execution provider for model: " + e.modelID
}

// ErrNoCompatibleProvider constructs a noCompatibleProviderError.
func ErrNoCompatibleProvider(modelID string) error {
	return noCompatibleProviderError{modelID: modelID}
}

// IsNoCompatibleProvider reports whether err indicates a provider mismatch.
func IsNoCompatibleProvider(err error) bool {
	var e noCompatibleProviderError
	return errors.As(err, &e)
}

// serviceLaunchError signals that the daemon process could not be started or
// exited before becoming healthy.
type serviceLaunchError struct {
	detail string
	cause  error
}

func (e serviceLaunchError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("service launch failed: %s: %v", e.detail, e.cause)
	}
	return "service launch failed: " + e.detail
}
func (e serviceLaunchError) Unwrap() error { return e.cause }

// ErrServiceLaunch constructs a serviceLaunchError.
func ErrServiceLaunch(detail string, cause error) error {
	return serviceLaunchError{detail: detail, cause: cause}
}

// IsServiceLaunchError reports whether err indicates a failed daemon launch.
func IsServiceLaunchError(err error) bool {
	var e serviceLaunchError
	return errors.As(err, &e)
}

// serviceStartTimeoutError signals the daemon never became healthy within the
// startup deadline.
type serviceStartTimeoutError struct{ endpoint string }

func (e serviceStartTimeoutError) Error() string {
	return "service not healthy before startup deadline: " + e.endpoint
}

// ErrServiceStartTimeout constructs a serviceStartTimeoutError.
func ErrServiceStartTimeout(endpoint string) error {
	return serviceStartTimeoutError{endpoint: endpoint}
}

// IsServiceStartTimeout reports whether err indicates a startup deadline miss.
func IsServiceStartTimeout(err error) bool {
	var e serviceStartTimeoutError
	return errors.As(err, &e)
}

// serviceNotRunningError signals an operation that requires a running daemon.
type serviceNotRunningError struct{ op string }

func (e serviceNotRunningError) Error() string {
	return "service not running (required by " + e.op + ")"
}

// ErrServiceNotRunning constructs a serviceNotRunningError for operation op.
func ErrServiceNotRunning(op string) error { return serviceNotRunningError{op: op} }

// IsServiceNotRunning reports whether err indicates a stopped daemon.
func IsServiceNotRunning(err error) bool {
	var e serviceNotRunningError
	return errors.As(err, &e)
}

// downloadFailedError signals a failed model transfer or integrity check.
type downloadFailedError struct {
	modelID string
	cause   error
}

func (e downloadFailedError) Error() string {
	return fmt.Sprintf("download failed for model %s: %v", e.modelID, e.cause)
}
func (e downloadFailedError) Unwrap() error { return e.cause }

// ErrDownloadFailed constructs a downloadFailedError.
func ErrDownloadFailed(modelID string, cause error) error {
	return downloadFailedError{modelID: modelID, cause: cause}
}

// IsDownloadFailed reports whether err indicates a failed transfer.
func IsDownloadFailed(err error) bool {
	var e downloadFailedError
	return errors.As(err, &e)
}

// loadFailedError signals the daemon rejected or timed out a load request.
type loadFailedError struct {
	modelID string
	cause   error
}

func (e loadFailedError) Error() string {
	return fmt.Sprintf("load failed for model %s: %v", e.modelID, e.cause)
}
func (e loadFailedError) Unwrap() error { return e.cause }

// ErrLoadFailed constructs a loadFailedError.
func ErrLoadFailed(modelID string, cause error) error {
	return loadFailedError{modelID: modelID, cause: cause}
}

// IsLoadFailed reports whether err indicates a rejected load.
func IsLoadFailed(err error) bool {
	var e loadFailedError
	return errors.As(err, &e)
}
