package download

import "errors"

// Sentinel errors per the taxonomy in spec §7. Each is wrapped with
// contextual detail via fmt.Errorf("...: %w", err) and checked with
// errors.Is by callers.
var (
	// ErrBadScheme is returned immediately for any non-HTTPS URL.
	ErrBadScheme = errors.New("download: URL scheme must be https")
	// ErrSecureConnection covers TLS/hostname verification failures.
	ErrSecureConnection = errors.New("download: secure connection failed")
	// ErrTransport covers network I/O failures and non-200 responses.
	ErrTransport = errors.New("download: transport error")
	// ErrHashVerification is returned when the computed SHA-256 does not
	// match the expected value.
	ErrHashVerification = errors.New("download: hash verification failed")
	// ErrRetryExhausted is returned once every mirror and attempt has failed.
	ErrRetryExhausted = errors.New("download: all retries exhausted")
)
