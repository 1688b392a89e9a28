package scanning

import "errors"

var (
	// ErrJobNotFound indicates the referenced scan job does not exist. A
	// delivery for a missing job is non-recoverable and must not be retried.
	ErrJobNotFound = errors.New("scan job not found")

	// ErrNoActiveReferencePhotos indicates a job was dequeued for a user with
	// zero active reference faces. The job fails fast before any source
	// scanner runs.
	ErrNoActiveReferencePhotos = errors.New("no active reference photos")

	// ErrInvalidCredential indicates a social account's access credential is
	// missing, expired or revoked. The account is skipped; the job continues.
	ErrInvalidCredential = errors.New("invalid or expired credential")

	// ErrTokenNotFound indicates a transient correlation token was never set
	// or already consumed.
	ErrTokenNotFound = errors.New("transient token not found")

	// ErrResultNotFound indicates the referenced scan result does not exist.
	ErrResultNotFound = errors.New("scan result not found")

	// ErrResultPersistence indicates a qualifying match could not be written
	// to the result store. This is a transient infrastructure fault: the
	// delivery must be handed back to the retry layer, never absorbed as a
	// scanner-level failure, or the match would be silently lost.
	ErrResultPersistence = errors.New("failed to persist scan result")

	// ErrJobNotCancellable indicates a cancel request arrived after the job
	// already reached a terminal state.
	ErrJobNotCancellable = errors.New("job is not cancellable")
)
