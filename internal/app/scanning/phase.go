package scanning

import (
	"context"

	"github.com/avelar/facetrace/internal/domain/scanning"
)

// PhaseResult is the explicit outcome of one source scanner's full execution
// within a job. The orchestrator collects one per phase instead of relying on
// panics or swallowed errors, which makes the partial-failure policy a visible
// data flow: a phase with a non-nil Err still counts as an attempted phase and
// does not abort the job, unless Err wraps scanning.ErrResultPersistence, the
// one class the orchestrator surfaces for retry.
type PhaseResult struct {
	// Source identifies which scanner produced this result.
	Source scanning.SourceType

	// ImagesScanned is the number of candidates evaluated, successfully or not.
	ImagesScanned int64

	// MatchesPersisted is the number of results written during the phase.
	MatchesPersisted int64

	// Err is the scanner-level failure, if any. Candidate-level errors are
	// absorbed inside the scanner and never surface here.
	Err error
}

// SourceScanner executes one scan phase against a single provenance. All
// implementations persist qualifying results as they are found and bump the
// job's images-scanned counter per candidate; they never touch job status.
type SourceScanner interface {
	// SourceType identifies the provenance this scanner covers.
	SourceType() scanning.SourceType

	// Scan evaluates candidates for the job against its active reference
	// faces. Candidate-level failures are logged and skipped; only a failure
	// of the whole phase is reported through PhaseResult.Err.
	Scan(ctx context.Context, job *scanning.Job, refs []scanning.ReferenceFace) PhaseResult
}
