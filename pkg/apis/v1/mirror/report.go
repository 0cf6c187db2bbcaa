package mirror

import "fmt"

// CopyState is the terminal state of one source image in a mirroring batch.
type CopyState string

const (
	// Copied means the image content was transferred to the destination.
	Copied CopyState = "copied"
	// Skipped means the destination already existed; a skip is success.
	Skipped CopyState = "skipped"
	// CopyFailed means the transfer was attempted and failed.
	CopyFailed CopyState = "failed"
)

// CopyOutcome records what happened to a single source reference.
type CopyOutcome struct {
	Source      Reference
	Destination Reference
	State       CopyState
	Reason      string // populated only for CopyFailed
}

// CopyFailure is one failed source and why, as surfaced in the manifest.
type CopyFailure struct {
	Source Reference
	Reason string
}

// CopyReport aggregates a whole batch. Total == Copied + Skipped + Failed.
type CopyReport struct {
	Total    int
	Copied   int
	Skipped  int
	Failed   int
	Failures []CopyFailure
}

// NewCopyReport reduces per-image outcomes into a report.
func NewCopyReport(outcomes []CopyOutcome) CopyReport {
	report := CopyReport{Total: len(outcomes)}
	for _, outcome := range outcomes {
		switch outcome.State {
		case Copied:
			report.Copied++
		case Skipped:
			report.Skipped++
		case CopyFailed:
			report.Failed++
			report.Failures = append(report.Failures, CopyFailure{
				Source: outcome.Source,
				Reason: outcome.Reason,
			})
		}
	}
	return report
}

// Err returns a non-nil error iff any image failed. The batch as a whole
// fails only after every item was attempted.
func (r CopyReport) Err() error {
	if r.Failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d images failed to mirror", r.Failed, r.Total)
}

// AliasState is the terminal state of one source entry during offline
// resolution: Unresolved -> Pulled -> Joined -> Aliased on success, or one
// of the failure states.
type AliasState string

const (
	// Aliased means the original reference now points at mirrored content.
	Aliased AliasState = "aliased"
	// PullFailed means the matching destination could not be pulled.
	PullFailed AliasState = "pull-failed"
	// JoinFailed means no destination entry shares the source's
	// (basename, tag) key; the two lists came from inconsistent runs.
	JoinFailed AliasState = "join-failed"
	// AliasFailed means the local retag itself was rejected by the engine.
	AliasFailed AliasState = "alias-failed"
)

// AliasOutcome records what happened to a single source during resolve.
type AliasOutcome struct {
	Source      Reference
	Destination Reference // zero when State == JoinFailed
	State       AliasState
	Reason      string
}

// AliasReport aggregates an offline resolve.
// Total == Aliased + PullFailed + JoinFailed + AliasFailed.
type AliasReport struct {
	Total       int
	Aliased     int
	PullFailed  int
	JoinFailed  int
	AliasFailed int
	Failures    []AliasOutcome
}

// NewAliasReport reduces per-source outcomes into a report.
func NewAliasReport(outcomes []AliasOutcome) AliasReport {
	report := AliasReport{Total: len(outcomes)}
	for _, outcome := range outcomes {
		switch outcome.State {
		case Aliased:
			report.Aliased++
			continue
		case PullFailed:
			report.PullFailed++
		case JoinFailed:
			report.JoinFailed++
		case AliasFailed:
			report.AliasFailed++
		}
		report.Failures = append(report.Failures, outcome)
	}
	return report
}

// Err returns a non-nil error iff any source failed to resolve.
func (r AliasReport) Err() error {
	failed := r.PullFailed + r.JoinFailed + r.AliasFailed
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d images failed to resolve", failed, r.Total)
}
