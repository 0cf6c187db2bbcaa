package imagemirror

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mytestlab123/pipeline/pkg/apis/v1/mirror"
	"github.com/mytestlab123/pipeline/pkg/imagelist"
)

var acme = mirror.Target{Registry: "docker.io", Namespace: "acme"}

// fakeTransport is an in-memory registry pair: destinations in existing are
// already mirrored, sources in failCopy refuse to transfer.
type fakeTransport struct {
	lock       sync.Mutex
	existing   map[string]bool
	failCopy   map[string]string
	probeError bool // existence probes report absent even for existing refs
	copies     []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		existing: map[string]bool{},
		failCopy: map[string]string{},
	}
}

func (f *fakeTransport) Exists(ctx context.Context, ref mirror.Reference) bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.probeError {
		return false
	}
	return f.existing[ref.String()]
}

func (f *fakeTransport) Copy(ctx context.Context, src, dst mirror.Reference) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if reason, ok := f.failCopy[src.String()]; ok {
		return errors.New(reason)
	}
	f.copies = append(f.copies, src.String())
	f.existing[dst.String()] = true
	return nil
}

func mustList(t *testing.T, refs ...string) imagelist.List {
	t.Helper()
	list, err := imagelist.FromStrings(refs)
	require.NoError(t, err)
	return list
}

func TestCopyAll(t *testing.T) {
	transport := newFakeTransport()
	transport.existing["docker.io/acme/seqtk:latest"] = true

	sources := mustList(t,
		"quay.io/biocontainers/fastqc:0.12.1",
		"quay.io/biocontainers/seqtk",
	)

	destinations, report := NewCopier(transport, acme).CopyAll(context.Background(), sources)

	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Copied)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Failed)
	assert.NoError(t, report.Err())

	// A skip is success: the destination list carries both entries, in
	// source order.
	assert.Equal(t, []string{
		"docker.io/acme/fastqc:0.12.1",
		"docker.io/acme/seqtk:latest",
	}, destinations.Strings())
}

func TestCopyAllIdempotent(t *testing.T) {
	transport := newFakeTransport()
	sources := mustList(t,
		"quay.io/biocontainers/fastqc:0.12.1",
		"quay.io/biocontainers/seqtk",
	)
	copier := NewCopier(transport, acme)

	first, firstReport := copier.CopyAll(context.Background(), sources)
	require.NoError(t, firstReport.Err())
	assert.Equal(t, 2, firstReport.Copied)

	second, secondReport := copier.CopyAll(context.Background(), sources)
	assert.Equal(t, 0, secondReport.Copied)
	assert.Equal(t, 2, secondReport.Skipped)
	assert.Equal(t, 0, secondReport.Failed)
	assert.Equal(t, first, second)
}

func TestCopyAllRerunAgainstPopulatedMirror(t *testing.T) {
	// Scenario: destination already contains acme/fastqc:0.12.1.
	transport := newFakeTransport()
	transport.existing["docker.io/acme/fastqc:0.12.1"] = true

	sources := mustList(t, "quay.io/biocontainers/fastqc:0.12.1")
	_, report := NewCopier(transport, acme).CopyAll(context.Background(), sources)

	assert.Equal(t, mirror.CopyReport{Total: 1, Copied: 0, Skipped: 1, Failed: 0}, report)
}

func TestCopyAllNoEarlyAbort(t *testing.T) {
	transport := newFakeTransport()
	transport.failCopy["quay.io/biocontainers/bwa:0.7.17"] = "manifest unknown"

	sources := mustList(t,
		"quay.io/biocontainers/fastqc:0.12.1",
		"quay.io/biocontainers/bwa:0.7.17",
		"quay.io/biocontainers/seqtk",
		"quay.io/biocontainers/samtools:1.19",
	)

	destinations, report := NewCopier(transport, acme).CopyAll(context.Background(), sources)

	// Entry #2 failed; #3 and #4 were still attempted and succeeded.
	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 3, report.Copied)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, report.Total, report.Copied+report.Skipped+report.Failed)
	require.Error(t, report.Err())

	require.Len(t, report.Failures, 1)
	assert.Equal(t, "quay.io/biocontainers/bwa:0.7.17", report.Failures[0].Source.String())
	assert.Equal(t, "manifest unknown", report.Failures[0].Reason)

	// The failed destination is absent from the list.
	assert.Equal(t, []string{
		"docker.io/acme/fastqc:0.12.1",
		"docker.io/acme/seqtk:latest",
		"docker.io/acme/samtools:1.19",
	}, destinations.Strings())
}

// An erroring existence probe counts as "not present": the copy is attempted
// and only its outcome reaches the tally.
func TestCopyAllProbeErrorCausesReattempt(t *testing.T) {
	transport := newFakeTransport()
	transport.probeError = true

	sources := mustList(t, "quay.io/biocontainers/fastqc:0.12.1")
	_, report := NewCopier(transport, acme).CopyAll(context.Background(), sources)

	assert.Equal(t, mirror.CopyReport{Total: 1, Copied: 1, Skipped: 0, Failed: 0}, report)
	assert.Equal(t, []string{"quay.io/biocontainers/fastqc:0.12.1"}, transport.copies)
}

// Parallel execution must be outcome-equivalent to sequential: same report,
// same destination list order.
func TestCopyAllParallelOutcomeEquivalence(t *testing.T) {
	refs := []string{
		"quay.io/biocontainers/fastqc:0.12.1",
		"quay.io/biocontainers/bwa:0.7.17",
		"quay.io/biocontainers/seqtk",
		"quay.io/biocontainers/samtools:1.19",
		"quay.io/biocontainers/bcftools:1.19",
		"quay.io/biocontainers/multiqc:1.21",
	}

	run := func(parallel int) (imagelist.List, mirror.CopyReport) {
		transport := newFakeTransport()
		transport.existing["docker.io/acme/seqtk:latest"] = true
		transport.failCopy["quay.io/biocontainers/bwa:0.7.17"] = "manifest unknown"
		copier := NewCopier(transport, acme, WithParallelism(parallel))
		return copier.CopyAll(context.Background(), mustList(t, refs...))
	}

	wantDestinations, wantReport := run(1)
	for _, parallel := range []int{2, 4, 16} {
		destinations, report := run(parallel)
		assert.Equal(t, wantDestinations, destinations, "parallel=%d", parallel)
		assert.Equal(t, wantReport, report, "parallel=%d", parallel)
	}
}

func TestCopyAllCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	transport := newFakeTransport()
	sources := mustList(t, "quay.io/biocontainers/fastqc:0.12.1")

	_, report := NewCopier(transport, acme).CopyAll(ctx, sources)

	// Nothing is launched after cancellation, but the report still
	// accounts for every entry.
	assert.Equal(t, 1, report.Total)
	assert.Equal(t, 1, report.Failed)
	assert.Empty(t, transport.copies)
}
