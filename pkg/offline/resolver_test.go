package offline

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/docker/docker/api/types/image"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mytestlab123/pipeline/pkg/apis/v1/mirror"
	"github.com/mytestlab123/pipeline/pkg/imagelist"
)

// fakeEngine is an in-memory container engine: pulls fill local, tags alias
// into it.
type fakeEngine struct {
	lock     sync.Mutex
	failPull map[string]error
	failTag  map[string]error
	local    map[string]bool
	aliases  map[string]string // alias -> content it points at
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		failPull: map[string]error{},
		failTag:  map[string]error{},
		local:    map[string]bool{},
		aliases:  map[string]string{},
	}
}

func (f *fakeEngine) ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if err, ok := f.failPull[refStr]; ok {
		return nil, err
	}
	f.local[refStr] = true
	return io.NopCloser(strings.NewReader("{}")), nil
}

func (f *fakeEngine) ImageTag(ctx context.Context, source, target string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if err, ok := f.failTag[target]; ok {
		return err
	}
	if !f.local[source] {
		return errors.New("no such image: " + source)
	}
	f.aliases[target] = source
	return nil
}

func mustList(t *testing.T, refs ...string) imagelist.List {
	t.Helper()
	list, err := imagelist.FromStrings(refs)
	require.NoError(t, err)
	return list
}

func TestResolve(t *testing.T) {
	engine := newFakeEngine()
	sources := mustList(t, "quay.io/biocontainers/fastqc:0.12.1")
	destinations := mustList(t, "docker.io/acme/fastqc:0.12.1")

	report := NewResolver(engine).Resolve(context.Background(), sources, destinations)

	require.NoError(t, report.Err())
	assert.Equal(t, 1, report.Aliased)

	// The original, unmodified reference resolves to content pulled under
	// the mirrored name.
	assert.True(t, engine.local["docker.io/acme/fastqc:0.12.1"])
	assert.Equal(t, "docker.io/acme/fastqc:0.12.1",
		engine.aliases["quay.io/biocontainers/fastqc:0.12.1"])
}

func TestResolveJoinFailure(t *testing.T) {
	engine := newFakeEngine()
	sources := mustList(t,
		"quay.io/biocontainers/fastqc:0.12.1",
		"quay.io/biocontainers/bwa:0.7.17",
	)
	// bwa was never mirrored: the lists came from inconsistent runs.
	destinations := mustList(t, "docker.io/acme/fastqc:0.12.1")

	report := NewResolver(engine).Resolve(context.Background(), sources, destinations)

	// All matched entries are still aliased; the miss is a distinct,
	// reported failure, never a silent skip.
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Aliased)
	assert.Equal(t, 1, report.JoinFailed)
	assert.Equal(t, 0, report.PullFailed)
	require.Error(t, report.Err())

	require.Len(t, report.Failures, 1)
	assert.Equal(t, mirror.JoinFailed, report.Failures[0].State)
	assert.Equal(t, "quay.io/biocontainers/bwa:0.7.17", report.Failures[0].Source.String())

	assert.Equal(t, "docker.io/acme/fastqc:0.12.1",
		engine.aliases["quay.io/biocontainers/fastqc:0.12.1"])
}

func TestResolvePullFailure(t *testing.T) {
	engine := newFakeEngine()
	engine.failPull["docker.io/acme/fastqc:0.12.1"] = errors.New("no route to host")

	sources := mustList(t,
		"quay.io/biocontainers/fastqc:0.12.1",
		"quay.io/biocontainers/seqtk",
	)
	destinations := mustList(t,
		"docker.io/acme/fastqc:0.12.1",
		"docker.io/acme/seqtk:latest",
	)

	report := NewResolver(engine).Resolve(context.Background(), sources, destinations)

	// The failed pull does not stop the other destination from being
	// pulled and aliased.
	assert.Equal(t, 1, report.Aliased)
	assert.Equal(t, 1, report.PullFailed)
	assert.Equal(t, 0, report.JoinFailed)
	require.Error(t, report.Err())

	require.Len(t, report.Failures, 1)
	assert.Equal(t, mirror.PullFailed, report.Failures[0].State)
	assert.Contains(t, report.Failures[0].Reason, "no route to host")
	assert.Equal(t, "docker.io/acme/seqtk:latest",
		engine.aliases["quay.io/biocontainers/seqtk:latest"])
}

func TestResolveAliasFailure(t *testing.T) {
	engine := newFakeEngine()
	engine.failTag["quay.io/biocontainers/fastqc:0.12.1"] = errors.New("tag rejected")

	sources := mustList(t, "quay.io/biocontainers/fastqc:0.12.1")
	destinations := mustList(t, "docker.io/acme/fastqc:0.12.1")

	report := NewResolver(engine).Resolve(context.Background(), sources, destinations)

	assert.Equal(t, 1, report.AliasFailed)
	require.Error(t, report.Err())
}

func TestResolveJoinIgnoresRegistryAndNamespace(t *testing.T) {
	// The join key is (basename, tag) only; source registry and namespace
	// never have to match the destination's.
	engine := newFakeEngine()
	sources := mustList(t, "ghcr.io/org/team/tool:v2")
	destinations := mustList(t, "registry.internal:5000/mirror/tool:v2")

	report := NewResolver(engine).Resolve(context.Background(), sources, destinations)

	require.NoError(t, report.Err())
	assert.Equal(t, "registry.internal:5000/mirror/tool:v2",
		engine.aliases["ghcr.io/org/team/tool:v2"])
}

func TestResolveParallelOutcomeEquivalence(t *testing.T) {
	sources := []string{
		"quay.io/biocontainers/fastqc:0.12.1",
		"quay.io/biocontainers/bwa:0.7.17",
		"quay.io/biocontainers/seqtk",
		"quay.io/biocontainers/samtools:1.19",
	}
	destinations := []string{
		"docker.io/acme/fastqc:0.12.1",
		"docker.io/acme/seqtk:latest",
		"docker.io/acme/samtools:1.19",
	}

	run := func(parallel int) mirror.AliasReport {
		engine := newFakeEngine()
		engine.failPull["docker.io/acme/samtools:1.19"] = errors.New("no route to host")
		resolver := NewResolver(engine, WithParallelism(parallel))
		return resolver.Resolve(context.Background(), mustList(t, sources...), mustList(t, destinations...))
	}

	want := run(1)
	for _, parallel := range []int{2, 8} {
		assert.Equal(t, want, run(parallel), "parallel=%d", parallel)
	}
}
