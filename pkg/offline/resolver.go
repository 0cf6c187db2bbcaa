// Package offline re-establishes original image references on a
// disconnected host: every mirrored destination is pulled into the local
// engine, then retagged under its original source reference so the workflow
// engine resolves containers exactly as it would online.
package offline

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/mytestlab123/pipeline/pkg/apis/v1/mirror"
	"github.com/mytestlab123/pipeline/pkg/imagelist"
)

// Engine is the container-engine capability the resolver needs. Satisfied
// by the Docker SDK client.
type Engine interface {
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ImageTag(ctx context.Context, source, target string) error
}

// NewEngine connects to the local container engine via the environment
// (DOCKER_HOST etc.), negotiating the API version.
func NewEngine() (Engine, error) {
	cli, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create engine client: %w", err)
	}
	return cli, nil
}

type Resolver struct {
	engine Engine
	// registryAuth is the opaque pre-encoded credential blob the engine
	// expects for pulls from the mirror registry; empty means anonymous.
	registryAuth string
	parallel     int
}

type ResolverOption func(resolver *Resolver)

// WithRegistryAuth supplies the engine-encoded credentials used for pulls.
func WithRegistryAuth(encoded string) ResolverOption {
	return func(resolver *Resolver) {
		resolver.registryAuth = encoded
	}
}

// WithParallelism bounds how many pulls are in flight at once.
func WithParallelism(n int) ResolverOption {
	return func(resolver *Resolver) {
		if n > 0 {
			resolver.parallel = n
		}
	}
}

func NewResolver(engine Engine, opts ...ResolverOption) *Resolver {
	ret := &Resolver{
		engine:   engine,
		parallel: 1,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Resolve pulls every destination, joins sources to destinations on their
// (basename, tag) key, and aliases each joined source to its pulled mirror
// content. Each phase runs to completion over every entry before failures
// are judged; nothing aborts the batch. A source with no matching
// destination is a join failure, which is a distinct class from a pull
// failure: it means the two lists came from inconsistent runs. There are no
// retries inside a resolve call.
func (r *Resolver) Resolve(ctx context.Context, sources, destinations imagelist.List) mirror.AliasReport {
	pullErrors := r.pullAll(ctx, destinations)

	index := make(map[mirror.Key]mirror.Reference, len(destinations))
	for _, dst := range destinations {
		index[dst.JoinKey()] = dst
	}

	outcomes := make([]mirror.AliasOutcome, 0, len(sources))
	for _, src := range sources {
		outcomes = append(outcomes, r.resolveOne(ctx, src, index, pullErrors))
	}
	return mirror.NewAliasReport(outcomes)
}

// pullAll pulls every destination in bounded parallel, recording per-entry
// failures instead of aborting.
func (r *Resolver) pullAll(ctx context.Context, destinations imagelist.List) map[mirror.Reference]error {
	var lock sync.Mutex
	pullErrors := make(map[mirror.Reference]error, len(destinations))

	group := new(errgroup.Group)
	group.SetLimit(r.parallel)
	for _, dst := range destinations {
		dst := dst

		if err := ctx.Err(); err != nil {
			lock.Lock()
			pullErrors[dst] = fmt.Errorf("not attempted: %w", err)
			lock.Unlock()
			continue
		}

		group.Go(func() error {
			klog.InfoS("pull image", "image", dst)
			err := r.pull(ctx, dst)
			if err != nil {
				klog.ErrorS(err, "pull image", "image", dst)
			}
			lock.Lock()
			pullErrors[dst] = err
			lock.Unlock()
			return nil
		})
	}
	group.Wait()
	return pullErrors
}

func (r *Resolver) pull(ctx context.Context, ref mirror.Reference) error {
	reader, err := r.engine.ImagePull(ctx, ref.String(), image.PullOptions{
		RegistryAuth: r.registryAuth,
	})
	if err != nil {
		return err
	}
	defer reader.Close()

	// The pull only completes once the progress stream is drained.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return err
	}
	return nil
}

func (r *Resolver) resolveOne(ctx context.Context, src mirror.Reference, index map[mirror.Key]mirror.Reference, pullErrors map[mirror.Reference]error) mirror.AliasOutcome {
	dst, ok := index[src.JoinKey()]
	if !ok {
		klog.ErrorS(nil, "no matching mirror for source", "src", src)
		return mirror.AliasOutcome{
			Source: src,
			State:  mirror.JoinFailed,
			Reason: "no destination entry matches " + src.Basename() + ":" + src.Tag,
		}
	}

	if err := pullErrors[dst]; err != nil {
		return mirror.AliasOutcome{
			Source:      src,
			Destination: dst,
			State:       mirror.PullFailed,
			Reason:      err.Error(),
		}
	}

	// The alias carries the original source string, so the workflow engine
	// resolves its unmodified references against local content only.
	if err := r.engine.ImageTag(ctx, dst.String(), src.String()); err != nil {
		klog.ErrorS(err, "alias image", "src", src, "dst", dst)
		return mirror.AliasOutcome{
			Source:      src,
			Destination: dst,
			State:       mirror.AliasFailed,
			Reason:      err.Error(),
		}
	}

	klog.InfoS("aliased image", "alias", src, "content", dst)
	return mirror.AliasOutcome{Source: src, Destination: dst, State: mirror.Aliased}
}
