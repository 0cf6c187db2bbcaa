// Package imagemirror copies a list of source images into a single mirror
// namespace, skipping destinations that already exist and reporting every
// per-image outcome.
package imagemirror

import (
	"context"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/mytestlab123/pipeline/pkg/apis/v1/mirror"
	"github.com/mytestlab123/pipeline/pkg/imagelist"
)

// Transport is the registry capability the copier needs. Satisfied by
// *registry.Client.
type Transport interface {
	Exists(ctx context.Context, ref mirror.Reference) bool
	Copy(ctx context.Context, src, dst mirror.Reference) error
}

type Copier struct {
	transport Transport
	target    mirror.Target
	parallel  int
}

type option func(copier *Copier)

// WithParallelism bounds how many images are in flight at once.
func WithParallelism(n int) option {
	return func(copier *Copier) {
		if n > 0 {
			copier.parallel = n
		}
	}
}

func NewCopier(transport Transport, target mirror.Target, opts ...option) *Copier {
	ret := &Copier{
		transport: transport,
		target:    target,
		parallel:  1,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// CopyAll mirrors every source, in bounded parallel, and never aborts early:
// a failed image is recorded and the rest of the batch still runs, so a
// partial mirror stays usable and visible. Cancelling ctx stops launching
// new copies; images already mirrored remain valid. The destination list
// contains one entry per copied or skipped source, in source order.
// Repeating a run against a fully-mirrored registry reports copied=0,
// skipped=total, failed=0.
func (c *Copier) CopyAll(ctx context.Context, sources imagelist.List) (imagelist.List, mirror.CopyReport) {
	c.warnCollisions(sources)

	// Each slot is written by exactly one goroutine, keeping source order
	// independent of completion order.
	outcomes := make([]mirror.CopyOutcome, len(sources))

	group := new(errgroup.Group)
	group.SetLimit(c.parallel)
	for i, src := range sources {
		i, src := i, src
		dst := mirror.Map(src, c.target)

		if err := ctx.Err(); err != nil {
			outcomes[i] = mirror.CopyOutcome{
				Source:      src,
				Destination: dst,
				State:       mirror.CopyFailed,
				Reason:      "not attempted: " + err.Error(),
			}
			continue
		}

		group.Go(func() error {
			outcomes[i] = c.copyOne(ctx, src, dst)
			return nil
		})
	}
	group.Wait()

	destinations := make(imagelist.List, 0, len(sources))
	for _, outcome := range outcomes {
		// A skip is success, not absence.
		if outcome.State == mirror.Copied || outcome.State == mirror.Skipped {
			destinations = append(destinations, outcome.Destination)
		}
	}
	return destinations, mirror.NewCopyReport(outcomes)
}

func (c *Copier) copyOne(ctx context.Context, src, dst mirror.Reference) mirror.CopyOutcome {
	if c.transport.Exists(ctx, dst) {
		klog.InfoS("image already mirrored", "src", src, "dst", dst)
		return mirror.CopyOutcome{Source: src, Destination: dst, State: mirror.Skipped}
	}

	klog.InfoS("copy image", "src", src, "dst", dst)
	if err := c.transport.Copy(ctx, src, dst); err != nil {
		klog.ErrorS(err, "copy image", "src", src, "dst", dst)
		return mirror.CopyOutcome{
			Source:      src,
			Destination: dst,
			State:       mirror.CopyFailed,
			Reason:      err.Error(),
		}
	}
	return mirror.CopyOutcome{Source: src, Destination: dst, State: mirror.Copied}
}

// warnCollisions surfaces the basename-collapsing hazard: two distinct
// sources that map to the same destination overwrite one another.
func (c *Copier) warnCollisions(sources imagelist.List) {
	byDestination := map[mirror.Reference][]mirror.Reference{}
	for _, src := range sources {
		dst := mirror.Map(src, c.target)
		byDestination[dst] = append(byDestination[dst], src)
	}
	for dst, srcs := range byDestination {
		if len(srcs) > 1 {
			klog.InfoS("WARNING: multiple sources collapse onto one destination and will overwrite each other",
				"dst", dst, "sources", imagelist.List(srcs).Strings())
		}
	}
}
