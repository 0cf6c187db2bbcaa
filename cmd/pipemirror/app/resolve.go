package app

import (
	"context"
	"fmt"

	registrytypes "github.com/docker/docker/api/types/registry"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/klog/v2"

	"github.com/mytestlab123/pipeline/pkg/apis/v1/configuration"
	"github.com/mytestlab123/pipeline/pkg/imagelist"
	"github.com/mytestlab123/pipeline/pkg/offline"
)

type ResolveOptions struct {
	*configuration.Configuration
	configFilePath   string
	sourcesPath      string
	destinationsPath string
}

// NewResolveOptions returns a new ResolveOptions
func NewResolveOptions() *ResolveOptions {
	return &ResolveOptions{
		Configuration:    configuration.Default(),
		sourcesPath:      "containers.txt",
		destinationsPath: "mirrored.txt",
	}
}

// NewResolveCommand provides a CLI handler for 'resolve' with default
// ResolveOptions. It runs on the disconnected host, after the mirrored
// content and both list artifacts have been transferred.
func NewResolveCommand(ctx context.Context) *cobra.Command {
	o := NewResolveOptions()
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Pull mirrored images and alias them under their original references",
		RunE: func(c *cobra.Command, args []string) error {
			cliflag.PrintFlags(c.Flags())
			if err := o.Complete(); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(ctx)
		},
	}
	o.AddFlags(cmd.Flags())
	return cmd
}

func (o *ResolveOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configFilePath, "config", "c", o.configFilePath, "config file path")
	fs.StringVar(&o.sourcesPath, "sources", o.sourcesPath, "path of the original source image list")
	fs.StringVar(&o.destinationsPath, "destinations", o.destinationsPath, "path of the mirrored destination image list")
}

// Complete fills in fields required to have valid data
func (o *ResolveOptions) Complete() error {
	if o.configFilePath == "" {
		return nil
	}
	return loadConfiguration(o.configFilePath, o.Configuration)
}

// Validate validates ResolveOptions
func (o *ResolveOptions) Validate(args []string) error {
	errors := []error{}
	if o.sourcesPath == "" {
		errors = append(errors, fmt.Errorf("--sources must be set"))
	}
	if o.destinationsPath == "" {
		errors = append(errors, fmt.Errorf("--destinations must be set"))
	}
	if o.Worker.Parallel == 0 {
		errors = append(errors, fmt.Errorf("worker.parallel must be at least 1"))
	}
	return utilerrors.NewAggregate(errors)
}

// Run pulls every mirrored image and retags it under its original source
// reference, reporting join misses and pull failures separately.
func (o *ResolveOptions) Run(ctx context.Context) error {
	sources, err := imagelist.Read(o.sourcesPath)
	if err != nil {
		return err
	}
	destinations, err := imagelist.Read(o.destinationsPath)
	if err != nil {
		return err
	}

	engine, err := offline.NewEngine()
	if err != nil {
		return err
	}

	opts := []offline.ResolverOption{
		offline.WithParallelism(int(o.Worker.Parallel)),
	}
	if auth, ok := o.Auth[o.Mirror.Registry]; ok && auth.Basic != nil {
		encoded, err := registrytypes.EncodeAuthConfig(registrytypes.AuthConfig{
			Username:      auth.Basic.User,
			Password:      auth.Basic.Pass,
			ServerAddress: o.Mirror.Registry,
		})
		if err != nil {
			return fmt.Errorf("encode registry credentials: %w", err)
		}
		opts = append(opts, offline.WithRegistryAuth(encoded))
	}

	report := offline.NewResolver(engine, opts...).Resolve(ctx, sources, destinations)

	klog.InfoS("resolve run finished",
		"total", report.Total, "aliased", report.Aliased,
		"pullFailed", report.PullFailed, "joinFailed", report.JoinFailed, "aliasFailed", report.AliasFailed)
	for _, failure := range report.Failures {
		klog.ErrorS(nil, "image failed to resolve", "src", failure.Source, "state", failure.State, "reason", failure.Reason)
	}
	return report.Err()
}
