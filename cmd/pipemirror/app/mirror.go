package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/mytestlab123/pipeline/pkg/apis/v1/configuration"
	"github.com/mytestlab123/pipeline/pkg/apis/v1/mirror"
	"github.com/mytestlab123/pipeline/pkg/imagelist"
	"github.com/mytestlab123/pipeline/pkg/imagemirror"
	"github.com/mytestlab123/pipeline/pkg/registry"
)

type MirrorOptions struct {
	*configuration.Configuration
	configFilePath string
	inputPath      string
	outputPath     string
	reportPath     string
}

// NewMirrorOptions returns a new MirrorOptions
func NewMirrorOptions() *MirrorOptions {
	return &MirrorOptions{
		Configuration: configuration.Default(),
		inputPath:     "containers.txt",
		outputPath:    "mirrored.txt",
		reportPath:    "copy-manifest.txt",
	}
}

// NewMirrorCommand provides a CLI handler for 'mirror' with default
// MirrorOptions.
func NewMirrorCommand(ctx context.Context) *cobra.Command {
	o := NewMirrorOptions()
	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Copy every listed image into the mirror registry",
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

func (o *MirrorOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configFilePath, "config", "c", o.configFilePath, "config file path")
	fs.StringVarP(&o.inputPath, "input", "i", o.inputPath, "path of the source image list")
	fs.StringVarP(&o.outputPath, "output", "o", o.outputPath, "path of the destination image list to write")
	fs.StringVar(&o.reportPath, "report", o.reportPath, "path of the human-readable copy manifest to write")
}

// Complete fills in fields required to have valid data
func (o *MirrorOptions) Complete() error {
	return loadConfiguration(o.configFilePath, o.Configuration)
}

// Validate validates MirrorOptions
func (o *MirrorOptions) Validate(args []string) error {
	errors := []error{}
	if o.configFilePath == "" {
		errors = append(errors, fmt.Errorf("--config must be set"))
	}
	if err := o.Configuration.Validate(); err != nil {
		errors = append(errors, err)
	}
	return utilerrors.NewAggregate(errors)
}

// Run mirrors the whole source list, writes both artifacts regardless of
// outcome, and exits non-zero if any image failed.
func (o *MirrorOptions) Run(ctx context.Context) error {
	sources, err := imagelist.Read(o.inputPath)
	if err != nil {
		return err
	}

	opts := make([]registry.Option, 0, len(o.Auth))
	for name, auth := range o.Auth {
		opts = append(opts, registry.WithBasicAuth(name, auth.Basic))
	}
	client, err := registry.NewClient(opts...)
	if err != nil {
		return fmt.Errorf("new registry client: %w", err)
	}

	target := mirror.Target{
		Registry:  o.Mirror.Registry,
		Namespace: o.Mirror.Namespace,
	}
	copier := imagemirror.NewCopier(client, target,
		imagemirror.WithParallelism(int(o.Worker.Parallel)),
	)

	if o.Worker.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Worker.Timeout)
		defer cancel()
	}

	destinations, report := copier.CopyAll(ctx, sources)

	// Both artifacts are written on the failure path too; a retried run and
	// the offline resolver need the full picture of this attempt.
	if err := imagelist.Write(o.outputPath, destinations); err != nil {
		return err
	}
	if err := imagemirror.WriteManifestFile(o.reportPath, target, report, time.Now()); err != nil {
		return err
	}

	klog.InfoS("mirror run finished",
		"total", report.Total, "copied", report.Copied, "skipped", report.Skipped, "failed", report.Failed,
		"destinations", o.outputPath, "manifest", o.reportPath)
	for _, failure := range report.Failures {
		klog.ErrorS(nil, "image failed to mirror", "src", failure.Source, "reason", failure.Reason)
	}
	return report.Err()
}

// loadConfiguration overlays the config file onto the defaults already in
// cfg.
func loadConfiguration(path string, cfg *configuration.Configuration) error {
	configFD, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer configFD.Close()

	if err := yaml.NewDecoder(configFD).Decode(cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
