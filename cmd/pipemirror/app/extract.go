package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/klog/v2"

	"github.com/mytestlab123/pipeline/pkg/imagelist"
)

type ExtractOptions struct {
	inspectPath string
	scanDir     string
	outputPath  string
}

// NewExtractOptions returns a new ExtractOptions
func NewExtractOptions() *ExtractOptions {
	return &ExtractOptions{
		outputPath: "containers.txt",
	}
}

// NewExtractCommand provides a CLI handler for 'extract' with default
// ExtractOptions.
func NewExtractCommand(ctx context.Context) *cobra.Command {
	o := NewExtractOptions()
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract the pipeline's container references into an image list",
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

func (o *ExtractOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.inspectPath, "inspect", o.inspectPath, "path to the engine's concretized container manifest (JSON)")
	fs.StringVar(&o.scanDir, "scan-dir", o.scanDir, "directory of process definitions to scan when no inspect document is usable (degraded mode)")
	fs.StringVarP(&o.outputPath, "output", "o", o.outputPath, "path of the image list to write")
}

// Complete fills in fields required to have valid data
func (o *ExtractOptions) Complete() error {
	return nil
}

// Validate validates ExtractOptions
func (o *ExtractOptions) Validate(args []string) error {
	errors := []error{}
	if o.inspectPath == "" && o.scanDir == "" {
		errors = append(errors, fmt.Errorf("one of --inspect or --scan-dir must be set"))
	}
	if o.outputPath == "" {
		errors = append(errors, fmt.Errorf("--output must be set"))
	}
	return utilerrors.NewAggregate(errors)
}

// Run extracts the image list, preferring the structured inspect document
// and falling back to a source scan only when that path fails or is
// unavailable.
func (o *ExtractOptions) Run(ctx context.Context) error {
	var list imagelist.List
	var err error

	if o.inspectPath != "" {
		list, err = imagelist.Extract(o.inspectPath)
		if err != nil && o.scanDir == "" {
			return err
		}
		if err != nil {
			klog.ErrorS(err, "structured extraction failed, entering degraded source scan", "inspect", o.inspectPath)
		}
	}

	if list == nil {
		list, err = imagelist.Scan(o.scanDir)
		if err != nil {
			return err
		}
	}

	if err := imagelist.Write(o.outputPath, list); err != nil {
		return err
	}
	klog.InfoS("wrote image list", "path", o.outputPath, "images", len(list))
	return nil
}
