package app

import (
	"context"

	"github.com/spf13/cobra"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/component-base/featuregate"
	"k8s.io/component-base/logs"
	logsapi "k8s.io/component-base/logs/api/v1"
	"k8s.io/component-base/version/verflag"
)

var featureGate = featuregate.NewFeatureGate()

func init() {
	utilruntime.Must(logsapi.AddFeatureGates(featureGate))
}

// NewPipemirrorCommand provides the CLI handler for 'pipemirror'.
func NewPipemirrorCommand(ctx context.Context) *cobra.Command {
	logOptions := logs.NewOptions()
	cmd := &cobra.Command{
		Use:   "pipemirror",
		Short: "Mirror pipeline container images and re-resolve them offline",
		Long: "pipemirror moves the container images a workflow pipeline references " +
			"into a controlled mirror registry, and on a disconnected host retags the " +
			"mirrored content under the original references so the workflow engine " +
			"resolves containers identically in both environments.",
		PersistentPreRunE: func(c *cobra.Command, args []string) error {
			verflag.PrintAndExitIfRequested()
			if err := logsapi.ValidateAndApply(logOptions, featureGate); err != nil {
				return err
			}
			return nil
		},
		RunE: func(c *cobra.Command, args []string) error {
			return c.Help()
		},
	}

	flags := cmd.PersistentFlags()
	logsapi.AddFlags(logOptions, flags)
	verflag.AddFlags(flags)

	cmd.AddCommand(NewExtractCommand(ctx))
	cmd.AddCommand(NewMirrorCommand(ctx))
	cmd.AddCommand(NewResolveCommand(ctx))
	return cmd
}
