package imagemirror

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mytestlab123/pipeline/pkg/apis/v1/mirror"
)

// WriteManifest renders the human-readable copy manifest. It is written on
// both the success and the failure path so a retried run, or the offline
// resolver, always sees the full picture of the attempt.
func WriteManifest(w io.Writer, target mirror.Target, report mirror.CopyReport, generatedAt time.Time) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "mirror copy manifest")
	fmt.Fprintf(bw, "generated: %s\n", generatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(bw, "destination: %s/%s\n", target.Registry, target.Namespace)
	fmt.Fprintln(bw)
	fmt.Fprintf(bw, "total:   %d\n", report.Total)
	fmt.Fprintf(bw, "copied:  %d\n", report.Copied)
	fmt.Fprintf(bw, "skipped: %d\n", report.Skipped)
	fmt.Fprintf(bw, "failed:  %d\n", report.Failed)

	if len(report.Failures) > 0 {
		fmt.Fprintln(bw)
		fmt.Fprintln(bw, "failures:")
		for _, failure := range report.Failures {
			fmt.Fprintf(bw, "  %s: %s\n", failure.Source, failure.Reason)
		}
	}

	return bw.Flush()
}

// WriteManifestFile is WriteManifest against a file path.
func WriteManifestFile(path string, target mirror.Target, report mirror.CopyReport, generatedAt time.Time) error {
	fd, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create copy manifest: %w", err)
	}
	defer fd.Close()

	if err := WriteManifest(fd, target, report, generatedAt); err != nil {
		return fmt.Errorf("write copy manifest: %w", err)
	}
	return nil
}
