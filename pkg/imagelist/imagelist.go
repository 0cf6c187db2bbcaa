// Package imagelist produces and persists the flat image-list artifacts the
// mirroring pipeline exchanges: one reference per line, # comments and blank
// lines ignored, order preserved, uniqueness enforced.
package imagelist

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/mytestlab123/pipeline/pkg/apis/v1/mirror"
)

// List is an ordered, deduplicated sequence of image references.
type List []mirror.Reference

// Strings renders the list one reference per line, ready for an artifact.
func (l List) Strings() []string {
	out := make([]string, 0, len(l))
	for _, ref := range l {
		out = append(out, ref.String())
	}
	return out
}

// FromStrings parses and validates raw reference strings in order,
// dropping exact duplicates. Validation is fail-fast: one malformed entry
// fails the whole batch.
func FromStrings(raw []string) (List, error) {
	seen := sets.New[string]()
	list := make(List, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" || seen.Has(s) {
			continue
		}
		seen.Insert(s)
		ref, err := mirror.Parse(s)
		if err != nil {
			return nil, err
		}
		list = append(list, ref)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("no image references found")
	}
	return list, nil
}

// Parse reads a list artifact. Insertion order is preserved for
// reproducible manifests; duplicates collapse to their first occurrence.
func Parse(r io.Reader) (List, error) {
	var raw []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		raw = append(raw, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read image list: %w", err)
	}
	return FromStrings(raw)
}

// Read loads a list artifact from disk.
func Read(path string) (List, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image list: %w", err)
	}
	defer fd.Close()

	list, err := Parse(fd)
	if err != nil {
		return nil, fmt.Errorf("parse image list %s: %w", path, err)
	}
	return list, nil
}

// Write persists the list artifact, one reference per line, in list order.
func Write(path string, list List) error {
	fd, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create image list: %w", err)
	}
	defer fd.Close()

	w := bufio.NewWriter(fd)
	for _, ref := range list {
		if _, err := fmt.Fprintln(w, ref.String()); err != nil {
			return fmt.Errorf("write image list: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write image list: %w", err)
	}
	return nil
}

// sortedUnique dedups raw strings exactly as given (before tag-default
// normalization) and sorts lexicographically so downstream diffs are
// reproducible.
func sortedUnique(raw []string) []string {
	out := sets.New[string](raw...).UnsortedList()
	sort.Strings(out)
	return out
}
