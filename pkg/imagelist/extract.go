package imagelist

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"k8s.io/klog/v2"
)

// inspectDocument is the concretized container manifest the workflow engine
// emits: one container string per invocable process.
type inspectDocument struct {
	Processes []inspectProcess `json:"processes"`
}

type inspectProcess struct {
	Name      string `json:"name"`
	Container string `json:"container"`
}

// Extract reads an engine inspect document and returns its container
// references, deduplicated and sorted. Zero containers is an error: a run
// that would mirror nothing is indistinguishable from a broken parse.
func Extract(path string) (List, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inspect document: %w", err)
	}

	var doc inspectDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse inspect document %s: %w", path, err)
	}

	var raw []string
	for _, proc := range doc.Processes {
		if proc.Container == "" {
			continue
		}
		raw = append(raw, strings.TrimSpace(proc.Container))
	}

	list, err := FromStrings(sortedUnique(raw))
	if err != nil {
		return nil, fmt.Errorf("extract from %s: %w", path, err)
	}
	klog.InfoS("extracted container references", "path", path, "processes", len(doc.Processes), "images", len(list))
	return list, nil
}

var (
	// quotedString matches single- or double-quoted literals inside
	// process definitions.
	quotedString = regexp.MustCompile(`'([^']+)'|"([^"]+)"`)

	// registryHost matches a plausible registry hostname, optionally with
	// a port: at least one dot, no leading or trailing punctuation.
	registryHost = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]*(\.[a-zA-Z0-9-]+)+(:[0-9]+)?$`)

	processSourceExtensions = map[string]struct{}{
		".nf":     {},
		".config": {},
	}
)

// Scan is the degraded fallback when no inspect document is available: it
// walks process-definition sources under dir and collects quoted strings
// that look registry-qualified. The two extraction paths can disagree on
// completeness, so activation is logged loudly rather than substituted
// silently.
func Scan(dir string) (List, error) {
	klog.InfoS("WARNING: falling back to source scan; container set may be incomplete", "dir", dir)

	var raw []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := processSourceExtensions[filepath.Ext(path)]; !ok {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		for _, match := range quotedString.FindAllStringSubmatch(string(data), -1) {
			candidate := match[1]
			if candidate == "" {
				candidate = match[2]
			}
			if looksLikeImageReference(candidate) {
				raw = append(raw, candidate)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	list, err := FromStrings(sortedUnique(raw))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	klog.InfoS("scanned container references", "dir", dir, "images", len(list))
	return list, nil
}

// looksLikeImageReference is the registry-qualification heuristic: a single
// token whose first path segment names a registry host. URLs and filesystem
// paths do not qualify.
func looksLikeImageReference(s string) bool {
	if strings.ContainsAny(s, " \t\n") || strings.Contains(s, "://") {
		return false
	}
	host, rest, ok := strings.Cut(s, "/")
	if !ok || rest == "" {
		return false
	}
	return registryHost.MatchString(host)
}
