package mirror

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultTag is assumed whenever a reference carries no explicit tag.
const DefaultTag = "latest"

// Reference identifies a container image by registry host, repository path
// and tag. It is a comparable value type; a parsed Reference always has a
// non-empty Tag.
type Reference struct {
	Registry   string // eg: quay.io
	Repository string // eg: biocontainers/fastqc
	Tag        string // eg: 0.12.1
}

// Key is the join key between a source list and a destination list. Two
// references are name-equivalent for mapping purposes iff their keys are
// equal.
type Key struct {
	Basename string
	Tag      string
}

var tagPattern = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9._-]{0,127}$`)

// Parse parses a reference of the form registry(/path)+(:tag)?. The tag
// defaults to "latest" when absent. Anything outside that shape is an error;
// digest references and bare (registry-less) names are not accepted.
func Parse(s string) (Reference, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Reference{}, fmt.Errorf("empty image reference")
	}
	if strings.Contains(s, "@") {
		return Reference{}, fmt.Errorf("digest reference %q not supported", s)
	}

	repo := s
	tag := ""
	// A colon after the last slash separates the tag; a colon before it
	// is a registry port and stays put.
	if i := strings.LastIndex(s, ":"); i > strings.LastIndex(s, "/") {
		repo, tag = s[:i], s[i+1:]
	}

	segments := strings.Split(repo, "/")
	if len(segments) < 2 {
		return Reference{}, fmt.Errorf("reference %q is not registry-qualified", s)
	}
	for _, segment := range segments {
		if segment == "" {
			return Reference{}, fmt.Errorf("reference %q contains an empty path segment", s)
		}
	}
	if tag == "" {
		tag = DefaultTag
	} else if !tagPattern.MatchString(tag) {
		return Reference{}, fmt.Errorf("reference %q has a malformed tag", s)
	}

	return Reference{
		Registry:   segments[0],
		Repository: strings.Join(segments[1:], "/"),
		Tag:        tag,
	}, nil
}

// String renders the reference in the registry/repository:tag form used by
// the list artifacts and by the registry transport.
func (r Reference) String() string {
	return r.Registry + "/" + r.Repository + ":" + r.Tag
}

// Basename returns the last path segment of the repository. Destination
// naming intentionally reduces a repository to its basename.
func (r Reference) Basename() string {
	if i := strings.LastIndex(r.Repository, "/"); i >= 0 {
		return r.Repository[i+1:]
	}
	return r.Repository
}

// JoinKey returns the (basename, tag) pair used to join sources against
// destinations.
func (r Reference) JoinKey() Key {
	return Key{Basename: r.Basename(), Tag: r.Tag}
}
