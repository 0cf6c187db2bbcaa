package mirror

// Target is the destination side of a mirroring run: one registry and one
// flat namespace that every source image lands in.
type Target struct {
	Registry  string
	Namespace string
}

// Mapping pairs a source reference with the destination it mirrors to.
type Mapping struct {
	Source      Reference
	Destination Reference
}

// Map derives the destination reference for a source. Pure and
// deterministic: destination = registry/namespace/<basename>:<tag>, with the
// source registry and any namespace path discarded. Two distinct sources
// that share a (basename, tag) therefore collapse onto the same destination
// and overwrite one another; callers that care must detect that themselves.
func Map(src Reference, target Target) Reference {
	return Reference{
		Registry:   target.Registry,
		Repository: target.Namespace + "/" + src.Basename(),
		Tag:        src.Tag,
	}
}
