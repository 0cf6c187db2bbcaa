package configuration

import (
	"fmt"
	"time"
)

// Configuration is the per-run configuration. It is read once at startup
// and treated as immutable for the run's duration.
type Configuration struct {
	Mirror MirrorConfiguration                    `json:"mirror" yaml:"mirror"`
	Auth   map[RegistryName]RegistryConfiguration `json:"auth,omitempty" yaml:"auth,omitempty"`
	Worker WorkerConfiguration                    `json:"worker" yaml:"worker,omitempty"`
}

// MirrorConfiguration names the single destination registry and namespace
// every mirrored image lands in.
type MirrorConfiguration struct {
	Registry  string `json:"registry" yaml:"registry"`
	Namespace string `json:"namespace" yaml:"namespace"`
}

type WorkerConfiguration struct {
	Parallel uint32        `json:"parallel,omitempty" yaml:"parallel,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

type RegistryName = string

// RegistryConfiguration holds the opaque credentials for one registry host.
// Credentials pass through untouched; a registry absent from the map is
// accessed anonymously.
type RegistryConfiguration struct {
	Name  RegistryName `json:"name,omitempty" yaml:"name,omitempty"`
	Basic *Basic       `json:"basic,omitempty" yaml:"basic,omitempty"`
}

type Basic struct {
	User string `json:"user,omitempty" yaml:"user,omitempty"`
	Pass string `json:"pass,omitempty" yaml:"pass,omitempty"`
}

// Validate checks the fields every mirroring run needs. List and report
// paths are command flags, not configuration, so they are not covered here.
func (c *Configuration) Validate() error {
	if c.Mirror.Registry == "" {
		return fmt.Errorf("mirror.registry must be set")
	}
	if c.Mirror.Namespace == "" {
		return fmt.Errorf("mirror.namespace must be set")
	}
	if c.Worker.Parallel == 0 {
		return fmt.Errorf("worker.parallel must be at least 1")
	}
	return nil
}
