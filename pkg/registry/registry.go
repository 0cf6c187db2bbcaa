// Package registry wraps the remote-registry transport used by the
// mirroring run: a metadata-only existence probe and an image copy. The
// wire protocol and authentication handshakes belong to
// go-containerregistry, not here.
package registry

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"k8s.io/klog/v2"

	"github.com/mytestlab123/pipeline/pkg/apis/v1/configuration"
	"github.com/mytestlab123/pipeline/pkg/apis/v1/mirror"
)

type Client struct {
	logger logr.Logger
	// key is registry name (like: docker.io)
	auth map[string]authn.Authenticator
}

type Option func(client *Client) error

func WithBasicAuth(registry string, basic *configuration.Basic) Option {
	return func(client *Client) error {
		if basic == nil {
			return nil
		}
		client.auth[registry] = &authn.Basic{
			Username: basic.User,
			Password: basic.Pass,
		}
		return nil
	}
}

func WithLogger(logger logr.Logger) Option {
	return func(client *Client) error {
		client.logger = logger
		return nil
	}
}

func NewClient(opts ...Option) (*Client, error) {
	ret := &Client{
		logger: klog.Background(),
		auth:   map[string]authn.Authenticator{},
	}
	for _, opt := range opts {
		err := opt(ret)
		if err != nil {
			return nil, err
		}
	}

	return ret, nil
}

func (c *Client) authFor(registry string) authn.Authenticator {
	if auth, ok := c.auth[registry]; ok {
		return auth
	}
	return authn.Anonymous
}

// Exists probes the destination with a metadata-only request. Any probe
// error, 404 or otherwise, reports not-present: inability to confirm
// existence must never block an attempted copy, it only costs a redundant
// transfer that the registry may itself short-circuit.
func (c *Client) Exists(ctx context.Context, ref mirror.Reference) bool {
	tag, err := name.NewTag(ref.String(), name.WeakValidation)
	if err != nil {
		c.logger.V(2).Info("unparseable destination, treating as absent", "image", ref.String(), "err", err)
		return false
	}

	_, err = remote.Head(tag,
		remote.WithContext(ctx),
		remote.WithAuth(c.authFor(ref.Registry)),
	)
	if err != nil {
		c.logger.V(2).Info("existence probe failed, treating as absent", "image", ref.String(), "err", err)
		return false
	}
	return true
}

// Copy transfers image content from src to dst without altering it.
func (c *Client) Copy(ctx context.Context, src, dst mirror.Reference) error {
	srcTag, err := name.NewTag(src.String(), name.WeakValidation)
	if err != nil {
		return fmt.Errorf("parse source: %w", err)
	}
	dstTag, err := name.NewTag(dst.String(), name.WeakValidation)
	if err != nil {
		return fmt.Errorf("parse destination: %w", err)
	}

	image, err := remote.Image(srcTag,
		remote.WithContext(ctx),
		remote.WithAuth(c.authFor(src.Registry)),
	)
	if err != nil {
		return fmt.Errorf("get image: %w", err)
	}

	return remote.Put(dstTag, image,
		remote.WithContext(ctx),
		remote.WithAuth(c.authFor(dst.Registry)),
	)
}
