package imagebuild

import (
	"fmt"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/daemon"
)

// InspectBuiltImage resolves tag against the local Docker daemon and
// returns the image's configured entrypoint and its layer count. It is
// used only for diagnostic logging after a build — the build
// pipeline itself never depends on its result, since a local image
// lookup failure here should never fail an otherwise-successful build.
func InspectBuiltImage(tag string) (entrypoint []string, layers int, err error) {
	ref, err := name.ParseReference(tag)
	if err != nil {
		return nil, 0, fmt.Errorf("imagebuild: parsing image reference %q: %w", tag, err)
	}
	img, err := daemon.Image(ref)
	if err != nil {
		return nil, 0, fmt.Errorf("imagebuild: reading local image %q: %w", tag, err)
	}
	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, 0, fmt.Errorf("imagebuild: reading image config for %q: %w", tag, err)
	}
	ls, err := img.Layers()
	if err != nil {
		return nil, 0, fmt.Errorf("imagebuild: reading image layers for %q: %w", tag, err)
	}
	return cfg.Config.Entrypoint, len(ls), nil
}
