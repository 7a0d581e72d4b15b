// Package imagebuild implements the container-recipe-to-raw-ext4-image
// pipeline (spec.md §5): build a Dockerfile into an image, export its
// filesystem into a freshly formatted raw disk image, and embed this
// binary into it as /sbin/actions-init.
package imagebuild

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/ghrunners/fleet/execx"
	"github.com/ghrunners/fleet/sysutil"
)

const defaultImageSizeGiB = 10

// Builder drives one container-recipe-to-raw-image build.
type Builder struct {
	OwnPath    string
	SourcePath string
	OutputPath string
	WorkPath   string
	MountPath  string
	SizeGiB    uint64

	fs   *sysutil.FS
	exec execx.Executor
	log  *slog.Logger
}

// New returns a Builder reading the Dockerfile at sourcePath and writing
// the finished image to outputPath. sizeGiB defaults to 10 when zero.
func New(ex execx.Executor, log *slog.Logger, sourcePath, outputPath string, sizeGiB uint64) (*Builder, error) {
	ownPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("imagebuild: locating own binary: %w", err)
	}
	if sizeGiB == 0 {
		sizeGiB = defaultImageSizeGiB
	}
	// Each build gets its own scratch directory so two concurrent `fleetd
	// build` invocations never collide on the same mount point.
	workPath := fmt.Sprintf("/tmp/actions-runner-%s", uuid.NewString())
	return &Builder{
		OwnPath:    ownPath,
		SourcePath: sourcePath,
		OutputPath: outputPath,
		WorkPath:   workPath,
		MountPath:  workPath + "/mnt",
		SizeGiB:    sizeGiB,
		fs:         sysutil.New(ex),
		exec:       ex,
		log:        log,
	}, nil
}

// Build runs the full pipeline. On failure it does NOT clean up the
// scratch work directory or unmount the image — mirroring
// original_source's builder, which leaves a failed build's state on disk
// for a human to inspect rather than silently discarding the evidence
// (spec.md §9).
func (b *Builder) Build(ctx context.Context) error {
	b.log.Debug("building image", "source", b.SourcePath)
	imageID, err := BuildImage(ctx, b.exec, b.SourcePath)
	if err != nil {
		return fmt.Errorf("imagebuild: %w", err)
	}

	if entrypoint, layers, err := InspectBuiltImage(imageID); err != nil {
		b.log.Debug("could not inspect built image", "image", imageID, "err", err)
	} else {
		b.log.Debug("built image", "image", imageID, "entrypoint", entrypoint, "layers", layers)
	}

	containerID, err := CreateContainer(ctx, b.exec, imageID)
	if err != nil {
		return fmt.Errorf("imagebuild: %w", err)
	}

	b.log.Debug("creating mount directory", "path", b.MountPath)
	if err := b.fs.MkdirP(ctx, b.MountPath); err != nil {
		return fmt.Errorf("imagebuild: creating mount dir: %w", err)
	}

	b.log.Debug("creating rootfs image", "path", b.WorkPath, "size_gib", b.SizeGiB)
	imagePath, err := CreateRawImage(ctx, b.fs, b.WorkPath, b.SizeGiB)
	if err != nil {
		return fmt.Errorf("imagebuild: %w", err)
	}

	b.log.Debug("creating ext4 filesystem", "path", imagePath)
	if err := b.fs.MkfsExt4(ctx, imagePath); err != nil {
		return fmt.Errorf("imagebuild: %w", err)
	}

	b.log.Debug("mounting root image", "image", imagePath, "mount", b.MountPath)
	if err := b.fs.MountImage(ctx, imagePath, b.MountPath); err != nil {
		return fmt.Errorf("imagebuild: %w", err)
	}

	b.log.Debug("exporting container filesystem", "container", containerID, "mount", b.MountPath)
	if err := ExportContainer(ctx, b.exec, containerID, b.MountPath); err != nil {
		return fmt.Errorf("imagebuild: %w", err)
	}

	initPath := b.MountPath + "/sbin/actions-init"
	b.log.Debug("embedding own binary", "from", b.OwnPath, "to", initPath)
	if err := b.fs.CopySparse(ctx, b.OwnPath, initPath); err != nil {
		return fmt.Errorf("imagebuild: %w", err)
	}

	b.log.Debug("unmounting image", "mount", b.MountPath)
	if err := b.fs.Unmount(ctx, b.MountPath); err != nil {
		return fmt.Errorf("imagebuild: %w", err)
	}

	b.log.Debug("copying image to output", "from", imagePath, "to", b.OutputPath)
	if err := b.fs.CopySparse(ctx, imagePath, b.OutputPath); err != nil {
		return fmt.Errorf("imagebuild: %w", err)
	}

	if err := RemoveContainer(ctx, b.exec, containerID); err != nil {
		b.log.Warn("could not remove build container", "container", containerID, "err", err)
	}

	b.log.Debug("removing work directory", "path", b.WorkPath)
	if err := b.fs.RmRF(ctx, b.WorkPath); err != nil {
		return fmt.Errorf("imagebuild: %w", err)
	}

	b.log.Info("image build complete", "output", b.OutputPath)
	return nil
}
