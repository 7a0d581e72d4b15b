package imagebuild

import (
	"context"
	"path/filepath"

	"github.com/ghrunners/fleet/sysutil"
)

// rawImageName is the filename qemu-img creates the raw rootfs image
// under, inside the builder's scratch work directory.
const rawImageName = "image.ext4"

// CreateRawImage creates a sparse raw disk image of sizeGiB at
// workDir/image.ext4, returning its path.
func CreateRawImage(ctx context.Context, fs *sysutil.FS, workDir string, sizeGiB uint64) (string, error) {
	path := filepath.Join(workDir, rawImageName)
	if err := fs.QemuImgCreate(ctx, path, sizeGiB); err != nil {
		return "", err
	}
	return path, nil
}
