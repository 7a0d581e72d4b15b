package guestinit

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ghrunners/fleet/execx"
	"github.com/ghrunners/fleet/sysutil"
)

const cachePath = "/cache"

// cacheLink is one parsed "<subdir>:<guest path>" pair.
type cacheLink struct {
	CacheRoot string
	GuestPath string
}

// parseCacheLinks splits a comma-joined list of "<subdir>:<guest path>"
// pairs, rejecting any malformed entry.
func parseCacheLinks(cachePaths string) ([]cacheLink, error) {
	var links []cacheLink
	for _, link := range strings.Split(cachePaths, ",") {
		link = strings.TrimSpace(link)
		if link == "" {
			continue
		}
		parts := strings.SplitN(link, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("guestinit: invalid cache link %q", link)
		}
		links = append(links, cacheLink{CacheRoot: cachePath + "/" + parts[0], GuestPath: parts[1]})
	}
	return links, nil
}

// SetupCache mounts the scratch cache disk (/dev/vdb) at /cache, then
// symlinks each "<subdir>:<guest path>" pair in cachePaths from a
// subdirectory of /cache to the requested guest path, so every run sees
// a disk-backed cache across restarts (spec.md §5).
func SetupCache(ctx context.Context, ex execx.Executor, cachePaths string) error {
	links, err := parseCacheLinks(cachePaths)
	if err != nil {
		return err
	}

	fs := sysutil.New(ex)

	if err := fs.MkdirP(ctx, cachePath); err != nil {
		return fmt.Errorf("guestinit: creating %s: %w", cachePath, err)
	}
	if err := fs.MountExt4(ctx, "/dev/vdb", cachePath); err != nil {
		return fmt.Errorf("guestinit: mounting cache disk: %w", err)
	}
	if err := os.Chmod(cachePath, 0o777); err != nil {
		return fmt.Errorf("guestinit: chmod %s: %w", cachePath, err)
	}

	for _, link := range links {
		if err := fs.MkdirP(ctx, link.CacheRoot); err != nil {
			return fmt.Errorf("guestinit: creating cache root %s: %w", link.CacheRoot, err)
		}
		if err := os.Symlink(link.CacheRoot, link.GuestPath); err != nil {
			return fmt.Errorf("guestinit: symlinking %s -> %s: %w", link.GuestPath, link.CacheRoot, err)
		}
	}
	return nil
}
