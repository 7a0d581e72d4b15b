package imagebuild

import (
	"context"
	"fmt"
	"strings"

	"github.com/ghrunners/fleet/execx"
)

// BuildImage runs `docker build -q --file <dockerfilePath> .` and returns
// the built image's ID, trimmed of whitespace.
func BuildImage(ctx context.Context, ex execx.Executor, dockerfilePath string) (string, error) {
	res, err := ex.Exec(ctx, execx.New("docker", "build", "-q", "--file", dockerfilePath, "."))
	if err != nil {
		return "", fmt.Errorf("imagebuild: docker build: %w", err)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// CreateContainer runs `docker run -td <imageID>` and returns the
// container's ID, trimmed of whitespace. The container is left running
// (detached) so its filesystem can be exported with docker cp.
func CreateContainer(ctx context.Context, ex execx.Executor, imageID string) (string, error) {
	res, err := ex.Exec(ctx, execx.New("docker", "run", "-td", imageID))
	if err != nil {
		return "", fmt.Errorf("imagebuild: docker run: %w", err)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// ExportContainer streams the container's entire root filesystem into
// mountPath via `docker cp <id>:/ -  | tar xf - -C mountPath`, spawning
// docker cp and piping its stdout directly into tar's stdin without
// buffering the whole archive in memory.
func ExportContainer(ctx context.Context, ex execx.Executor, containerID, mountPath string) error {
	cp, err := ex.ExecSpawn(ctx, execx.New("docker", "cp", containerID+":/", "-"))
	if err != nil {
		return fmt.Errorf("imagebuild: spawning docker cp: %w", err)
	}
	_, err = ex.Exec(ctx, execx.New("tar", "xf", "-", "-C", mountPath).WithStdin(cp.Stdout()))
	if err != nil {
		return fmt.Errorf("imagebuild: tar extract: %w", err)
	}
	return nil
}

// RemoveContainer runs `docker rm -f <id>`, discarding the detached
// container once its filesystem has been exported.
func RemoveContainer(ctx context.Context, ex execx.Executor, containerID string) error {
	_, err := ex.Exec(ctx, execx.New("docker", "rm", "-f", containerID))
	if err != nil {
		return fmt.Errorf("imagebuild: docker rm: %w", err)
	}
	return nil
}
