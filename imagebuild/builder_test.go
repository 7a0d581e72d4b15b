package imagebuild

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ghrunners/fleet/execx"
	"github.com/ghrunners/fleet/sysutil"
)

func TestBuilder_Build_FullPipeline(t *testing.T) {
	m := execx.NewMock()
	m.Expect("docker build -q --file recipe/Dockerfile .", &execx.Result{Stdout: "sha256:abc\n"}, nil)
	m.Expect("docker run -td sha256:abc", &execx.Result{Stdout: "cid123\n"}, nil)
	m.Expect("mkdir -p /tmp/actions-runner/mnt", &execx.Result{}, nil)
	m.Expect("qemu-img create -f raw /tmp/actions-runner/image.ext4 10G", &execx.Result{}, nil)
	m.Expect("mkfs.ext4 /tmp/actions-runner/image.ext4", &execx.Result{}, nil)
	m.Expect("mount /tmp/actions-runner/image.ext4 /tmp/actions-runner/mnt", &execx.Result{}, nil)
	m.ExpectSpawn("docker cp cid123:/ -", "", nil)
	m.Expect("tar xf - -C /tmp/actions-runner/mnt", &execx.Result{}, nil)
	m.Expect("cp --sparse=always /self /tmp/actions-runner/mnt/sbin/actions-init", &execx.Result{}, nil)
	m.Expect("umount /tmp/actions-runner/mnt", &execx.Result{}, nil)
	m.Expect("cp --sparse=always /tmp/actions-runner/image.ext4 /out/rootfs.ext4", &execx.Result{}, nil)
	m.Expect("docker rm -f cid123", &execx.Result{}, nil)
	m.Expect("rm -rf /tmp/actions-runner", &execx.Result{}, nil)

	b := &Builder{
		OwnPath:    "/self",
		SourcePath: "recipe/Dockerfile",
		OutputPath: "/out/rootfs.ext4",
		WorkPath:   "/tmp/actions-runner",
		MountPath:  "/tmp/actions-runner/mnt",
		SizeGiB:    10,
		fs:         sysutil.New(m),
		exec:       m,
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	if err := b.Build(context.Background()); err != nil {
		t.Fatalf("Build: %v", err)
	}
}
