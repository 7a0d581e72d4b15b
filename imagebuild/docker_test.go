package imagebuild

import (
	"context"
	"testing"

	"github.com/ghrunners/fleet/execx"
)

func TestBuildImage_TrimsWhitespace(t *testing.T) {
	m := execx.NewMock()
	m.Expect("docker build -q --file Dockerfile .", &execx.Result{Stdout: "sha256:abc123\n"}, nil)

	id, err := BuildImage(context.Background(), m, "Dockerfile")
	if err != nil {
		t.Fatalf("BuildImage: %v", err)
	}
	if id != "sha256:abc123" {
		t.Fatalf("id = %q, want %q", id, "sha256:abc123")
	}
}

func TestCreateContainer(t *testing.T) {
	m := execx.NewMock()
	m.Expect("docker run -td sha256:abc123", &execx.Result{Stdout: "deadbeef\n"}, nil)

	id, err := CreateContainer(context.Background(), m, "sha256:abc123")
	if err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}
	if id != "deadbeef" {
		t.Fatalf("id = %q, want %q", id, "deadbeef")
	}
}

func TestExportContainer(t *testing.T) {
	m := execx.NewMock()
	m.ExpectSpawn("docker cp deadbeef:/ -", "tar-stream-bytes", nil)
	m.Expect("tar xf - -C /mnt", &execx.Result{}, nil)

	if err := ExportContainer(context.Background(), m, "deadbeef", "/mnt"); err != nil {
		t.Fatalf("ExportContainer: %v", err)
	}
}
