package guestinit

import (
	"context"
	"testing"

	"github.com/ghrunners/fleet/execx"
)

func TestRunActionsRunner_RunsConfigThenRun(t *testing.T) {
	m := execx.NewMock()
	m.Expect("/home/runner/config.sh --url https://github.com/my-org --token AABBCC --unattended --ephemeral --name fleet-runner-7 --labels self-hosted,linux", &execx.Result{}, nil)
	m.Expect("/home/runner/run.sh", &execx.Result{}, nil)

	env := RunnerEnv{
		GithubOrg:          "my-org",
		GithubToken:        "AABBCC",
		GithubRunnerName:   "fleet-runner-7",
		GithubRunnerLabels: "self-hosted,linux",
	}
	if err := RunActionsRunner(context.Background(), m, env); err != nil {
		t.Fatalf("RunActionsRunner: %v", err)
	}
	if len(m.Calls()) != 2 {
		t.Fatalf("len(calls) = %d, want 2", len(m.Calls()))
	}
}

func TestRunActionsRunner_ConfigFailureStopsBeforeRun(t *testing.T) {
	m := execx.NewMock()
	m.Expect("/home/runner/config.sh --url https://github.com/my-org --token bad --unattended --ephemeral --name r --labels l",
		nil, &execx.CommandFailure{Command: "config.sh", Status: 1})

	env := RunnerEnv{GithubOrg: "my-org", GithubToken: "bad", GithubRunnerName: "r", GithubRunnerLabels: "l"}
	if err := RunActionsRunner(context.Background(), m, env); err == nil {
		t.Fatal("expected an error when config.sh fails")
	}
	if len(m.Calls()) != 1 {
		t.Fatalf("run.sh should not have been called after config.sh failure, calls = %v", m.Calls())
	}
}
