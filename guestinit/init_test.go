package guestinit

import "testing"

func TestEnvFromProcess_ReadsKernelArgs(t *testing.T) {
	t.Setenv("cache_paths", "go-build:/root/.cache/go-build")
	t.Setenv("github_org", "my-org")
	t.Setenv("github_token", "AABBCC")
	t.Setenv("github_runner_name", "fleet-runner-7")
	t.Setenv("github_runner_labels", "self-hosted,linux")

	env := EnvFromProcess()
	if env.CachePaths != "go-build:/root/.cache/go-build" {
		t.Errorf("CachePaths = %q", env.CachePaths)
	}
	if env.GithubOrg != "my-org" {
		t.Errorf("GithubOrg = %q", env.GithubOrg)
	}
	if env.GithubToken != "AABBCC" {
		t.Errorf("GithubToken = %q", env.GithubToken)
	}
	if env.GithubRunnerName != "fleet-runner-7" {
		t.Errorf("GithubRunnerName = %q", env.GithubRunnerName)
	}
	if env.GithubRunnerLabels != "self-hosted,linux" {
		t.Errorf("GithubRunnerLabels = %q", env.GithubRunnerLabels)
	}
}

func TestRunnerEnvFromProcess_ReadsEnv(t *testing.T) {
	t.Setenv("GITHUB_ORG", "my-org")
	t.Setenv("GITHUB_TOKEN", "AABBCC")
	t.Setenv("GITHUB_RUNNER_NAME", "fleet-runner-7")
	t.Setenv("GITHUB_RUNNER_LABELS", "self-hosted,linux")

	env := RunnerEnvFromProcess()
	if env.GithubOrg != "my-org" || env.GithubToken != "AABBCC" ||
		env.GithubRunnerName != "fleet-runner-7" || env.GithubRunnerLabels != "self-hosted,linux" {
		t.Fatalf("RunnerEnvFromProcess = %+v", env)
	}
}
