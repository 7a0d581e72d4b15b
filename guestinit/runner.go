package guestinit

import (
	"context"
	"fmt"
	"os"

	"github.com/ghrunners/fleet/execx"
)

// RunnerEnv carries the environment variables the GitHub Actions runner
// itself expects, as written into runner.service by WriteService.
type RunnerEnv struct {
	GithubOrg          string
	GithubToken        string
	GithubRunnerName   string
	GithubRunnerLabels string
}

// RunnerEnvFromProcess reads the GITHUB_* environment variables the
// runner.service unit sets.
func RunnerEnvFromProcess() RunnerEnv {
	return RunnerEnv{
		GithubOrg:          os.Getenv("GITHUB_ORG"),
		GithubToken:        os.Getenv("GITHUB_TOKEN"),
		GithubRunnerName:   os.Getenv("GITHUB_RUNNER_NAME"),
		GithubRunnerLabels: os.Getenv("GITHUB_RUNNER_LABELS"),
	}
}

// RunActionsRunner configures and runs the vendored GitHub Actions
// runner binary in ephemeral mode: config.sh registers the runner, then
// run.sh picks up exactly one job before the runner (and, per its unit's
// ExecStopPost, the whole VM) exits (spec.md §5).
func RunActionsRunner(ctx context.Context, ex execx.Executor, env RunnerEnv) error {
	_, err := ex.Exec(ctx, execx.New("/home/runner/config.sh",
		"--url", fmt.Sprintf("https://github.com/%s", env.GithubOrg),
		"--token", env.GithubToken,
		"--unattended",
		"--ephemeral",
		"--name", env.GithubRunnerName,
		"--labels", env.GithubRunnerLabels,
	))
	if err != nil {
		return fmt.Errorf("guestinit: configuring runner: %w", err)
	}

	if _, err := ex.Exec(ctx, execx.New("/home/runner/run.sh")); err != nil {
		return fmt.Errorf("guestinit: running job: %w", err)
	}
	return nil
}
