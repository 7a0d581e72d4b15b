package guestinit

import (
	"fmt"
	"os"
	"strings"
)

const (
	servicePath         = "/etc/systemd/system/runner.service"
	serviceWantsSymlink = "/etc/systemd/system/multi-user.target.wants/runner.service"
)

const serviceTemplate = `
[Unit]
Description=Actions Runner
After=network.target

[Service]
ExecStart=/sbin/actions-run
KillMode=control-group
KillSignal=SIGTERM
TimeoutStopSec=5min
WorkingDirectory=/home/runner
User=runner
Restart=never
Environment="GITHUB_ORG={{github_org}}"
Environment="GITHUB_TOKEN={{github_token}}"
Environment="GITHUB_RUNNER_NAME={{github_runner_name}}"
Environment="GITHUB_RUNNER_LABELS={{github_runner_labels}}"
ExecStopPost=+/usr/sbin/reboot
`

func renderService(githubOrg, githubToken, runnerName, runnerLabels string) string {
	service := serviceTemplate
	for k, v := range map[string]string{
		"{{github_org}}":           githubOrg,
		"{{github_token}}":         githubToken,
		"{{github_runner_name}}":   runnerName,
		"{{github_runner_labels}}": runnerLabels,
	} {
		service = strings.ReplaceAll(service, k, v)
	}
	return service
}

// WriteService renders the runner's systemd unit with the job's
// credentials and identity baked in as environment variables, since the
// runner process itself reads them from its own environment
// (spec.md §5).
func WriteService(githubOrg, githubToken, runnerName, runnerLabels string) error {
	service := renderService(githubOrg, githubToken, runnerName, runnerLabels)
	if err := os.WriteFile(servicePath, []byte(service), 0o644); err != nil {
		return fmt.Errorf("guestinit: writing %s: %w", servicePath, err)
	}
	return nil
}

// EnableService symlinks the unit into multi-user.target.wants so it
// starts at boot.
func EnableService() error {
	if err := os.Symlink(servicePath, serviceWantsSymlink); err != nil {
		return fmt.Errorf("guestinit: enabling service: %w", err)
	}
	return nil
}
