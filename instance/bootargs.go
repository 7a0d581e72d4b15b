package instance

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/ghrunners/fleet/config"
)

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomAlphanumeric(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(alphanumeric[rand.IntN(len(alphanumeric))])
	}
	return b.String()
}

// TokenMinter mints fresh GitHub Actions runner registration tokens. It is
// satisfied by *ghapi.Client, which Instance passes in; the narrow
// interface lets BootArgs run against a fake minter in tests.
type TokenMinter interface {
	RegistrationToken(ctx context.Context) (string, error)
}

// Name is "<role>-<slot>-<4 random alphanumerics>" (spec.md §3).
func Name(roleSlug string, slot uint8) string {
	return fmt.Sprintf("%s-%d-%s", roleSlug, slot, randomAlphanumeric(4))
}

// Labels is the role slug followed by the role's user-declared labels, in
// order, comma-joined (spec.md §3, §8).
func Labels(role *config.Role) string {
	labels := append([]string{}, role.Labels...)
	all := append([]string{role.Slug()}, labels...)
	return strings.Join(all, ",")
}

// BootArgs assembles the whitespace-joined kernel command-line arguments
// for one instance start (spec.md §3). The registration token is minted
// here, not at supervisor startup, because tokens expire quickly.
func BootArgs(ctx context.Context, minter TokenMinter, org string, role *config.Role, runnerName string) (string, error) {
	token, err := minter.RegistrationToken(ctx)
	if err != nil {
		return "", fmt.Errorf("bootargs: minting registration token: %w", err)
	}

	args := []string{config.DefaultBootArgs}
	args = append(args, fmt.Sprintf("github_token=%s", token))
	args = append(args, fmt.Sprintf("github_org=%s", org))

	if len(role.CachePaths) > 0 {
		args = append(args, fmt.Sprintf("cache_paths=%q", strings.Join(role.CachePaths, ",")))
	}

	if role.KernelCmdline != "" {
		args = append(args, role.KernelCmdline)
	}

	args = append(args, fmt.Sprintf("github_runner_name=%s", runnerName))
	args = append(args, fmt.Sprintf("github_runner_labels=%s", Labels(role)))

	return strings.Join(args, " "), nil
}
