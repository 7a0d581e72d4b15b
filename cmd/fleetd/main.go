// Command fleetd is the self-hosting microVM fleet manager: run as a
// supervisor daemon on the host, as the image-build tool, or — when
// embedded inside a built instance image and exec'd as PID 1 or as the
// runner's systemd unit — as the guest-side init and runner launcher.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	kongcompletion "github.com/jotaen/kong-completion"

	"github.com/ghrunners/fleet/execx"
	"github.com/ghrunners/fleet/guestinit"
)

// Context carries process-wide dependencies into every subcommand's Run.
type Context struct {
	Log *slog.Logger
}

// CLI is the host-side command surface. It is never reached when the
// binary is exec'd as actions-init or actions-run inside a guest — main
// dispatches on argv[0] before kong ever parses a flag.
type CLI struct {
	LogFile  string `default:"" placeholder:"<path>" help:"log file path, rotated with lumberjack (stderr if empty)"`
	LogLevel string `default:"info" enum:"debug,info,warn,error" help:"logging level"`

	Run        RunCmd             `cmd:"" help:"run the supervisor, provisioning and maintaining every configured instance"`
	Build      BuildCmd           `cmd:"" help:"build a container recipe into a raw instance image"`
	Debug      DebugCmd           `cmd:"" help:"run a single instance in the foreground with a console attached"`
	History    HistoryCmd         `cmd:"" help:"show recorded instance run history"`
	Version    VersionCmd         `cmd:"" help:"print version information"`
	Completion kongcompletion.Cmd `cmd:"" help:"print shell completion scripts"`
}

const description = `Run and maintain a fleet of ephemeral, single-job microVM CI runners.`

func main() {
	switch filepath.Base(os.Args[0]) {
	case "actions-init":
		runGuestInit()
		return
	case "actions-run":
		runActionsRunner()
		return
	}

	var cli CLI
	parser := kong.Must(&cli, kong.Description(description))
	kongcompletion.Register(parser)

	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	log := initSlog(cli.LogFile, cli.LogLevel)
	err = ctx.Run(&Context{Log: log})
	ctx.FatalIfErrorf(err)
}

// runGuestInit runs as PID 1 inside a booting instance (kernel
// cmdline init=/sbin/actions-init). It never returns on success, since
// its last act is execing /sbin/init.
func runGuestInit() {
	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	ownPath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "actions-init: locating own binary: %v\n", err)
		os.Exit(1)
	}

	if err := guestinit.Run(context.Background(), execx.Real(), log, ownPath, guestinit.EnvFromProcess()); err != nil {
		fmt.Fprintf(os.Stderr, "actions-init: %v\n", err)
		os.Exit(1)
	}
}

// runActionsRunner runs as the runner.service ExecStart: it registers
// and runs the vendored GitHub Actions runner for exactly one job.
func runActionsRunner() {
	if err := guestinit.RunActionsRunner(context.Background(), execx.Real(), guestinit.RunnerEnvFromProcess()); err != nil {
		fmt.Fprintf(os.Stderr, "actions-run: %v\n", err)
		os.Exit(1)
	}
}
