package m2cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"cdr.dev/slog"

	"oss.terrastruct.com/util-go/xmain"

	"oss.mindsketch.dev/m2/lib/log"
	"oss.mindsketch.dev/m2/lib/version"
)

func Run(ctx context.Context, ms *xmain.State) (err error) {
	ctx = log.Stderr(ctx)

	// These should be kept up-to-date with the m2 man page
	hostFlag := ms.Opts.String("M2_HOST", "host", "h", "localhost", "host listening address when used with serve")
	portFlag := ms.Opts.String("M2_PORT", "port", "p", "0", "port listening address when used with serve\n(default 0, which will open on a randomly available local port)")
	fileFlag := ms.Opts.String("M2_FILE", "file", "f", "workspace.json", "path of the workspace document that serve stores and watches")
	debugFlag, err := ms.Opts.Bool("DEBUG", "debug", "d", false, "print debug logs.")
	if err != nil {
		return err
	}
	checkFlag, err := ms.Opts.Bool("M2_CHECK", "check", "", false, "check that the specified files are formatted correctly.")
	if err != nil {
		return err
	}
	versionFlag, err := ms.Opts.Bool("", "version", "v", false, "get the version")
	if err != nil {
		return err
	}

	err = ms.Opts.Flags.Parse(ms.Opts.Args)
	if !errors.Is(err, pflag.ErrHelp) && err != nil {
		return xmain.UsageErrorf("failed to parse flags: %v", err)
	}

	if errors.Is(err, pflag.ErrHelp) {
		help(ms)
		return nil
	}

	if *debugFlag {
		ctx = log.Leveled(ctx, slog.LevelDebug)
		ms.Env.Setenv("DEBUG", "1")
	}

	if len(ms.Opts.Flags.Args()) == 0 {
		if versionFlag != nil && *versionFlag {
			fmt.Println(version.Version)
			return nil
		}
		help(ms)
		return nil
	}

	switch ms.Opts.Flags.Arg(0) {
	case "serve":
		return serveCmd(ctx, ms, serverOpts{
			host: *hostFlag,
			port: *portFlag,
			path: *fileFlag,
		})
	case "validate":
		return validateCmd(ctx, ms)
	case "fmt":
		return fmtCmd(ctx, ms, *checkFlag)
	case "version":
		if len(ms.Opts.Flags.Args()) > 1 {
			return xmain.UsageErrorf("version subcommand accepts no arguments")
		}
		fmt.Println(version.Version)
		return nil
	default:
		return xmain.UsageErrorf("unknown command %q. Run %s --help for usage.", ms.Opts.Flags.Arg(0), ms.Name)
	}
}
