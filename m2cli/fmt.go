package m2cli

import (
	"bytes"
	"context"
	"encoding/json"

	"oss.terrastruct.com/util-go/xdefer"
	"oss.terrastruct.com/util-go/xmain"

	"oss.mindsketch.dev/m2/lib/log"
	"oss.mindsketch.dev/m2/m2target"
)

func fmtCmd(ctx context.Context, ms *xmain.State, check bool) (err error) {
	defer xdefer.Errorf(&err, "failed to fmt")

	ms.Opts = xmain.NewOpts(ms.Env, ms.Opts.Flags.Args()[1:])
	if len(ms.Opts.Args) == 0 {
		return xmain.UsageErrorf("fmt must be passed at least one file to be formatted")
	}

	unformattedCount := 0

	for _, inputPath := range ms.Opts.Args {
		if inputPath != "-" {
			inputPath = ms.AbsPath(inputPath)
		}

		input, err := ms.ReadPath(inputPath)
		if err != nil {
			return err
		}

		var ws m2target.Workspace
		err = json.Unmarshal(input, &ws)
		if err != nil {
			return err
		}

		output, err := json.MarshalIndent(&ws, "", "  ")
		if err != nil {
			return err
		}
		output = append(output, '\n')

		if !bytes.Equal(output, input) {
			if check {
				unformattedCount += 1
				log.Warn(ctx, inputPath)
			} else {
				if err := ms.WritePath(inputPath, output); err != nil {
					return err
				}
			}
		}
	}

	if unformattedCount > 0 {
		pluralFiles := "file"
		if unformattedCount > 1 {
			pluralFiles = "files"
		}

		return xmain.ExitErrorf(1, "found %d unformatted %s. Run m2 fmt to fix.", unformattedCount, pluralFiles)
	}

	return nil
}
