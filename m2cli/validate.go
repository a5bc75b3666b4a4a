package m2cli

import (
	"context"
	"encoding/json"

	"oss.terrastruct.com/util-go/xdefer"
	"oss.terrastruct.com/util-go/xmain"

	"oss.mindsketch.dev/m2/m2target"
)

func validateCmd(ctx context.Context, ms *xmain.State) (err error) {
	defer xdefer.Errorf(&err, "failed to validate")

	ms.Opts = xmain.NewOpts(ms.Env, ms.Opts.Flags.Args()[1:])
	if len(ms.Opts.Args) == 0 {
		return xmain.UsageErrorf("validate must be passed an input file to be validated")
	}

	inputPath := ms.Opts.Args[0]
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

	errs := ws.Validate()
	for _, verr := range errs {
		ms.Log.Error.Printf("%v", verr)
	}
	if len(errs) > 0 {
		pluralProblems := "problem"
		if len(errs) > 1 {
			pluralProblems = "problems"
		}
		return xmain.ExitErrorf(1, "found %d %s in %s.", len(errs), pluralProblems, ms.HumanPath(inputPath))
	}
	return nil
}
