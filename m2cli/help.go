package m2cli

import (
	"fmt"
	"path/filepath"

	"oss.terrastruct.com/util-go/xmain"

	"oss.mindsketch.dev/m2/lib/version"
)

func help(ms *xmain.State) {
	fmt.Fprintf(ms.Stdout, `%[1]s %[2]s
Usage:
  %[1]s serve [-f workspace.json] [--host localhost] [--port 0]
  %[1]s validate workspace.json
  %[1]s fmt workspace.json ...

%[1]s is the reference backend and document toolchain for mind map workspaces.

serve stores one workspace document in a file and exposes it over HTTP:
GET /api/workspace returns the document, POST /api/workspace replaces it,
and every change, whether saved through the API or written to the file by
another process, is broadcast to websocket clients connected to /watch.

Use - to have %[1]s read from stdin or write to stdout.

Flags:
%[3]s

Subcommands:
  %[1]s serve - Serve a workspace document over HTTP with a live change feed
  %[1]s validate workspace.json - Report semantic problems in a workspace document
  %[1]s fmt workspace.json ... - Rewrite documents in canonical indented form
  %[1]s version - Print the version

See more docs and the source code at https://oss.mindsketch.dev/m2.
`, filepath.Base(ms.Name), version.Version, ms.Opts.Defaults())
}
