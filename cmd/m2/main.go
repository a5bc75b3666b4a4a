package main

import (
	"oss.terrastruct.com/util-go/xmain"

	"oss.mindsketch.dev/m2/m2cli"
)

func main() {
	xmain.Main(m2cli.Run)
}
