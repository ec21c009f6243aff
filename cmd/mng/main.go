// mng is the control-plane CLI for creating, tracking, and destroying
// autonomous coding agents across local, Docker, SSH, and remote-mng hosts.
package main

import (
	"os"

	"github.com/imbue-ai/mng/internal/cliapp"
)

func main() {
	os.Exit(cliapp.Execute())
}
