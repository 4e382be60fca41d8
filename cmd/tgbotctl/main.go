// Command tgbotctl runs the remote terminal controller's chat bot, and
// manages its whitelist from the command line.
package main

import (
	"os"

	"github.com/loppo-llc/tgbotctl/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
