package console

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// Exit builds an error that makes the cli app exit with the given code.
func Exit(code int, msg string, args ...interface{}) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf(msg, args...), code)
}
