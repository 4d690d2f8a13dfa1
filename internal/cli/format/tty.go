package format

import (
	"os"

	"golang.org/x/term"
)

// IsTTY reports whether stdout should get colour and terminal rendering.
// NO_COLOR wins over everything; CLICOLOR_FORCE=1 enables colour for piped
// output such as `pixelflow run ... | less -R`.
func IsTTY() bool {
	return colorEnabled(os.Getenv, func() bool {
		return term.IsTerminal(int(os.Stdout.Fd()))
	})
}

func colorEnabled(getenv func(string) string, isTerminal func() bool) bool {
	if getenv("NO_COLOR") != "" {
		return false
	}
	if force := getenv("CLICOLOR_FORCE"); force != "" && force != "0" {
		return true
	}

	switch getenv("TERM") {
	case "", "dumb":
		return false
	}
	return isTerminal()
}
