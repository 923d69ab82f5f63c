package theme

import (
	"fmt"
)

// Banner returns the startup banner.
func Banner() string {
	// ANSI colors for a neon terminal feel
	const cyan = "\033[36m"
	const magenta = "\033[35m"
	const yellow = "\033[33m"
	const reset = "\033[0m"

	art := "" +
		"  ✦✵✷   " + magenta + "STARLING" + reset + "   ✷✵✦\n" +
		cyan + "      ▄███▄    ▄▄\n" + reset +
		cyan + "     ▐█▀ ▀██▄▄███▌\n" + reset +
		cyan + "      ▀█▄▄████▀▀\n" + reset +
		cyan + "        ▀▀█▀\n" + reset +
		yellow + "   ──────────────────────────\n" + reset +
		"   a patient songbird for the timeline ✦\n"

	stars := magenta + "       ✦    ✧     ✦     ✧    ✦\n" + reset
	return art + stars
}

// PrintBanner prints the banner to stdout.
func PrintBanner() {
	fmt.Print(Banner())
}
