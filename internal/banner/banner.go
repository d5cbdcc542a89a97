// Package banner prints a startup banner for the demo command.
package banner

import (
	"fmt"
	"strings"
)

const logo = `
======================================================================
 ____          _ _  ____           _         _____              _
/ ___|  __ _ | || || ___|_ __   __ _(_)_ __   | ____|_ __   __ _(_)_ __   ___
| |    / _` + "`" + ` || || ||___ \ '_ \ / _` + "`" + ` | | '_ \  |  _| | '_ \ / _` + "`" + ` | | '_ \ / _ \
| |___| (_| || || || |__| | | | (_| | | | | | | |___| | | | (_| | | | | |  __/
\____|\__,_||_||_||_____|_| |_|\__, |_|_| |_| |_____|_| |_|\__, |_|_| |_|\___|
                                |___/                      |___/
----------------------------------------------------------------------`

const footer = `======================================================================`

// ConfigLine is a single aligned label/value row printed under the logo.
type ConfigLine struct {
	Label string
	Value string
}

// Print displays the startup banner with the command name and configuration.
func Print(commandName string, config []ConfigLine) {
	fmt.Println(logo)
	fmt.Printf("%s\n", commandName)

	maxLen := 0
	for _, c := range config {
		if len(c.Label) > maxLen {
			maxLen = len(c.Label)
		}
	}

	for _, c := range config {
		padding := strings.Repeat(" ", maxLen-len(c.Label))
		fmt.Printf("  %s%s : %s\n", c.Label, padding, c.Value)
	}

	fmt.Println()
	fmt.Println("Ready.")
	fmt.Println(footer)
	fmt.Println()
}
