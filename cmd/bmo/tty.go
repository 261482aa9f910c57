package main

import (
	"errors"
	"os"
	"strings"

	"golang.org/x/term"
)

// errNoTerminal is returned when the dashboard is launched without a TTY.
var errNoTerminal = errors.New("the dashboard needs a terminal; use a subcommand (kpis, insights, records, export, serve) for scripted use")

// init runs before lipgloss probes the terminal. Background-color detection
// writes OSC/DSR queries to stdout, which corrupts piped JSON output; termenv
// skips the probe when CI is set.
func init() {
	if os.Getenv("CI") != "" {
		return
	}
	if !shouldSuppressTTYQueries(os.Args[1:], os.Getenv("BMO_TEST_MODE") != "") {
		return
	}
	_ = os.Setenv("CI", "1")
}

// shouldSuppressTTYQueries reports whether the invocation produces machine
// output: any subcommand, --json, or help and version flags.
func shouldSuppressTTYQueries(args []string, envTest bool) bool {
	if envTest {
		return true
	}
	for i, arg := range args {
		switch arg {
		case "--json", "--version", "--help", "-h":
			return true
		}
		if strings.HasPrefix(arg, "-") {
			continue
		}
		// The value of a global flag is not a subcommand.
		if i > 0 && takesValue(args[i-1]) {
			continue
		}
		return true
	}
	return false
}

func takesValue(flag string) bool {
	if strings.Contains(flag, "=") {
		return false
	}
	switch flag {
	case "--config", "--source-url", "--source-dir", "--log-file":
		return true
	}
	return false
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
