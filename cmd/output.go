package cmd

import (
	"fmt"
	"io"
	"os"
)

// ── Output helpers ────────────────────────────────────────────────────────────
// Every command prints through these so stage output lines up.
//
// Icons:
//   ✓  success / healthy
//   ✗  error / failure          (written to stderr)
//   ⚠  warning
//   ○  skipped / not applicable
//   -  not found / missing
//   ~  neutral info

// printSection prints a top-level section header, e.g. "=== catsdogs train ===".
func printSection(title string) {
	fmt.Printf("\n=== %s ===\n", title)
}

// printLine writes "  <icon>  msg" or "  <icon>  [name] msg".
func printLine(w io.Writer, icon, name, msg string) {
	if name == "" {
		fmt.Fprintf(w, "  %s  %s\n", icon, msg)
	} else {
		fmt.Fprintf(w, "  %s  [%s] %s\n", icon, name, msg)
	}
}

func printOK(name, msg string)   { printLine(os.Stdout, "✓", name, msg) }
func printErr(name, msg string)  { printLine(os.Stderr, "✗", name, msg) }
func printWarn(name, msg string) { printLine(os.Stdout, "⚠", name, msg) }
func printSkip(name, msg string) { printLine(os.Stdout, "○", name, msg) }
func printMiss(name, msg string) { printLine(os.Stdout, "-", name, msg) }
func printInfo(name, msg string) { printLine(os.Stdout, "~", name, msg) }
