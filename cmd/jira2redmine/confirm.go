package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// confirmGate resolves whether a write-performing phase (push/pull) may
// run: the flag wins when set; otherwise, on a TTY, it prompts with a huh
// confirm the way the teacher's create_form.go builds interactive forms.
// Non-interactive runs without the flag are refused, per spec.md §3.2
// ("non-interactive runs require the flag").
func confirmGate(flagSet bool, prompt string) (bool, error) {
	if flagSet {
		return true, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, nil
	}

	var ok bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(prompt).
			Value(&ok),
	)).WithTheme(huh.ThemeDracula())

	if err := form.Run(); err != nil {
		return false, fmt.Errorf("confirm prompt: %w", err)
	}
	return ok, nil
}
