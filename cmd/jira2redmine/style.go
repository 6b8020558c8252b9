package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// colorsEnabled mirrors spec.md §3.2's "falls back to plain text when
// stdout isn't a TTY": lipgloss styles degrade to plain strings whenever
// stdout isn't a terminal, probed with termenv the way the teacher's ui
// package picks a color profile before rendering anything.
var colorsEnabled = term.IsTerminal(int(os.Stdout.Fd())) && termenv.EnvColorProfile() != termenv.Ascii

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	summaryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	failStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
)

// phaseHeader prints the one-line timestamped header spec.md §4.10's
// "User-visible failure behaviour" requires at the start of each phase.
func phaseHeader(family, phase string, now time.Time) {
	line := fmt.Sprintf("== %s/%s  %s ==", family, phase, now.Format(time.RFC3339))
	if !colorsEnabled {
		fmt.Println(line)
		return
	}
	fmt.Println(headerStyle.Render(line))
}

// phaseSummary prints a phase's one-line result tally.
func phaseSummary(line string, failed bool) {
	if !colorsEnabled {
		fmt.Println(line)
		return
	}
	if failed {
		fmt.Println(failStyle.Render(line))
		return
	}
	fmt.Println(summaryStyle.Render(line))
}
