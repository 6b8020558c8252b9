package main

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// whenParser recognizes natural-language dates ("last tuesday", "3 days
// ago") for --since, ahead of falling back to RFC3339 — spec.md §3.2's
// "accepts natural-language dates via olebedev/when ... in addition to
// RFC3339, for operators re-running an incremental extraction".
var whenParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseSince resolves the --since flag value to a time.Time. An empty
// string resolves to the zero time, meaning "no since filter".
func parseSince(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	result, err := whenParser.Parse(raw, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("parse --since %q: %w", raw, err)
	}
	if result == nil {
		return time.Time{}, fmt.Errorf("parse --since %q: not a recognizable date", raw)
	}
	return result.Time, nil
}
