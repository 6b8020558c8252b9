package redmine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// describePushError formats err for a mapping row's notes column per
// spec.md §4.9: on an HTTP error response, prefer errors[] joined by "; ",
// else error, else the stripped body, prefixed with "HTTP {status}:" and
// truncated to 500 characters; on a transport error, the underlying
// message verbatim.
func describePushError(err error) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		msg := extractErrorMessage(statusErr.Body)
		return truncate(fmt.Sprintf("HTTP %d: %s", statusErr.StatusCode, msg), 500)
	}
	return err.Error()
}

func extractErrorMessage(body []byte) string {
	var withErrors struct {
		Errors []string `json:"errors"`
	}
	if err := json.Unmarshal(body, &withErrors); err == nil && len(withErrors.Errors) > 0 {
		return strings.Join(withErrors.Errors, "; ")
	}

	var withError struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &withError); err == nil && withError.Error != "" {
		return withError.Error
	}

	return strings.TrimSpace(string(body))
}
