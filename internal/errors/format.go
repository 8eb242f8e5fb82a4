package errors

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// FormatForUser returns a user-friendly error message.
// With debug set, details and the underlying cause are appended.
func FormatForUser(err error, debug bool) string {
	if err == nil {
		return ""
	}

	se, ok := as(err)
	if !ok {
		return err.Error()
	}

	var sb strings.Builder
	sb.WriteString("Error: ")
	sb.WriteString(se.Message)
	sb.WriteString("\n")

	if se.Suggestion != "" {
		sb.WriteString("\nSuggestion: ")
		sb.WriteString(se.Suggestion)
		sb.WriteString("\n")
	}

	if debug {
		for _, k := range sortedKeys(se.Details) {
			fmt.Fprintf(&sb, "  %s: %s\n", k, se.Details[k])
		}
		if se.Cause != nil {
			fmt.Fprintf(&sb, "  cause: %v\n", se.Cause)
		}
	}

	fmt.Fprintf(&sb, "\n[%s]", se.Code)
	return sb.String()
}

// FormatForCLI formats an error for terminal output.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	se, ok := as(err)
	if !ok {
		se = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", se.Message)
	if se.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", se.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", se.Code)
	return sb.String()
}

type jsonError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Severity   string            `json:"severity"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Retryable  bool              `json:"retryable"`
}

// FormatJSON returns a JSON representation of the error for --json output.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	se, ok := as(err)
	if !ok {
		se = Wrap(ErrCodeInternal, err)
	}

	je := jsonError{
		Code:       se.Code,
		Message:    se.Message,
		Category:   string(se.Category),
		Severity:   string(se.Severity),
		Details:    se.Details,
		Suggestion: se.Suggestion,
		Retryable:  se.Retryable,
	}
	if se.Cause != nil {
		je.Cause = se.Cause.Error()
	}

	return json.Marshal(je)
}

// LogAttrs returns key-value pairs for slog.
//
//	slog.Error("search failed", errors.LogAttrs(err)...)
func LogAttrs(err error) []any {
	if err == nil {
		return nil
	}

	se, ok := as(err)
	if !ok {
		return []any{"error", err.Error()}
	}

	attrs := []any{
		"error_code", se.Code,
		"message", se.Message,
		"category", string(se.Category),
		"severity", string(se.Severity),
	}
	if se.Cause != nil {
		attrs = append(attrs, "cause", se.Cause.Error())
	}
	for _, k := range sortedKeys(se.Details) {
		attrs = append(attrs, "detail_"+k, se.Details[k])
	}
	return attrs
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
