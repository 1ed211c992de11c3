package retry

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Category is the fixed error taxonomy used to decide whether a failed
// operation is retried and which remediation steps are reported.
type Category string

const (
	// CategoryPermission covers access denied / forbidden responses.
	CategoryPermission Category = "permission"
	// CategoryResourceConflict covers targets that already exist.
	CategoryResourceConflict Category = "resource-conflict"
	// CategoryMissingPrerequisite covers absent host-level dependencies.
	CategoryMissingPrerequisite Category = "missing-prerequisite"
	// CategoryNetwork covers refused connections and timeouts.
	CategoryNetwork Category = "network"
	// CategoryValidation covers malformed or invalid input.
	CategoryValidation Category = "validation"
	// CategoryUnknown is used when nothing else matched.
	CategoryUnknown Category = "unknown"
)

var retryable = map[Category]bool{
	CategoryPermission:          true,
	CategoryResourceConflict:    true,
	CategoryMissingPrerequisite: false,
	CategoryNetwork:             true,
	CategoryValidation:          false,
	CategoryUnknown:             true,
}

var remediations = map[Category][]string{
	CategoryPermission: {
		"verify the SSH user and private key are authorized on the target host",
		"check that the user may run the install commands with sudo",
	},
	CategoryResourceConflict: {
		"the resource already exists; re-running the phase is safe because all commands are idempotent",
		"if the conflict persists, tear down the node and bootstrap it again",
	},
	CategoryMissingPrerequisite: {
		"install the missing host dependency (curl, sh, systemd) on the node image",
		"verify the node was provisioned from a supported image",
	},
	CategoryNetwork: {
		"check that the host is reachable on the SSH port from this machine",
		"check firewall rules between the nodes and the first control-plane node (port 6443)",
		"increase the retry timeout if the hosts are slow to boot",
	},
	CategoryValidation: {
		"fix the configuration value named in the error and run the command again",
	},
	CategoryUnknown: {
		"inspect the error output of the failed phase",
		"re-run the command with --debug for more detail",
	},
}

// Retryable reports whether failures of this category are retried.
func (c Category) Retryable() bool {
	r, ok := retryable[c]
	if !ok {
		return true
	}
	return r
}

// Remediation returns the remediation hints for the category.
func (c Category) Remediation() []string {
	hints, ok := remediations[c]
	if !ok {
		hints = remediations[CategoryUnknown]
	}
	out := make([]string, len(hints))
	copy(out, hints)
	return out
}

// Categorized is implemented by errors that carry their own category,
// for instance errors produced by the remote execution boundary.
type Categorized interface {
	Category() Category
}

// terminal is implemented by errors that must never be retried,
// whatever their category says.
type terminal interface {
	Terminal() bool
}

// FatalError wraps an error to mark it as fatal (non-retryable).
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Terminal implements the terminal marker.
func (e *FatalError) Terminal() bool {
	return true
}

// Fatal marks an error as fatal (non-retryable).
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal checks if an error is fatal (non-retryable).
func IsFatal(err error) bool {
	var fatalErr *FatalError
	return errors.As(err, &fatalErr)
}

// Classification is the outcome of classifying an error.
type Classification struct {
	Category  Category
	Retryable bool
}

// Classify maps an error onto the taxonomy. Structured information is
// preferred: terminal markers first, then errors implementing Categorized,
// then context and net errors. Matching on the error text is the fallback.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Category: CategoryUnknown}
	}

	category := categoryOf(err)
	isTerminal := false
	var t terminal
	if errors.As(err, &t) && t.Terminal() {
		isTerminal = true
	}

	return Classification{
		Category:  category,
		Retryable: category.Retryable() && !isTerminal,
	}
}

func categoryOf(err error) Category {
	var c Categorized
	if errors.As(err, &c) {
		if category := c.Category(); category != "" {
			return category
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return CategoryNetwork
	}

	return ClassifyText(err.Error())
}

// textRules is evaluated in order; the first matching rule wins.
var textRules = []struct {
	category Category
	needles  []string
}{
	{CategoryPermission, []string{"permission denied", "access denied", "forbidden", "unauthorized", "unable to authenticate", "not permitted"}},
	{CategoryResourceConflict, []string{"already exists", "conflict", "already in use"}},
	{CategoryMissingPrerequisite, []string{"command not found", "no such file or directory", "not installed", "missing dependency", "executable file not found"}},
	{CategoryNetwork, []string{"connection refused", "connection reset", "timeout", "timed out", "no route to host", "network is unreachable", "host is unreachable", "i/o timeout", "eof"}},
	{CategoryValidation, []string{"invalid", "validation", "malformed", "must be"}},
}

// ClassifyText classifies a raw error message. It is used as a fallback when
// no structured category is available.
func ClassifyText(message string) Category {
	msg := strings.ToLower(message)
	for _, rule := range textRules {
		for _, needle := range rule.needles {
			if strings.Contains(msg, needle) {
				return rule.category
			}
		}
	}
	return CategoryUnknown
}
