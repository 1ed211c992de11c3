package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type terminalErr struct{}

func (terminalErr) Error() string      { return "remote command exited with status 1: already exists" }
func (terminalErr) Terminal() bool     { return true }
func (terminalErr) Category() Category { return CategoryResourceConflict }

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		category  Category
		retryable bool
	}{
		{"permission text", errors.New("sudo: Permission denied"), CategoryPermission, true},
		{"forbidden text", errors.New("Error from server (Forbidden): nodes is forbidden"), CategoryPermission, true},
		{"conflict text", errors.New("secret \"k3s\" already exists"), CategoryResourceConflict, true},
		{"prerequisite text", errors.New("sh: 1: curl: command not found"), CategoryMissingPrerequisite, false},
		{"network text", errors.New("dial tcp 10.0.0.1:22: connect: connection refused"), CategoryNetwork, true},
		{"validation text", errors.New("malformed kubeconfig"), CategoryValidation, false},
		{"unknown text", errors.New("something odd happened"), CategoryUnknown, true},
		{"deadline", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), CategoryNetwork, true},
		{"net error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("boom")}, CategoryNetwork, true},
		{"structured category wins over text", categorizedErr{CategoryValidation}, CategoryValidation, false},
		{"wrapped structured category", fmt.Errorf("phase: %w", categorizedErr{CategoryPermission}), CategoryPermission, true},
		{"fatal", Fatal(errors.New("connection refused")), CategoryNetwork, false},
		{"terminal marker", terminalErr{}, CategoryResourceConflict, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.err)
			assert.Equal(t, tt.category, c.Category)
			assert.Equal(t, tt.retryable, c.Retryable)
		})
	}
}

func TestCategory_Retryable(t *testing.T) {
	assert.True(t, CategoryPermission.Retryable())
	assert.True(t, CategoryResourceConflict.Retryable())
	assert.False(t, CategoryMissingPrerequisite.Retryable())
	assert.True(t, CategoryNetwork.Retryable())
	assert.False(t, CategoryValidation.Retryable())
	assert.True(t, CategoryUnknown.Retryable())
}

func TestCategory_RemediationIsCopied(t *testing.T) {
	hints := CategoryNetwork.Remediation()
	hints[0] = "changed"
	assert.NotEqual(t, "changed", CategoryNetwork.Remediation()[0])
	assert.NotEmpty(t, Category("bogus").Remediation())
}

func TestNewFailure(t *testing.T) {
	f := NewFailure("credential-retrieval", "cluster-master", errors.New("cat: /etc/rancher/k3s/k3s.yaml: No such file or directory"))
	assert.Equal(t, CategoryMissingPrerequisite, f.Category)
	assert.Equal(t, 1, f.Attempts)
	assert.Equal(t, "credential-retrieval on cluster-master failed (missing-prerequisite) after 1 attempt(s): cat: /etc/rancher/k3s/k3s.yaml: No such file or directory", f.Error())

	same := NewFailure("other", "", fmt.Errorf("wrapped: %w", f))
	assert.Same(t, f, same)
}

func TestCollector(t *testing.T) {
	sleep, _ := recordingSleep()
	runner := NewRunner(WithMaxRetries(1), WithSleep(sleep))
	runner.Execute(context.Background(), "worker-join", "w1", func(_ context.Context) error {
		return errors.New("timeout")
	})
	runner.Execute(context.Background(), "token-fetch", "m", func(_ context.Context) error {
		return nil
	})

	c := NewCollector(runner, "kubefleet")
	// two phase series plus errors, max retry and duration
	assert.Equal(t, 5, testutil.CollectAndCount(c))
}
