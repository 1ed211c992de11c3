package clustermanager

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"

	"github.com/xetys/kubefleet/pkg/retry"
)

const defaultDialTimeout = 10 * time.Second

// ConnectionError is returned when no session could be established with a node
type ConnectionError struct {
	Host  string
	Stage string
	Err   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("ssh %s to %s failed: %v", e.Stage, e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Category implements retry.Categorized
func (e *ConnectionError) Category() retry.Category {
	switch e.Stage {
	case "auth":
		return retry.CategoryPermission
	case "key":
		return retry.CategoryValidation
	default:
		return retry.CategoryNetwork
	}
}

// CommandError is returned when a remote command exited non-zero
type CommandError struct {
	Host       string
	ExitStatus int
	Stderr     string
}

func (e *CommandError) Error() string {
	stderr := strings.TrimSpace(e.Stderr)
	if stderr == "" {
		return fmt.Sprintf("remote command on %s exited with status %d", e.Host, e.ExitStatus)
	}
	return fmt.Sprintf("remote command on %s exited with status %d: %s", e.Host, e.ExitStatus, stderr)
}

// Category implements retry.Categorized. It is derived from stderr and only feeds remediation hints.
func (e *CommandError) Category() retry.Category {
	return retry.ClassifyText(e.Stderr)
}

// Terminal marks a non-zero exit as not retryable
func (e *CommandError) Terminal() bool {
	return true
}

// SSHCommunicator implements NodeCommunicator as a SSH client
type SSHCommunicator struct {
	// DialTimeout bounds TCP connect plus handshake
	DialTimeout time.Duration
	// HostKeyCallback defaults to ssh.InsecureIgnoreHostKey, the machines are freshly provisioned
	HostKeyCallback ssh.HostKeyCallback
	// Passphrase decrypts encrypted private keys
	Passphrase []byte

	mu      sync.Mutex
	signers map[string]ssh.Signer
}

var _ NodeCommunicator = &SSHCommunicator{}

// NewSSHCommunicator creates an instance of SSHCommunicator
func NewSSHCommunicator(passphrase []byte) *SSHCommunicator {
	return &SSHCommunicator{
		DialTimeout: defaultDialTimeout,
		Passphrase:  passphrase,
		signers:     make(map[string]ssh.Signer),
	}
}

// RunCmd runs a shell command on the given target. Only stdout is returned;
// stderr is attached to the *CommandError of a failed command.
func (sshComm *SSHCommunicator) RunCmd(ctx context.Context, target Target, command string) (Secret, error) {
	client, err := sshComm.connect(ctx, target)
	if err != nil {
		return "", err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", &ConnectionError{Host: target.Address(), Stage: "session", Err: err}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case <-ctx.Done():
		// closing the connection unblocks session.Run
		client.Close()
		<-done
		return "", &ConnectionError{Host: target.Address(), Stage: "exec", Err: ctx.Err()}
	case err = <-done:
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return "", &CommandError{Host: target.Address(), ExitStatus: exitErr.ExitStatus(), Stderr: stderr.String()}
		}
		return "", &ConnectionError{Host: target.Address(), Stage: "exec", Err: err}
	}

	return Secret(stdout.String()), nil
}

func (sshComm *SSHCommunicator) connect(ctx context.Context, target Target) (*ssh.Client, error) {
	address := target.Address()
	if target.User == "" {
		return nil, &ConnectionError{Host: address, Stage: "key", Err: errors.New("no ssh user configured")}
	}

	signer, err := sshComm.signer(target.PrivateKey)
	if err != nil {
		return nil, &ConnectionError{Host: address, Stage: "key", Err: err}
	}

	hostKeyCallback := sshComm.HostKeyCallback
	if hostKeyCallback == nil {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}
	timeout := sshComm.DialTimeout
	if timeout == 0 {
		timeout = defaultDialTimeout
	}

	config := &ssh.ClientConfig{
		User:            target.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, &ConnectionError{Host: address, Stage: "dial", Err: err}
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		conn.Close()
		stage := "handshake"
		if strings.Contains(err.Error(), "unable to authenticate") {
			stage = "auth"
		}
		return nil, &ConnectionError{Host: address, Stage: stage, Err: err}
	}
	// the handshake deadline must not cut off long running commands
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(sshConn, chans, reqs), nil
}

func (sshComm *SSHCommunicator) signer(privateKey []byte) (ssh.Signer, error) {
	if len(privateKey) == 0 {
		return nil, errors.New("no private key configured")
	}

	sshComm.mu.Lock()
	defer sshComm.mu.Unlock()
	if sshComm.signers == nil {
		sshComm.signers = make(map[string]ssh.Signer)
	}
	if signer, ok := sshComm.signers[string(privateKey)]; ok {
		return signer, nil
	}

	signer, err := ssh.ParsePrivateKey(privateKey)
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) {
		if len(sshComm.Passphrase) == 0 {
			return nil, errors.New("private key is encrypted and no passphrase was given")
		}
		signer, err = ssh.ParsePrivateKeyWithPassphrase(privateKey, sshComm.Passphrase)
	}
	if err != nil {
		return nil, errors.Wrap(err, "parse key failed")
	}

	sshComm.signers[string(privateKey)] = signer
	return signer, nil
}
