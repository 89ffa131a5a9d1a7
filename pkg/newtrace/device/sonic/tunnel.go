package sonic

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/newtron-network/newtrace/pkg/newtrace/device"
	"github.com/newtron-network/newtrace/pkg/util"
)

// redisAddr is where SONiC's redis-server listens inside the switch.
const redisAddr = "127.0.0.1:6379"

// SSHTunnel forwards a local TCP port to Redis through an SSH connection.
// SONiC's Redis has no authentication and is bound to loopback, so the SSH
// login is the only authenticated path to the switch databases.
type SSHTunnel struct {
	localAddr string // "127.0.0.1:<port>"
	sshClient *ssh.Client
	listener  net.Listener
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// hostKeyCallback returns a known_hosts verifier, or an insecure callback
// with a warning when no file is configured.
func hostKeyCallback(knownHostsFile, addr string) (ssh.HostKeyCallback, error) {
	if knownHostsFile == "" {
		util.WithDevice(addr).Warn("SSH host key verification disabled (no known_hosts file configured)")
		return ssh.InsecureIgnoreHostKey(), nil
	}
	cb, err := knownhosts.New(knownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("loading known_hosts %s: %w", knownHostsFile, err)
	}
	return cb, nil
}

// NewSSHTunnel dials SSH on host and opens a local listener on a random port.
// Connections to the local port are forwarded to Redis inside the SSH host.
// The dial honours both ctx and timeout; port 0 means 22.
func NewSSHTunnel(ctx context.Context, host string, creds device.Credentials, timeout time.Duration, knownHostsFile string) (*SSHTunnel, error) {
	port := creds.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	hostKeys, err := hostKeyCallback(knownHostsFile, addr)
	if err != nil {
		return nil, err
	}
	config := &ssh.ClientConfig{
		User: creds.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(creds.Password),
			ssh.KeyboardInteractive(passwordChallenge(creds.Password)),
		},
		HostKeyCallback: hostKeys,
		Timeout:         timeout,
	}

	dialCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("SSH dial %s@%s: %w", creds.User, addr, err)
	}
	if deadline, ok := dialCtx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SSH handshake %s@%s: %w", creds.User, addr, err)
	}
	conn.SetDeadline(time.Time{})
	sshClient := ssh.NewClient(c, chans, reqs)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("local listen: %w", err)
	}

	t := &SSHTunnel{
		localAddr: listener.Addr().String(),
		sshClient: sshClient,
		listener:  listener,
		done:      make(chan struct{}),
	}

	t.wg.Add(1)
	go t.acceptLoop()

	return t, nil
}

// passwordChallenge answers keyboard-interactive prompts with the password;
// some NOS images disable plain password auth.
func passwordChallenge(password string) ssh.KeyboardInteractiveChallenge {
	return func(user, instruction string, questions []string, echos []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range questions {
			answers[i] = password
		}
		return answers, nil
	}
}

// LocalAddr returns the local address (e.g. "127.0.0.1:54321") that forwards
// to Redis inside the SSH host.
func (t *SSHTunnel) LocalAddr() string {
	return t.localAddr
}

// Close stops the listener, closes the SSH connection, and waits for
// all forwarding goroutines to finish. Safe to call more than once.
func (t *SSHTunnel) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.listener.Close()
		// Closing the SSH client tears down forwarded channels and unblocks
		// io.Copy goroutines waiting on remote reads.
		t.sshClient.Close()
		t.wg.Wait()
	})
	return nil
}

func (t *SSHTunnel) acceptLoop() {
	defer t.wg.Done()
	for {
		local, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.done:
				return
			default:
				continue
			}
		}
		t.wg.Add(1)
		go t.forward(local)
	}
}

func (t *SSHTunnel) forward(local net.Conn) {
	defer t.wg.Done()
	defer local.Close()

	remote, err := t.sshClient.Dial("tcp", redisAddr)
	if err != nil {
		return
	}
	defer remote.Close()

	done := make(chan struct{}, 2)
	go func() {
		io.Copy(remote, local)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(local, remote)
		done <- struct{}{}
	}()
	<-done
}
