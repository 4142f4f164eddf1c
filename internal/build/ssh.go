package build

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"deployforge/internal/events"
	"deployforge/internal/orcherrors"
)

// RemoteSession is an open secure-shell connection to a cloud-local VM,
// grounded on tools/si/paas_ssh_transport_cmd.go's Go-native ssh engine
// (golang.org/x/crypto/ssh client + session.Run, key material resolved from
// a configured directory rather than the ambient ssh-agent).
type RemoteSession struct {
	client *ssh.Client
}

// Dial opens a secure shell to host as user, using the private key named
// <keyName>.pem (falling back to <keyName>) under keyBaseDir. Per §4.5, an
// absent key directory/file is a fatal ConfigurationError.
func Dial(ctx context.Context, host, user, keyName, keyBaseDir string) (*RemoteSession, error) {
	if strings.TrimSpace(keyBaseDir) == "" {
		return nil, orcherrors.Configuration("EC2_PRIVATE_KEY_BASE_PATH not configured")
	}
	keyPath := filepath.Join(keyBaseDir, keyName+".pem")
	raw, err := os.ReadFile(keyPath)
	if err != nil {
		alt := filepath.Join(keyBaseDir, keyName)
		raw, err = os.ReadFile(alt)
		if err != nil {
			return nil, orcherrors.Configuration(fmt.Sprintf("secure-shell key %q not found under %s", keyName, keyBaseDir))
		}
	}
	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		return nil, orcherrors.Configuration(fmt.Sprintf("secure-shell key %q is not a valid private key: %v", keyName, err))
	}

	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // ephemeral VM, no prior known_hosts entry
		Timeout:         15 * time.Second,
	}

	dialer := net.Dialer{Timeout: 15 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, "22"))
	if err != nil {
		return nil, fmt.Errorf("dial %s:22: %w", host, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, host+":22", cfg)
	if err != nil {
		return nil, fmt.Errorf("ssh handshake with %s: %w", host, err)
	}
	return &RemoteSession{client: ssh.NewClient(sshConn, chans, reqs)}, nil
}

// Close closes the underlying connection.
func (r *RemoteSession) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

// Run executes remoteCmd on the VM, streaming combined stdout/stderr lines
// as Progress events under stage, returning the exit code.
func (r *RemoteSession) Run(stage, remoteCmd string, sink events.Sink) (int, error) {
	session, err := r.client.NewSession()
	if err != nil {
		return -1, err
	}
	defer session.Close()

	w := &streamWriter{stage: stage, sink: sink}
	session.Stdout = w
	session.Stderr = w

	err = session.Run(remoteCmd)
	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*ssh.ExitError); ok {
		return exitErr.ExitStatus(), nil
	}
	return -1, err
}

// WaitForSentinel polls for the presence of path on the VM (via `test -f`),
// used by the Cluster Bootstrapper to detect VM bootstrap completion (§4.7
// cloud-local: "waits for VM bootstrap completion by polling a sentinel
// file").
func (r *RemoteSession) WaitForSentinel(ctx context.Context, path string, interval, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for sentinel %s", path)
		}
		code, err := r.Run("bootstrap-wait", fmt.Sprintf("test -f %s", path), noopSink{})
		if err == nil && code == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

type noopSink struct{}

func (noopSink) Emit(events.Progress) {}

// UploadTarball streams a tar archive of sourceDir to remotePath on the VM
// by running `cat > remotePath` in a session and writing the archive to its
// stdin.
func (r *RemoteSession) UploadTarball(sourceDir, remotePath string) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	err := tarWalk(sourceDir, tw)
	if err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}

	session, err := r.client.NewSession()
	if err != nil {
		return err
	}
	defer session.Close()

	stdin, err := session.StdinPipe()
	if err != nil {
		return err
	}
	if err := session.Start(fmt.Sprintf("cat > %s", remotePath)); err != nil {
		return err
	}
	if _, err := stdin.Write(buf.Bytes()); err != nil {
		return err
	}
	if err := stdin.Close(); err != nil {
		return err
	}
	return session.Wait()
}

func tarWalk(dir string, tw *tar.Writer) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = rel
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
}
