// Package build implements the Container Image Builder (§4.5): three build
// strategies selected by deployment mode, all emitting per-line build output
// as Progress Events and surfacing the output tail on failure.
//
// The Docker client wrapper is grounded on agents/shared/docker/client.go's
// NewClientWithOpts + FromEnv + API-version-negotiation + ping-fallback
// shape, extended with image build/push (the teacher's wrapper only ever
// execs into already-running containers; it never builds one).
package build

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	dockerclient "github.com/docker/docker/client"

	"deployforge/internal/credentials"
	"deployforge/internal/events"
	"deployforge/internal/orcherrors"
)

// Reference is the Image Reference tuple of §3.
type Reference struct {
	RegistryHost string
	Repository   string
	Tag          string
}

// String renders the fully-qualified image reference.
func (r Reference) String() string {
	if r.RegistryHost == "" {
		return fmt.Sprintf("%s:%s", r.Repository, r.Tag)
	}
	return fmt.Sprintf("%s/%s:%s", r.RegistryHost, r.Repository, r.Tag)
}

// NewTag builds a deployment-unique tag: <id>-<suffix>, where suffix is the
// first 8 characters of the source commit, so a redeploy of new source
// content gets a fresh tag. Rebuilding the same commit yields the same tag;
// only an empty commit falls back to a timestamp suffix.
func NewTag(deploymentID, commit string) string {
	suffix := commit
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	if suffix == "" {
		suffix = fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%s", deploymentID, suffix)
}

// Builder drives the three build strategies.
type Builder struct {
	SSHKeyBaseDir string
}

// New returns a Builder reading secure-shell keys from sshKeyBaseDir
// (EC2_PRIVATE_KEY_BASE_PATH).
func New(sshKeyBaseDir string) *Builder {
	return &Builder{SSHKeyBaseDir: sshKeyBaseDir}
}

// dockerClient opens a Docker Engine API client the same way
// agents/shared/docker.NewClient does: FromEnv + API version negotiation,
// with a ping probe before handing it back.
func dockerClient() (*dockerclient.Client, error) {
	cli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, err
	}
	return cli, nil
}

// BuildLocal builds sourceDir with the local Docker daemon, tagging the
// image ref (local mode, and the first half of cloud-hosted's
// build-then-push strategy). Emits one Progress event per Docker build-log
// line; on failure the tail is carried in the returned error.
func (b *Builder) BuildLocal(ctx context.Context, sourceDir string, ref Reference, sink events.Sink) error {
	events.Start(sink, "build", "building "+ref.String())

	cli, err := dockerClient()
	if err != nil {
		events.End(sink, "build", err)
		return fmt.Errorf("docker client: %w", err)
	}
	defer cli.Close()

	tarball, err := tarDirectory(sourceDir)
	if err != nil {
		events.End(sink, "build", err)
		return err
	}

	resp, err := cli.ImageBuild(ctx, tarball, buildOptions(ref))
	if err != nil {
		events.End(sink, "build", err)
		return err
	}
	defer resp.Body.Close()

	tail, buildErr := streamBuildLog(resp.Body, sink)
	if buildErr != nil {
		wrapped := orcherrors.SubprocessExit("docker build", 1, strings.Join(tail, "\n"))
		events.End(sink, "build", wrapped)
		return wrapped
	}
	events.End(sink, "build", nil)
	return nil
}

func buildOptions(ref Reference) dockertypes.ImageBuildOptions {
	return dockertypes.ImageBuildOptions{Tags: []string{ref.String()}, Dockerfile: "Dockerfile", Remove: true}
}

// streamBuildLog decodes the newline-delimited JSON the Docker build API
// streams, emitting each "stream" field as a Progress log line, and
// returning the error message if the final JSON object carries one.
func streamBuildLog(r io.Reader, sink events.Sink) ([]string, error) {
	dec := json.NewDecoder(r)
	var tail []string
	for {
		var msg struct {
			Stream string `json:"stream"`
			Error  string `json:"error"`
		}
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				break
			}
			return tail, err
		}
		if msg.Error != "" {
			tail = append(tail, msg.Error)
			return tail, fmt.Errorf("%s", msg.Error)
		}
		line := strings.TrimRight(msg.Stream, "\n")
		if line == "" {
			continue
		}
		tail = append(tail, line)
		if len(tail) > 50 {
			tail = tail[len(tail)-50:]
		}
		events.Log(sink, "build", line)
	}
	return tail, nil
}

func tarDirectory(dir string) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
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
	if err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

// PushToRegistry authenticates to the cloud registry using scope and pushes
// ref (cloud-hosted mode's second half: build locally, tag with the
// registry-qualified name from the IaC Output Bag, push).
func (b *Builder) PushToRegistry(ctx context.Context, ref Reference, scope credentials.Scope, sink events.Sink) error {
	events.Start(sink, "push", "pushing "+ref.String())

	cli, err := dockerClient()
	if err != nil {
		events.End(sink, "push", err)
		return err
	}
	defer cli.Close()

	username, password, err := scope.ECRAuth(ctx)
	if err != nil {
		events.End(sink, "push", err)
		return err
	}
	authCfg := registryAuth{Username: username, Password: password, ServerAddress: ref.RegistryHost}
	authBytes, err := json.Marshal(authCfg)
	if err != nil {
		events.End(sink, "push", err)
		return err
	}
	authB64 := base64.URLEncoding.EncodeToString(authBytes)

	rc, err := cli.ImagePush(ctx, ref.String(), dockertypes.ImagePushOptions{RegistryAuth: authB64})
	if err != nil {
		events.End(sink, "push", err)
		return err
	}
	defer rc.Close()

	if _, err := io.Copy(&streamWriter{stage: "push", sink: sink}, rc); err != nil {
		events.End(sink, "push", err)
		return err
	}
	events.End(sink, "push", nil)
	return nil
}

// BuildRemote builds sourceDir on a cloud-local VM reachable over secure
// shell, per §4.5: "after the IaC Driver has provisioned a VM and its
// bootstrap has completed, open a secure shell, transfer the source
// tarball, invoke the builder on the remote host, then invoke the
// cluster's image-load command on the remote host." loadCmd is the
// cluster-specific image-load invocation (e.g. a `kind load` equivalent
// run on the VM against its local daemon); it runs only after the remote
// build succeeds.
func (b *Builder) BuildRemote(ctx context.Context, host, sshUser, keyName, sourceDir, remoteDir string, ref Reference, loadCmd string, sink events.Sink) error {
	events.Start(sink, "build-remote", "building "+ref.String()+" on "+host)

	sess, err := Dial(ctx, host, sshUser, keyName, b.SSHKeyBaseDir)
	if err != nil {
		events.End(sink, "build-remote", err)
		return err
	}
	defer sess.Close()

	events.Log(sink, "build-remote", "transferring source to "+host)
	remoteTar := remoteDir + ".tar"
	if err := sess.UploadTarball(sourceDir, remoteTar); err != nil {
		wrapped := fmt.Errorf("upload source tarball: %w", err)
		events.End(sink, "build-remote", wrapped)
		return wrapped
	}

	unpackCmd := fmt.Sprintf("mkdir -p %s && tar -xf %s -C %s && rm -f %s", remoteDir, remoteTar, remoteDir, remoteTar)
	if code, err := sess.Run("build-remote", unpackCmd, sink); err != nil || code != 0 {
		wrapped := orcherrors.SubprocessExit("tar", code, "failed to unpack source on "+host)
		events.End(sink, "build-remote", wrapped)
		return wrapped
	}

	buildCmd := fmt.Sprintf("docker build -t %s %s", ref.String(), remoteDir)
	code, err := sess.Run("build-remote", buildCmd, sink)
	if err != nil {
		events.End(sink, "build-remote", err)
		return err
	}
	if code != 0 {
		wrapped := orcherrors.SubprocessExit("docker build", code, "remote build failed on "+host)
		events.End(sink, "build-remote", wrapped)
		return wrapped
	}

	if loadCmd != "" {
		code, err := sess.Run("build-remote", loadCmd, sink)
		if err != nil {
			events.End(sink, "build-remote", err)
			return err
		}
		if code != 0 {
			wrapped := orcherrors.SubprocessExit(loadCmd, code, "image-load failed on "+host)
			events.End(sink, "build-remote", wrapped)
			return wrapped
		}
	}

	events.End(sink, "build-remote", nil)
	return nil
}

type registryAuth struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	ServerAddress string `json:"serveraddress"`
}

// streamWriter adapts line-buffered writes into Progress events for push
// output, which (like build output) arrives as newline-delimited JSON.
type streamWriter struct {
	stage string
	sink  events.Sink
	buf   bytes.Buffer
}

func (w *streamWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			w.buf.WriteString(line)
			break
		}
		line = strings.TrimSpace(line)
		if line != "" {
			events.Log(w.sink, w.stage, line)
		}
	}
	return len(p), nil
}
