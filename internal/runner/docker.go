package runner

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"
)

const dockerTimeout = 60 * time.Second

// DockerCLI drives containers through the docker command line. Each call
// shells out once; there is no persistent client connection to manage.
type DockerCLI struct {
	// Binary is the docker executable, "docker" unless overridden.
	Binary string
	// Network, when set, attaches every container to the named network.
	Network string
}

func NewDockerCLI(network string) *DockerCLI {
	return &DockerCLI{Binary: "docker", Network: network}
}

func (d *DockerCLI) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, dockerTimeout)
	defer cancel()

	bin := d.Binary
	if bin == "" {
		bin = "docker"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("docker %s: %s", args[0], msg)
	}
	return stdout.String(), nil
}

func (d *DockerCLI) Start(ctx context.Context, name, image string, env map[string]string) error {
	if name == "" || image == "" {
		return fmt.Errorf("container name and image are required")
	}
	args := []string{"run", "-d", "--name", name}
	if d.Network != "" {
		args = append(args, "--network", d.Network)
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", k+"="+env[k])
	}
	args = append(args, image)

	_, err := d.run(ctx, args...)
	return err
}

func (d *DockerCLI) Stop(ctx context.Context, name string) error {
	_, err := d.run(ctx, "stop", name)
	return err
}

func (d *DockerCLI) Remove(ctx context.Context, name string) error {
	_, err := d.run(ctx, "rm", "-f", name)
	return err
}

func (d *DockerCLI) List(ctx context.Context, prefix string) ([]ContainerInfo, error) {
	out, err := d.run(ctx, "ps", "-a",
		"--filter", "name="+prefix,
		"--format", "{{.Names}}\t{{.State}}")
	if err != nil {
		return nil, err
	}

	var infos []ContainerInfo
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		name, state, _ := strings.Cut(line, "\t")
		// The name filter is a substring match; keep real prefix matches only.
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		infos = append(infos, ContainerInfo{Name: name, State: parseState(state)})
	}
	return infos, nil
}

func parseState(s string) ContainerState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "running", "restarting", "created":
		return StateRunning
	case "exited", "dead", "paused":
		return StateExited
	default:
		return StateUnknown
	}
}
