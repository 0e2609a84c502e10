package security

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const defaultSandboxImage = "alpine:3.19"

// SandboxConfig configures running tool commands in a Docker container.
type SandboxConfig struct {
	Enabled bool   `yaml:"enabled"`
	Image   string `yaml:"image"`

	// Network keeps the container on the default bridge network.
	// Containers have no network otherwise.
	Network bool `yaml:"network"`

	// WritableWorkspace mounts the workspace read-write. It is read-only
	// by default.
	WritableWorkspace bool `yaml:"writable_workspace"`

	Limits ResourceLimits `yaml:"limits"`
}

// ResourceLimits defines resource constraints for sandboxed execution.
type ResourceLimits struct {
	// CPUShares is the relative CPU weight (docker --cpu-shares).
	CPUShares int `yaml:"cpu_shares"`

	// MemoryMB is the memory limit in megabytes (docker --memory).
	MemoryMB int `yaml:"memory_mb"`

	// TmpMB sizes the /tmp tmpfs in megabytes.
	TmpMB int `yaml:"tmp_mb"`

	// PIDs caps the number of processes (docker --pids-limit).
	PIDs int `yaml:"pids"`

	// Timeout is the maximum execution duration.
	Timeout time.Duration `yaml:"timeout"`
}

func (l *ResourceLimits) defaults() {
	if l.CPUShares <= 0 {
		l.CPUShares = 512
	}
	if l.MemoryMB <= 0 {
		l.MemoryMB = 256
	}
	if l.TmpMB <= 0 {
		l.TmpMB = 100
	}
	if l.PIDs <= 0 {
		l.PIDs = 256
	}
	if l.Timeout <= 0 {
		l.Timeout = 30 * time.Second
	}
}

// SandboxResult is the outcome of a command that ran in a container.
type SandboxResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// SandboxExecutor runs shell commands in throwaway Docker containers.
// It never falls back to running on the host.
type SandboxExecutor struct {
	cfg SandboxConfig
}

// NewSandboxExecutor creates an executor. Zero limits and an empty image
// are replaced with defaults.
func NewSandboxExecutor(cfg SandboxConfig) *SandboxExecutor {
	cfg.Limits.defaults()
	if cfg.Image == "" {
		cfg.Image = defaultSandboxImage
	}
	return &SandboxExecutor{cfg: cfg}
}

// Execute runs command with sh -c in a new container, workdir mounted at
// /workspace. A non-zero exit status is reported in the result, not as an
// error; errors mean the container could not be run.
func (s *SandboxExecutor) Execute(ctx context.Context, command, workdir string, env []string) (SandboxResult, error) {
	args, err := s.dockerArgs(command, workdir, env)
	if err != nil {
		return SandboxResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Limits.Timeout)
	defer cancel()

	//nolint:gosec // args are built from configuration and a validated workdir.
	cmd := exec.CommandContext(ctx, "docker", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	res := SandboxResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	var exitErr *exec.ExitError
	switch {
	case ctx.Err() != nil:
		return res, fmt.Errorf("sandbox: %w", ctx.Err())
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	case err != nil:
		return res, fmt.Errorf("sandbox: run docker: %w", err)
	}
	return res, nil
}

func (s *SandboxExecutor) dockerArgs(command, workdir string, env []string) ([]string, error) {
	l := s.cfg.Limits
	args := []string{
		"run", "--rm", "-i",
		"--read-only",
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges:true",
		"--user", "65534:65534",
		"--pids-limit", strconv.Itoa(l.PIDs),
		"--cpu-shares", strconv.Itoa(l.CPUShares),
		"--memory", strconv.Itoa(l.MemoryMB) + "m",
		"--tmpfs", "/tmp:rw,noexec,nosuid,size=" + strconv.Itoa(l.TmpMB) + "m",
	}
	if !s.cfg.Network {
		args = append(args, "--network=none")
	}

	if workdir != "" {
		workdir = filepath.Clean(workdir)
		if !filepath.IsAbs(workdir) || strings.ContainsAny(workdir, ":,") {
			return nil, fmt.Errorf("sandbox: invalid workdir %q", workdir)
		}
		mode := "ro"
		if s.cfg.WritableWorkspace {
			mode = "rw"
		}
		args = append(args, "-v", workdir+":/workspace:"+mode, "-w", "/workspace")
	}

	for _, e := range env {
		args = append(args, "-e", e)
	}
	return append(args, s.cfg.Image, "sh", "-c", command), nil
}

// DockerAvailable returns an error when the docker CLI is not on PATH.
func DockerAvailable() error {
	if _, err := exec.LookPath("docker"); err != nil {
		return fmt.Errorf("sandbox: docker not found: %w", err)
	}
	return nil
}
