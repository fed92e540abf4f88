package executor

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

const (
	workDir         = "/workspace"
	oomExitCode     = 137
	defaultMemoryKB = 256 * 1024
	defaultLimitMs  = 5000
)

// DockerExecutor runs submissions in throwaway containers, one container
// per execution, network disabled, memory and CPU capped.
type DockerExecutor struct {
	cli       *client.Client
	languages map[Language]LanguageConfig
	cpuLimit  float64
}

// DockerConfig holds Docker executor configuration
type DockerConfig struct {
	Languages map[Language]LanguageConfig
	CPULimit  float64
}

// NewDockerExecutor creates a Docker executor and verifies the daemon is
// reachable.
func NewDockerExecutor(cfg DockerConfig) (*DockerExecutor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker not reachable: %w", err)
	}

	languages := cfg.Languages
	if languages == nil {
		languages = DefaultLanguageConfigs()
	}
	cpuLimit := cfg.CPULimit
	if cpuLimit == 0 {
		cpuLimit = 1.0
	}

	return &DockerExecutor{cli: cli, languages: languages, cpuLimit: cpuLimit}, nil
}

// Execute runs the code against every test case inside a fresh container.
func (e *DockerExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	lang, err := ParseLanguage(req.Language)
	if err != nil {
		return nil, CompileError(err)
	}
	langCfg, ok := e.languages[lang]
	if !ok {
		return nil, CompileError(fmt.Errorf("no sandbox configured for language %s", lang))
	}

	memoryKB := req.MemoryLimitKB
	if memoryKB <= 0 {
		memoryKB = defaultMemoryKB
	}
	limitMs := req.RuntimeLimitMs
	if limitMs <= 0 {
		limitMs = defaultLimitMs
	}

	containerID, err := e.createContainer(ctx, langCfg.Image, memoryKB)
	if err != nil {
		return nil, err
	}
	defer e.destroyContainer(containerID)

	files := map[string]string{langCfg.SourceFile: req.Code}
	for i, tc := range req.TestCases {
		files[caseInputFile(i)] = tc.Input
	}
	if err := e.copyFiles(ctx, containerID, files); err != nil {
		return nil, fmt.Errorf("copy files: %w", err)
	}

	if len(langCfg.CompileCmd) > 0 {
		out, exitCode, err := e.exec(ctx, containerID, langCfg.CompileCmd, 60*time.Second)
		if err != nil {
			return nil, err
		}
		if exitCode != 0 {
			return nil, CompileError(errors.New(firstLines(out.Stderr+out.Stdout, 20)))
		}
	}

	result := &Result{Cases: make([]CaseOutcome, 0, len(req.TestCases))}
	for i, tc := range req.TestCases {
		outcome := e.runCase(ctx, containerID, langCfg, i, tc, limitMs)
		result.Cases = append(result.Cases, outcome)
		if outcome.RuntimeMs > result.RuntimeMs {
			result.RuntimeMs = outcome.RuntimeMs
		}
		if outcome.MemoryKB > result.MemoryKB {
			result.MemoryKB = outcome.MemoryKB
		}
	}

	return result, nil
}

func (e *DockerExecutor) runCase(ctx context.Context, containerID string, langCfg LanguageConfig, idx int, tc TestCase, limitMs int) CaseOutcome {
	cmd := []string{"sh", "-c", strings.Join(langCfg.RunCmd, " ") + " < " + caseInputFile(idx)}

	out, exitCode, err := e.exec(ctx, containerID, cmd, time.Duration(limitMs)*time.Millisecond)

	outcome := CaseOutcome{MemoryKB: e.peakMemoryKB(containerID)}
	if out != nil {
		outcome.ActualOutput = out.Stdout
		outcome.Stderr = out.Stderr
		outcome.RuntimeMs = int(out.Duration.Milliseconds())
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		outcome.TimedOut = true
		outcome.RuntimeMs = limitMs
	case err != nil:
		outcome.Crashed = true
	case exitCode == oomExitCode:
		outcome.MemoryExceeded = true
	case exitCode != 0:
		outcome.Crashed = true
	default:
		outcome.Passed = normalizeOutput(outcome.ActualOutput) == normalizeOutput(tc.ExpectedOutput)
	}

	return outcome
}

func (e *DockerExecutor) createContainer(ctx context.Context, img string, memoryKB int) (string, error) {
	if err := e.ensureImage(ctx, img); err != nil {
		return "", fmt.Errorf("ensure image: %w", err)
	}

	containerCfg := &container.Config{
		Image:           img,
		Cmd:             []string{"sh", "-c", "while true; do sleep 3600; done"},
		WorkingDir:      workDir,
		NetworkDisabled: true,
		Tty:             false,
		Labels: map[string]string{
			"codedrill.sandbox": "true",
		},
	}

	pidsLimit := int64(128)
	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			Memory:    int64(memoryKB) * 1024,
			NanoCPUs:  int64(e.cpuLimit * 1e9),
			PidsLimit: &pidsLimit,
		},
	}

	resp, err := e.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}

	if err := e.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = e.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("start container: %w", err)
	}

	return resp.ID, nil
}

func (e *DockerExecutor) copyFiles(ctx context.Context, containerID string, files map[string]string) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	for name, content := range files {
		header := &tar.Header{
			Name: name,
			Mode: 0644,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("write tar header: %w", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			return fmt.Errorf("write tar content: %w", err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}

	return e.cli.CopyToContainer(ctx, containerID, workDir, &buf, container.CopyToContainerOptions{})
}

// execOutput holds the output from one in-container command.
type execOutput struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
}

func (e *DockerExecutor) exec(ctx context.Context, containerID string, cmd []string, timeout time.Duration) (*execOutput, int, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execCfg := container.ExecOptions{
		Cmd:          cmd,
		WorkingDir:   workDir,
		AttachStdout: true,
		AttachStderr: true,
	}

	execResp, err := e.cli.ContainerExecCreate(execCtx, containerID, execCfg)
	if err != nil {
		return nil, 0, fmt.Errorf("create exec: %w", err)
	}

	start := time.Now()

	attachResp, err := e.cli.ContainerExecAttach(execCtx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("attach exec: %w", err)
	}
	defer attachResp.Close()

	var outBuf bytes.Buffer
	copyDone := make(chan struct{})
	go func() {
		_, _ = io.Copy(&outBuf, attachResp.Reader)
		close(copyDone)
	}()

	select {
	case <-copyDone:
	case <-execCtx.Done():
		attachResp.Close()
		<-copyDone
		return nil, 0, execCtx.Err()
	}

	duration := time.Since(start)

	inspectResp, err := e.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return nil, 0, fmt.Errorf("inspect exec: %w", err)
	}

	stdout, stderr := demuxOutput(outBuf.Bytes())
	return &execOutput{Stdout: stdout, Stderr: stderr, Duration: duration}, inspectResp.ExitCode, nil
}

// peakMemoryKB samples the container's max memory usage. Best effort: a
// stats failure reports zero rather than failing the case.
func (e *DockerExecutor) peakMemoryKB(containerID string) int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	statsResp, err := e.cli.ContainerStatsOneShot(ctx, containerID)
	if err != nil {
		return 0
	}
	defer statsResp.Body.Close()

	var stats container.StatsResponse
	if err := json.NewDecoder(statsResp.Body).Decode(&stats); err != nil {
		return 0
	}

	peak := stats.MemoryStats.MaxUsage
	if peak == 0 {
		peak = stats.MemoryStats.Usage
	}
	return int(peak / 1024)
}

func (e *DockerExecutor) destroyContainer(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	timeout := 5
	_ = e.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout})
	if err := e.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		slog.Warn("failed to remove sandbox container", "container_id", containerID, "error", err)
	}
}

// Close closes the Docker client.
func (e *DockerExecutor) Close() error {
	return e.cli.Close()
}

func (e *DockerExecutor) ensureImage(ctx context.Context, img string) error {
	_, err := e.cli.ImageInspect(ctx, img)
	if err == nil {
		return nil // Already present
	}

	reader, err := e.cli.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", img, err)
	}
	defer reader.Close()
	// Drain the reader to complete the pull
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

func caseInputFile(idx int) string {
	return fmt.Sprintf("case_%d.in", idx)
}

// normalizeOutput trims trailing whitespace per line and the final newline,
// so cosmetic differences do not fail a case.
func normalizeOutput(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

func firstLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// demuxOutput separates Docker multiplexed stdout/stderr streams.
// Docker stream protocol uses 8-byte headers: [type][0][0][0][size1][size2][size3][size4]
// type: 1=stdout, 2=stderr
func demuxOutput(data []byte) (stdout, stderr string) {
	var outBuf, errBuf strings.Builder

	for len(data) >= 8 {
		streamType := data[0]
		size := int(data[4])<<24 | int(data[5])<<16 | int(data[6])<<8 | int(data[7])
		data = data[8:]

		if size > len(data) {
			size = len(data)
		}

		chunk := string(data[:size])
		data = data[size:]

		switch streamType {
		case 1:
			outBuf.WriteString(chunk)
		case 2:
			errBuf.WriteString(chunk)
		}
	}

	// If no headers were found, treat entire output as stdout
	if outBuf.Len() == 0 && errBuf.Len() == 0 && len(data) > 0 {
		return string(data), ""
	}

	return outBuf.String(), errBuf.String()
}
