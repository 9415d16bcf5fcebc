// Package sandbox runs untrusted submissions inside locked-down containers:
// no network, no capabilities, capped memory, pids and CPU, read-only root
// filesystem and a hard wall-clock deadline.
package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/talentgrid/assessment-backend/internal/evaluator"
	"github.com/talentgrid/assessment-backend/internal/model"
)

const (
	DefaultPythonImage = "python:3.12-alpine"

	// startupGrace covers interpreter start and harness setup on top of the
	// per-case budget.
	startupGrace = 5 * time.Second
	maxStderr    = 2048
)

// Config bounds one sandboxed evaluation.
type Config struct {
	Image       string
	CaseTimeout time.Duration
	MemoryMB    int64
	PidsLimit   int64
	CPUQuota    int64 // in units of 1/100000 CPU per 100ms period
}

func (c *Config) withDefaults() {
	if c.Image == "" {
		c.Image = DefaultPythonImage
	}
	if c.CaseTimeout <= 0 {
		c.CaseTimeout = 2 * time.Second
	}
	if c.MemoryMB <= 0 {
		c.MemoryMB = 128
	}
	if c.PidsLimit <= 0 {
		c.PidsLimit = 16
	}
	if c.CPUQuota <= 0 {
		c.CPUQuota = 50_000
	}
}

// PythonRunner evaluates Python submissions in a throwaway container. It
// implements evaluator.Runner.
type PythonRunner struct {
	engine ContainerEngine
	cfg    Config
	log    zerolog.Logger

	imageMu    sync.Mutex
	imageReady bool
}

// NewPythonRunner creates a PythonRunner backed by engine.
func NewPythonRunner(engine ContainerEngine, cfg Config, log zerolog.Logger) *PythonRunner {
	cfg.withDefaults()
	return &PythonRunner{
		engine: engine,
		cfg:    cfg,
		log:    log.With().Str("component", "python_sandbox").Logger(),
	}
}

// Run implements evaluator.Runner.
func (r *PythonRunner) Run(ctx context.Context, source string, cases []model.TestCase) []model.Verdict {
	nonce := uuid.NewString()
	input, err := encodeHarnessInput(nonce, source, cases, r.cfg.CaseTimeout.Seconds())
	if err != nil {
		return evaluator.FailAll(cases, model.VerdictInternalError, "cannot encode test input")
	}

	if err := r.ensureImage(ctx); err != nil {
		r.log.Error().Err(err).Str("image", r.cfg.Image).Msg("Sandbox image unavailable")
		return evaluator.FailAll(cases, model.VerdictInternalError, "sandbox unavailable")
	}

	deadline := startupGrace + time.Duration(len(cases))*r.cfg.CaseTimeout
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	name := "eval-" + uuid.NewString()
	containerID, err := r.engine.CreateContainer(runCtx, r.containerConfig(), r.hostConfig(), name)
	if err != nil {
		r.log.Error().Err(err).Msg("Create container failed")
		return evaluator.FailAll(cases, model.VerdictInternalError, "sandbox unavailable")
	}

	defer func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cleanupCancel()
		if err := r.engine.RemoveContainer(cleanupCtx, containerID); err != nil {
			r.log.Warn().Err(err).Str("container_id", containerID).Msg("Remove container failed")
		}
	}()

	if err := r.engine.StartContainer(runCtx, containerID); err != nil {
		r.log.Error().Err(err).Str("container_id", containerID).Msg("Start container failed")
		return evaluator.FailAll(cases, model.VerdictInternalError, "sandbox unavailable")
	}
	if err := r.engine.WriteStdin(runCtx, containerID, input); err != nil {
		r.log.Error().Err(err).Str("container_id", containerID).Msg("Write harness input failed")
		return evaluator.FailAll(cases, model.VerdictInternalError, "sandbox unavailable")
	}

	timedOut := false
	exitCode, err := r.engine.WaitContainer(runCtx, containerID)
	if err != nil {
		if !errors.Is(err, ErrContainerTimeout) {
			r.log.Error().Err(err).Str("container_id", containerID).Msg("Wait container failed")
			return evaluator.FailAll(cases, model.VerdictInternalError, "sandbox unavailable")
		}
		timedOut = true
		killCtx, killCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = r.engine.KillContainer(killCtx, containerID)
		killCancel()
	}

	collectCtx, collectCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer collectCancel()

	stdout, stderr, err := r.engine.Logs(collectCtx, containerID)
	if err != nil {
		r.log.Error().Err(err).Str("container_id", containerID).Msg("Read container logs failed")
		return evaluator.FailAll(cases, model.VerdictInternalError, "sandbox unavailable")
	}
	oom, _ := r.engine.OOMKilled(collectCtx, containerID)

	r.log.Debug().
		Str("container_id", containerID).
		Int64("exit_code", exitCode).
		Bool("timed_out", timedOut).
		Bool("oom_killed", oom).
		Msg("Sandbox finished")

	return r.verdicts(nonce, stdout, stderr, cases, timedOut, oom)
}

// verdicts maps harness output onto test cases. Only lines carrying the run's
// nonce are read, each at most once per case index. Cases without a line are
// attributed to the reason the container stopped early.
func (r *PythonRunner) verdicts(nonce string, stdout, stderr []byte, cases []model.TestCase, timedOut, oom bool) []model.Verdict {
	prefix := []byte(nonce + " ")
	got := make([]*model.Verdict, len(cases))

	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		raw, ok := bytes.CutPrefix(scanner.Bytes(), prefix)
		if !ok {
			continue
		}
		var line harnessLine
		if err := json.Unmarshal(raw, &line); err != nil {
			continue
		}
		if line.CompileError != nil {
			return evaluator.FailAll(cases, model.VerdictCompileError, *line.CompileError)
		}
		if line.Index == nil || *line.Index < 0 || *line.Index >= len(cases) || got[*line.Index] != nil {
			continue
		}

		tc := cases[*line.Index]
		var v model.Verdict
		switch {
		case line.OK:
			v = evaluator.Judge(line.Value, tc, time.Duration(line.Ms)*time.Millisecond)
		case line.Timeout:
			v = model.FailedVerdict(model.VerdictTimeout,
				fmt.Sprintf("time limit of %s exceeded", r.cfg.CaseTimeout), tc.Expected)
		case line.OOM:
			v = model.FailedVerdict(model.VerdictResourceExceeded, line.Error, tc.Expected)
		default:
			v = model.FailedVerdict(model.VerdictRuntimeError, line.Error, tc.Expected)
		}
		got[*line.Index] = &v
	}

	status, message := model.VerdictRuntimeError, tail(stderr)
	switch {
	case oom:
		status, message = model.VerdictResourceExceeded, "memory limit of "+strconv.FormatInt(r.cfg.MemoryMB, 10)+"MB exceeded"
	case timedOut:
		status, message = model.VerdictTimeout, "sandbox deadline exceeded"
	case message == "":
		message = "process exited without a result"
	}

	out := make([]model.Verdict, len(cases))
	for i := range cases {
		if got[i] != nil {
			out[i] = *got[i]
			continue
		}
		out[i] = model.FailedVerdict(status, message, cases[i].Expected)
	}
	return out
}

func (r *PythonRunner) ensureImage(ctx context.Context) error {
	r.imageMu.Lock()
	defer r.imageMu.Unlock()
	if r.imageReady {
		return nil
	}
	if err := r.engine.EnsureImage(ctx, r.cfg.Image); err != nil {
		return err
	}
	r.imageReady = true
	return nil
}

func (r *PythonRunner) containerConfig() *container.Config {
	return &container.Config{
		Image:           r.cfg.Image,
		Cmd:             []string{"python3", "-I", "-c", pythonHarness},
		Env:             []string{"PYTHONDONTWRITEBYTECODE=1"},
		OpenStdin:       true,
		StdinOnce:       true,
		AttachStdin:     true,
		User:            "65534:65534",
		WorkingDir:      "/tmp",
		NetworkDisabled: true,
		StopSignal:      "SIGKILL",
	}
}

func (r *PythonRunner) hostConfig() *container.HostConfig {
	memBytes := r.cfg.MemoryMB * 1024 * 1024
	pids := r.cfg.PidsLimit

	return &container.HostConfig{
		AutoRemove:     false,
		NetworkMode:    container.NetworkMode("none"),
		ReadonlyRootfs: true,
		Tmpfs:          map[string]string{"/tmp": "rw,noexec,nosuid,size=16m"},
		Resources: container.Resources{
			Memory:     memBytes,
			MemorySwap: memBytes,
			PidsLimit:  &pids,
			CPUPeriod:  100_000,
			CPUQuota:   r.cfg.CPUQuota,
		},
		SecurityOpt:  []string{"no-new-privileges"},
		CgroupnsMode: container.CgroupnsModePrivate,
		IpcMode:      container.IpcMode("private"),
		CapDrop:      []string{"ALL"},
	}
}

func tail(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) > maxStderr {
		b = b[len(b)-maxStderr:]
	}
	return string(b)
}
