package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Process supervises one launched Chromium child: the two pipe pairs
// handed to the Transport, the user-data-dir lifecycle, and the
// grace-period SIGTERM→SIGKILL escalation from spec §4.3.
type Process struct {
	cmd *exec.Cmd
	log logrus.FieldLogger

	// ParentRead and ParentWrite are the parent-side pipe ends, handed to
	// the Transport after Launch returns: the child reads from its end of
	// ParentWrite (inherited as fd 3) and writes to its end of ParentRead
	// (inherited as fd 4).
	ParentRead  *os.File
	ParentWrite *os.File

	dataDir *dataDir
	config  Config

	exited   chan struct{}
	exitOnce sync.Once
	exitErr  error

	killOnce sync.Once
}

// Launch starts Chromium per spec §4.3: allocates the user data dir on fs,
// constructs the two pipe pairs, inherits them on fds 3 (child read) and 4
// (child write), configures parent-death linkage, and starts the process.
// On any failure it cleans up everything it already created.
func Launch(ctx context.Context, cfg Config, fs afero.Fs, log logrus.FieldLogger) (p *Process, err error) {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logrus.StandardLogger()
	}

	dd, err := newDataDir(fs, cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			dd.cleanup()
		}
	}()

	// Pipe for driver → child (the child reads this on fd 3).
	childRead, parentWrite, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("supervisor: allocating inbound pipe: %w", err)
	}
	// Pipe for child → driver (the child writes this on fd 4).
	parentRead, childWrite, err := os.Pipe()
	if err != nil {
		childRead.Close()
		parentWrite.Close()
		return nil, fmt.Errorf("supervisor: allocating outbound pipe: %w", err)
	}
	defer func() {
		childRead.Close()
		childWrite.Close()
		if err != nil {
			parentRead.Close()
			parentWrite.Close()
		}
	}()

	args := buildArgs(cfg, dd.path)
	cmd := exec.CommandContext(ctx, cfg.ChromePath, args...)
	cmd.Env = buildEnv(cfg)
	cmd.ExtraFiles = []*os.File{childRead, childWrite} // fd 3, fd 4
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	configureParentDeathSignal(cmd)

	log.WithFields(logrus.Fields{
		"chrome_path":   cfg.ChromePath,
		"user_data_dir": dd.path,
		"args":          args,
	}).Info("supervisor: launching chromium")

	if err = cmd.Start(); err != nil {
		return nil, fmt.Errorf("supervisor: starting chromium: %w", err)
	}

	p = &Process{
		cmd:         cmd,
		log:         log.WithField("pid", cmd.Process.Pid),
		ParentRead:  parentRead,
		ParentWrite: parentWrite,
		dataDir:     dd,
		config:      cfg,
		exited:      make(chan struct{}),
	}
	go p.supervise()
	return p, nil
}

// supervise waits for the child to exit and records its outcome. This is
// the supervisor task from spec §4.3's "Supervision" paragraph; the
// Browser wires Exited() to close the Transport.
func (p *Process) supervise() {
	err := p.cmd.Wait()
	p.exitOnce.Do(func() {
		p.exitErr = err
		close(p.exited)
	})
	if err != nil {
		p.log.WithError(err).Warn("supervisor: chromium process exited with an error")
	} else {
		p.log.Info("supervisor: chromium process exited")
	}
}

// Exited returns a channel closed once the child has exited. ExitErr then
// reports the exit error observed at that point (nil if the process exited
// with status 0).
func (p *Process) Exited() <-chan struct{} { return p.exited }

// ExitErr returns the error recorded by cmd.Wait, valid only after Exited
// has closed.
func (p *Process) ExitErr() error { return p.exitErr }

// Pid returns the child's process id.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Terminate implements the grace-period escalation from spec §4.3: used
// when the transport closes (or the caller asked to close) before the
// child has exited on its own. It sends SIGTERM, waits up to TermGrace,
// and if the child is still alive sends SIGKILL and waits up to KillGrace.
// It returns once the child has exited or both grace periods have
// elapsed; it never blocks the caller for longer than TermGrace+KillGrace.
func (p *Process) Terminate() {
	p.killOnce.Do(func() {
		select {
		case <-p.exited:
			return
		default:
		}
		p.log.Debug("supervisor: sending SIGTERM")
		p.cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-p.exited:
			return
		case <-time.After(p.config.TermGrace):
		}
		p.log.Warn("supervisor: SIGTERM grace period elapsed, sending SIGKILL")
		p.cmd.Process.Kill()
		select {
		case <-p.exited:
		case <-time.After(p.config.KillGrace):
			p.log.Error("supervisor: child did not exit after SIGKILL")
		}
	})
}

// Kill sends SIGKILL immediately, skipping the SIGTERM grace period.
// Used by the forceful Browser.Kill path (see SPEC_FULL.md's
// Close/Kill split), as opposed to Terminate's graceful escalation.
func (p *Process) Kill() {
	p.killOnce.Do(func() {
		select {
		case <-p.exited:
			return
		default:
		}
		p.log.Warn("supervisor: force-killing child (SIGKILL)")
		p.cmd.Process.Kill()
		select {
		case <-p.exited:
		case <-time.After(p.config.KillGrace):
			p.log.Error("supervisor: child did not exit after SIGKILL")
		}
	})
}

// Cleanup removes the user data directory per the CleanDataDir policy from
// spec §4.3. It is idempotent with respect to the filesystem (RemoveAll on
// an already-removed path is a no-op) but not otherwise guarded, since the
// Browser calls it exactly once from close().
func (p *Process) Cleanup() error {
	return p.dataDir.cleanup()
}
