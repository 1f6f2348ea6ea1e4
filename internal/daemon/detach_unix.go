//go:build unix

package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// StageEnv carries the detach stage across re-executions.
const StageEnv = "NEXBOTD_DETACH_STAGE"

// Detacher turns the current process into a daemon.
type Detacher interface {
	// Detach returns nil in the process that continues as the daemon and
	// ErrDetachedParent in every process that must exit.
	Detach(cfg Config) error
}

// ProcessDetacher detaches by re-executing the binary. A Go process cannot
// fork safely, so the classic double fork becomes two re-execs:
//
//	stage 0: start stage 1 in a new session with stdio redirected, reap it
//	stage 1: session leader; start stage 2 and exit at once
//	stage 2: not a session leader, so it can never acquire a controlling
//	         terminal; apply umask and working directory, continue as daemon
//
// Without DoubleFork the umask, working directory and optional stdio
// redirection are applied to the current process.
type ProcessDetacher struct {
	Executable string   // defaults to os.Executable()
	Args       []string // defaults to os.Args
	Env        []string // defaults to os.Environ()
}

// Detach implements Detacher.
func (p ProcessDetacher) Detach(cfg Config) error {
	if !cfg.DoubleFork {
		return finalize(cfg, cfg.RedirectStdio)
	}

	switch os.Getenv(StageEnv) {
	case "":
		return p.stage0(cfg)
	case "1":
		return p.stage1()
	case "2":
		os.Unsetenv(StageEnv)
		// stdio was already redirected by stage 0.
		return finalize(cfg, false)
	default:
		return fmt.Errorf("%w: unknown detach stage %q", ErrDaemonize, os.Getenv(StageEnv))
	}
}

func (p ProcessDetacher) stage0(cfg Config) error {
	stdin, err := os.Open(os.DevNull)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrDaemonize, os.DevNull, err)
	}
	defer stdin.Close()

	stdout, stderr := os.Stdout, os.Stderr
	if cfg.RedirectStdio {
		out, err := openStdioTarget(cfg.LogFile)
		if err != nil {
			return err
		}
		defer out.Close()
		stdout, stderr = out, out
	}

	cmd, err := p.command("1")
	if err != nil {
		return err
	}
	cmd.Stdin, cmd.Stdout, cmd.Stderr = stdin, stdout, stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: intermediate process: %w", ErrDaemonize, err)
	}
	return ErrDetachedParent
}

func (p ProcessDetacher) stage1() error {
	cmd, err := p.command("2")
	if err != nil {
		return err
	}
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start daemon process: %w", ErrDaemonize, err)
	}
	_ = cmd.Process.Release()
	return ErrDetachedParent
}

func (p ProcessDetacher) command(stage string) (*exec.Cmd, error) {
	exe := p.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return nil, fmt.Errorf("%w: resolve executable: %w", ErrDaemonize, err)
		}
	}
	args := p.Args
	if args == nil {
		args = os.Args
	}
	env := p.Env
	if env == nil {
		env = os.Environ()
	}

	cmd := exec.Command(exe, args[1:]...)
	cmd.Env = append(withoutStage(env), StageEnv+"="+stage)
	return cmd, nil
}

func withoutStage(env []string) []string {
	out := make([]string, 0, len(env)+1)
	prefix := StageEnv + "="
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// finalize applies umask, working directory and, when redirect is set,
// points fds 0-2 at /dev/null or the log file.
func finalize(cfg Config, redirect bool) error {
	unix.Umask(cfg.Umask)

	if cfg.WorkingDir != "" {
		if err := os.Chdir(cfg.WorkingDir); err != nil {
			return fmt.Errorf("%w: chdir %s: %w", ErrDaemonize, cfg.WorkingDir, err)
		}
	}

	if !redirect {
		return nil
	}

	null, err := os.Open(os.DevNull)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrDaemonize, os.DevNull, err)
	}
	defer null.Close()

	out, err := openStdioTarget(cfg.LogFile)
	if err != nil {
		return err
	}
	defer out.Close()

	for _, dup := range []struct {
		from *os.File
		to   int
	}{{null, 0}, {out, 1}, {out, 2}} {
		if err := unix.Dup2(int(dup.from.Fd()), dup.to); err != nil {
			return fmt.Errorf("%w: redirect fd %d: %w", ErrDaemonize, dup.to, err)
		}
	}
	return nil
}

// openStdioTarget opens the log file for appending, or /dev/null when no log
// file is configured.
func openStdioTarget(logFile string) (*os.File, error) {
	path := logFile
	if path == "" {
		path = os.DevNull
	} else if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("%w: create log directory: %w", ErrDaemonize, err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrDaemonize, path, err)
	}
	return f, nil
}
