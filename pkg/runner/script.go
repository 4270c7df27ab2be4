package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/opsforge/opsforge/pkg/inventory"
	"github.com/opsforge/opsforge/pkg/stores"
)

// ScriptResult is the outcome of one interpreter run.
type ScriptResult struct {
	Success    bool     `json:"success"`
	ReturnCode int      `json:"return_code"`
	Logs       []string `json:"logs"`
	Summary    Summary  `json:"summary"`
}

// InterpreterAvailable reports whether the configured automation interpreter
// can be found on PATH.
func (r *Runner) InterpreterAvailable() error {
	if _, err := exec.LookPath(r.cfg.InterpreterBin); err != nil {
		return fmt.Errorf("interpreter %q not found: %w", r.cfg.InterpreterBin, err)
	}
	return nil
}

// ExecuteScript writes the script and a generated inventory to temp files,
// runs the interpreter as a subprocess, and streams its combined output line
// by line. The run is killed when timeout elapses. The returned result is
// non-nil whenever the subprocess started, even on failure.
func (r *Runner) ExecuteScript(ctx context.Context, content string, hosts []*stores.Host, timeout time.Duration) (*ScriptResult, error) {
	if content == "" {
		return nil, fmt.Errorf("runner: script content is empty")
	}
	if err := r.InterpreterAvailable(); err != nil {
		return nil, err
	}

	scriptPath, cleanupScript, err := r.writeScript(content)
	if err != nil {
		return nil, err
	}
	defer cleanupScript()

	invPath, cleanupInv, err := inventory.Write(r.cfg.TempDir, hosts)
	if err != nil {
		return nil, err
	}
	defer cleanupInv()

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, r.cfg.InterpreterBin, "-i", invPath, scriptPath)
	cmd.Env = append(os.Environ(), "ANSIBLE_HOST_KEY_CHECKING=False")
	// orphaned children may hold the output pipe open after a kill
	cmd.WaitDelay = 5 * time.Second

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	var (
		mu   sync.Mutex
		logs []string
	)
	var readerWg sync.WaitGroup
	readerWg.Add(1)
	go func() {
		defer readerWg.Done()
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			mu.Lock()
			logs = append(logs, scanner.Text())
			mu.Unlock()
		}
	}()

	r.log.Debug().Str("interpreter", r.cfg.InterpreterBin).Str("inventory", invPath).Msg("starting script run")

	if err := cmd.Start(); err != nil {
		pw.Close()
		readerWg.Wait()
		return nil, fmt.Errorf("failed to start interpreter: %w", err)
	}

	waitErr := cmd.Wait()
	pw.Close()
	readerWg.Wait()

	mu.Lock()
	captured := append([]string(nil), logs...)
	mu.Unlock()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		captured = append(captured, "Execution timed out.")
	}

	rc := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			rc = exitErr.ExitCode()
		} else {
			rc = -1
			captured = append(captured, fmt.Sprintf("Execution error: %v", waitErr))
		}
	}

	result := &ScriptResult{
		Success:    waitErr == nil && runCtx.Err() == nil,
		ReturnCode: rc,
		Logs:       captured,
		Summary:    ParseTranscript(captured),
	}
	return result, nil
}

func (r *Runner) writeScript(content string) (string, func(), error) {
	f, err := os.CreateTemp(r.cfg.TempDir, "opsforge_script_*.yml")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create script file: %w", err)
	}
	path := f.Name()
	cleanup := func() { os.Remove(path) }

	if _, err := f.WriteString(content); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to write script file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to close script file: %w", err)
	}
	return path, cleanup, nil
}
