// File: internal/driver/launcher.go
// Description: Starts a local chromedriver service and supervises it until
// the caller's context ends.

package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/chromelink/internal/config"
	"github.com/xkilldash9x/chromelink/internal/webdriver"
)

// Replaced in tests.
var execCommandContext = exec.CommandContext

const pollInterval = 200 * time.Millisecond

// ReadyFunc runs once the service answers /status as ready. Returning an
// error stops the service.
type ReadyFunc func(ctx context.Context, client *webdriver.Client) error

// Launcher runs a chromedriver binary.
type Launcher struct {
	cfg    config.DriverConfig
	wd     config.WebDriverConfig
	logger *zap.Logger

	// Stdout and Stderr receive the driver's own output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer
}

func NewLauncher(cfg config.DriverConfig, wd config.WebDriverConfig, logger *zap.Logger) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{cfg: cfg, wd: wd, logger: logger.Named("driver")}
}

// URL is where the service listens once started.
func (l *Launcher) URL() string {
	return "http://127.0.0.1:" + strconv.Itoa(l.cfg.Port)
}

// Args builds the command line passed to the binary. An empty AllowedIPs
// still emits the flag, which chromedriver reads as "local connections only".
func (l *Launcher) Args() []string {
	args := []string{
		"--port=" + strconv.Itoa(l.cfg.Port),
		"--allowed-ips=" + l.cfg.AllowedIPs,
	}
	return append(args, l.cfg.Args...)
}

// Run starts the service, waits for it to become ready, hands a client to
// ready and then blocks until ctx is done or the process exits. The process
// is killed once ready has returned. Cancelling ctx is the normal way to stop
// it and is not reported as an error.
func (l *Launcher) Run(ctx context.Context, ready ReadyFunc) error {
	if l.cfg.Port <= 0 || l.cfg.Port > 65535 {
		return fmt.Errorf("invalid driver port %d", l.cfg.Port)
	}
	client, err := webdriver.NewClient(l.URL(), l.wd, l.logger)
	if err != nil {
		return err
	}
	defer client.Close()

	// The process outlives ctx until the ready callback has returned, so a
	// browser session can still be quit after an interrupt.
	procCtx, stopProc := context.WithCancel(context.WithoutCancel(ctx))
	defer stopProc()

	cmd := execCommandContext(procCtx, l.cfg.Path, l.Args()...)
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", l.cfg.Path, err)
	}
	l.logger.Info("Started chromedriver.", zap.String("path", l.cfg.Path), zap.Int("pid", cmd.Process.Pid), zap.Strings("args", l.Args()))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := cmd.Wait()
		if procCtx.Err() != nil {
			// We killed it.
			return nil
		}
		if err != nil {
			return fmt.Errorf("chromedriver exited: %w", err)
		}
		return errors.New("chromedriver exited unexpectedly")
	})

	g.Go(func() error {
		defer stopProc()

		if err := l.waitReady(gctx, client); err != nil {
			return err
		}
		l.logger.Info("Chromedriver is ready.", zap.String("url", l.URL()))
		if ready != nil {
			if err := ready(gctx, client); err != nil {
				return err
			}
		}
		<-gctx.Done()
		return nil
	})

	err = g.Wait()
	if err == nil || (ctx.Err() != nil && errors.Is(err, ctx.Err())) {
		l.logger.Info("Chromedriver stopped.")
		return nil
	}
	return err
}

// waitReady polls /status until the service reports ready or StartTimeout
// elapses.
func (l *Launcher) waitReady(ctx context.Context, client *webdriver.Client) error {
	timeout := l.cfg.StartTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		st, err := client.Status(ctx)
		switch {
		case err == nil && st.Ready:
			return nil
		case err == nil:
			lastErr = fmt.Errorf("service not ready: %s", st.Message)
		case ctx.Err() == nil:
			lastErr = err
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && lastErr != nil {
				return fmt.Errorf("chromedriver did not become ready within %s: %w", timeout, lastErr)
			}
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("chromedriver did not become ready within %s", timeout)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
