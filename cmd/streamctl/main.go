package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/wachiwi/rpi-webstream/pkg/control"
	"github.com/wachiwi/rpi-webstream/pkg/logger"
	"github.com/wachiwi/rpi-webstream/pkg/supervisor"
	"github.com/wachiwi/rpi-webstream/pkg/telemetry"
	"github.com/wachiwi/rpi-webstream/pkg/unit"
	"golang.org/x/sync/errgroup"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	logger.Setup()
	gin.SetMode(gin.ReleaseMode)

	args := os.Args[1:]
	if len(args) > 0 && args[0] == "unit" {
		if err := runUnit(args[1:], os.Stdout); err != nil && !errors.Is(err, flag.ErrHelp) {
			logger.Fatal("Failed to generate unit", "error", err)
		}
		return
	}
	if len(args) > 0 && args[0] == "serve" {
		args = args[1:]
	}
	if err := runServe(args); err != nil && !errors.Is(err, flag.ErrHelp) {
		logger.Fatal("streamctl stopped", "error", err)
	}
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("streamctl", flag.ContinueOnError)
	appsPath := fs.String("apps", envOr("STREAMCTL_APPS", "/etc/streamctl/apps.yaml"), "YAML file with the supervised apps")
	addr := fs.String("addr", envOr("STREAMCTL_ADDR", ":8081"), "Listen address of the control API")
	reconcile := fs.String("reconcile", envOr("STREAMCTL_RECONCILE", "@every 1m"), "Cron spec for logging app states")
	grace := fs.Duration("grace", supervisor.DefaultGrace, "How long a launched app must stay up")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// --- Authentication Setup ---
	user := os.Getenv("STREAMCTL_USER")
	password := os.Getenv("STREAMCTL_PASSWORD")
	if user == "" || password == "" {
		return errors.New("STREAMCTL_USER and STREAMCTL_PASSWORD environment variables must be set")
	}

	apps, err := supervisor.LoadApps(*appsPath)
	if err != nil {
		return err
	}
	sup := supervisor.New(apps)
	sup.Grace = *grace
	defer sup.StopAll()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, "streamctl")
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Error("Error shutting down telemetry", "error", err)
		}
	}()

	router, err := control.NewRouter(control.Options{
		User:          user,
		Password:      password,
		SessionSecret: []byte(os.Getenv("STREAMCTL_SESSION_SECRET")),
	}, sup)
	if err != nil {
		return err
	}

	c := cron.New(cron.WithLogger(&logger.CronLogger{Logger: slog.Default()}))
	if _, err := c.AddFunc(*reconcile, sup.Reconcile); err != nil {
		return fmt.Errorf("invalid reconcile spec %q: %w", *reconcile, err)
	}
	c.Start()
	defer c.Stop()

	srv := &http.Server{Addr: *addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Control API is running", "addr", *addr, "apps", len(apps))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runUnit(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("streamctl unit", flag.ContinueOnError)
	execLine := fs.String("exec", "", "Command line for ExecStart, e.g. \"/usr/local/bin/webstream -rotation 180\"")
	description := fs.String("description", "", "Unit description")
	user := fs.String("user", "", "User to run the service as")
	workdir := fs.String("workdir", "", "Working directory")
	var env envFlag
	fs.Var(&env, "env", "KEY=VALUE environment entry, repeatable")
	output := fs.String("o", "", "Write the unit to this path instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	svc := unit.Service{
		Description: *description,
		Exec:        strings.Fields(*execLine),
		User:        *user,
		WorkingDir:  *workdir,
		Environment: env,
	}

	if *output == "" {
		return unit.Render(stdout, svc)
	}
	f, err := os.Create(*output)
	if err != nil {
		return err
	}
	if err := unit.Render(f, svc); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	slog.Info("File successfully created", "path", *output)
	return nil
}

// envFlag collects repeated -env KEY=VALUE flags.
type envFlag map[string]string

func (e *envFlag) String() string {
	if e == nil {
		return ""
	}
	pairs := make([]string, 0, len(*e))
	for k, v := range *e {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

func (e *envFlag) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return fmt.Errorf("expected KEY=VALUE, got %q", s)
	}
	if *e == nil {
		*e = make(envFlag)
	}
	(*e)[k] = v
	return nil
}
