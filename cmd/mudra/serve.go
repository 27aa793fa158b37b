package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"

	"github.com/gonuts/commander"
	"github.com/gonuts/flag"

	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/tray"
)

func serveCmd() *commander.Command {
	var (
		opts     options
		withTray bool
	)

	cmd := &commander.Command{
		UsageLine: "serve [options]",
		Short:     "serve the browser UI, API and live events",
		Long: `
serve opens the camera, loads the feature extractor and serves the capture,
training and game UI over HTTP. Events stream to browsers over a websocket
at /api/events.

ex:
 $ mudra serve -listen :8080 -tray
`,
		Flag: *flag.NewFlagSet("mudra-serve", flag.ExitOnError),
	}
	opts.register(&cmd.Flag)
	cmd.Flag.StringVar(&opts.overrides.Listen, "listen", "", "HTTP listen address")
	cmd.Flag.StringVar(&opts.overrides.StaticDir, "web", "", "directory of static web files")
	cmd.Flag.BoolVar(&withTray, "tray", false, "show a system tray menu")

	cmd.Run = func(cmd *commander.Command, args []string) error {
		cfg, err := opts.load()
		if err != nil {
			return err
		}
		if cfg.StaticDir == "" {
			cfg.StaticDir = findWebDir(cfg.DataDir)
		}

		e, err := newEnv(cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx, stop := signalContext()
		defer stop()

		log.Printf("Waiting for camera %d and feature extractor", cfg.CameraID)
		if err := e.session.Setup(ctx); err != nil {
			return fmt.Errorf("setup: %w", err)
		}

		srv := server.New(server.Config{
			StaticDir: cfg.StaticDir,
			Store:     e.store,
			Session:   e.session,
			Camera:    e.session.Source().Camera(),
			Bus:       e.session.Bus(),
		})
		if cfg.StaticDir != "" {
			log.Printf("Serving static files from: %s", cfg.StaticDir)
		}
		log.Printf("Starting server on %s", cfg.Listen)

		if !withTray {
			return srv.ListenAndServe(ctx, cfg.Listen)
		}

		errc := make(chan error, 1)
		go func() {
			errc <- srv.ListenAndServe(ctx, cfg.Listen)
		}()

		t := tray.New()
		e.session.Bus().Subscribe(t)
		t.OnToggle(func(playing bool) error {
			if !playing {
				e.session.StopGame()
				return nil
			}
			if err := e.session.Play(context.WithoutCancel(ctx)); err != nil {
				log.Printf("Cannot start game: %v", err)
				return err
			}
			return nil
		})
		t.OnOpen(func() {
			openBrowser(localURL(cfg.Listen))
		})
		t.OnQuit(stop)

		go func() {
			<-ctx.Done()
			t.Quit()
		}()

		// systray needs the main goroutine on macOS.
		t.Run()
		stop()
		return <-errc
	}

	return cmd
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and <dataDir>/web.
// Returns the first existing directory or empty string if none found.
func findWebDir(dataDir string) string {
	candidates := []string{"web", "../web", "../../web", filepath.Join(dataDir, "web")}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}

func localURL(listen string) string {
	if strings.HasPrefix(listen, ":") {
		return "http://localhost" + listen
	}
	return "http://" + listen
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Printf("Cannot open browser: %v", err)
	}
}
