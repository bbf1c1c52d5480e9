package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/config"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/profile"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/tui"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/tui/client"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	flag.Parse()

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	socketPath := profile.SocketPath(name)

	if !client.Probe(socketPath, 2*time.Second) {
		fmt.Fprintf(os.Stderr, "daemon not running for profile %q, starting...\n", name)
		if err := startDaemon(name); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start daemon: %v\n", err)
			os.Exit(1)
		}
		if !client.WaitReady(socketPath, 10*time.Second) {
			fmt.Fprintf(os.Stderr, "daemon did not become ready, see %s\n", profile.LogPath(name))
			os.Exit(1)
		}
	}

	c, err := client.New(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to daemon: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	cfg, err := config.LoadOrDefault(profile.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v, using defaults\n", err)
		cfg = config.Default()
	}
	cfg.ApplyEnv()

	app := tui.NewApp(c, tui.Options{Profile: name, ChatLink: cfg.ChatLink})
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// startDaemon launches lfchatd from next to this binary, or from PATH.
func startDaemon(name string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	lfchatd := filepath.Join(filepath.Dir(executable), "lfchatd")
	if _, err := os.Stat(lfchatd); err != nil {
		lfchatd = "lfchatd"
	}

	cmd := exec.Command(lfchatd, "--profile", name)
	cmd.Stderr = os.Stderr
	return cmd.Start()
}
