// Package provision self-installs the drive mapper when it is executed under
// the SYSTEM account: the binary and config are persisted to a fixed
// location, a hidden-window launcher is generated, and a scheduled task is
// registered to re-invoke the mapper per-user at logon and on network state
// changes.
package provision

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fleetline/agent/internal/config"
	"github.com/fleetline/agent/internal/logging"
	"github.com/fleetline/agent/internal/schedtask"
)

var log = logging.L("provision")

const (
	binaryName   = "fleetline.exe"
	launcherName = "fleetline-launch.vbs"
	configName   = "fleetline.yaml"
	logName      = "fleetline.log"
)

// LauncherScript renders the hidden-window launcher. Running the mapper via
// wscript keeps a console window from flashing at every logon; window style
// 0 hides the child as well.
func LauncherScript(exePath, configPath string) string {
	var b strings.Builder
	b.WriteString("Set shell = CreateObject(\"WScript.Shell\")\r\n")
	fmt.Fprintf(&b, "shell.Run \"\"\"%s\"\" map-drives --config \"\"%s\"\"\", 0, False\r\n", exePath, configPath)
	return b.String()
}

// Run installs the mapper and registers its scheduled task. Registration
// failure is terminal for this phase; the caller reports it as such.
func Run(cfg *config.Config, exePath string, dryRun bool) error {
	dir := cfg.Task.InstallDir
	installedExe := filepath.Join(dir, binaryName)
	launcherPath := filepath.Join(dir, launcherName)
	configPath := filepath.Join(dir, configName)

	if dryRun {
		log.Info("dry-run: would install mapper and register scheduled task",
			"installDir", dir, "task", cfg.Task.Name)
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create install dir: %w", err)
	}

	if err := installBinary(exePath, installedExe); err != nil {
		return err
	}

	if err := os.WriteFile(launcherPath, []byte(LauncherScript(installedExe, configPath)), 0o644); err != nil {
		return fmt.Errorf("write launcher: %w", err)
	}

	// The task runs the mapper with a hidden window, so the persisted
	// config routes its logs to a rotated file in the install dir.
	saved := *cfg
	if saved.LogFile == "" {
		saved.LogFile = filepath.Join(dir, logName)
	}
	if err := config.Save(&saved, configPath); err != nil {
		return fmt.Errorf("persist config: %w", err)
	}

	log.Info("mapper installed", "binary", installedExe, "launcher", launcherPath)

	def := schedtask.Definition{
		Name:        cfg.Task.Name,
		Description: "Maps network drives at user logon and on network state changes.",
		Command:     "wscript.exe",
		Arguments:   fmt.Sprintf("%q", launcherPath),
		WorkingDir:  dir,
		EventSubscriptions: []string{
			schedtask.NetworkProfileSubscription(schedtask.EventNetworkConnected),
			schedtask.NetworkProfileSubscription(schedtask.EventNetworkStateChange),
		},
	}
	return schedtask.Register(def)
}

// installBinary copies the running executable into place. A copy onto itself
// (already running from the install dir) is skipped.
func installBinary(src, dst string) error {
	if strings.EqualFold(filepath.Clean(src), filepath.Clean(dst)) {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source binary: %w", err)
	}
	defer in.Close()

	tmp := dst + ".new"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("create binary copy: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("copy binary: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("flush binary copy: %w", err)
	}

	// A running task may hold the old binary open; renaming over it works
	// where an in-place write would not.
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("install binary: %w", err)
	}
	return nil
}
