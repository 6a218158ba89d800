package startup

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

const DefaultUnitPath = "/etc/systemd/system/spa-controller.service"

type ServiceOptions struct {
	// UnitPath is where the unit file is written.
	UnitPath   string
	Binary     string
	ConfigFile string
	User       string
	WorkingDir string

	// Enable runs daemon-reload and enables the unit after writing it.
	Enable bool
}

// runCommand is swapped out in tests.
var runCommand = func(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func UnitFile(opts ServiceOptions) string {
	execStart := opts.Binary + " serve"
	if opts.ConfigFile != "" {
		execStart += " --config " + opts.ConfigFile
	}

	var service []string
	if opts.User != "" {
		service = append(service, "User="+opts.User)
	}
	if opts.WorkingDir != "" {
		service = append(service, "WorkingDirectory="+opts.WorkingDir)
	}

	return fmt.Sprintf(`[Unit]
Description=Spa controller relay service
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
%sExecStart=%s
Restart=on-failure
RestartSec=5s

[Install]
WantedBy=multi-user.target
`, joinLines(service), execStart)
}

// InstallService writes the systemd unit for the controller and, when asked,
// enables it.
func InstallService(opts ServiceOptions) error {
	if opts.Binary == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("locate binary: %w", err)
		}
		opts.Binary = exe
	}
	if opts.UnitPath == "" {
		opts.UnitPath = DefaultUnitPath
	}

	if err := os.WriteFile(opts.UnitPath, []byte(UnitFile(opts)), 0644); err != nil {
		return fmt.Errorf("write unit %s: %w", opts.UnitPath, err)
	}
	log.Info().Str("path", opts.UnitPath).Str("binary", opts.Binary).Msg("Wrote systemd unit")

	if !opts.Enable {
		return nil
	}
	if err := runCommand("systemctl", "daemon-reload"); err != nil {
		return fmt.Errorf("systemctl daemon-reload: %w", err)
	}
	unit := filepath.Base(opts.UnitPath)
	if err := runCommand("systemctl", "enable", "--now", unit); err != nil {
		return fmt.Errorf("systemctl enable %s: %w", unit, err)
	}
	log.Info().Str("unit", unit).Msg("Service enabled")
	return nil
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
