package startup

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Service describes how systemd should run the controller.
type Service struct {
	UnitPath   string
	User       string
	WorkDir    string
	Binary     string
	ConfigFile string
	DBPath     string
}

// Unit renders the systemd unit file for s.
func (s Service) Unit() string {
	args := []string{s.Binary}
	if s.ConfigFile != "" {
		args = append(args, "-config-file", s.ConfigFile)
	}
	if s.DBPath != "" {
		args = append(args, "-db", s.DBPath)
	}

	return fmt.Sprintf(`[Unit]
Description=Purifier automation controller
Wants=network-online.target
After=network-online.target

[Service]
Type=simple
User=%s
WorkingDirectory=%s
ExecStart=%s
Restart=on-failure
RestartSec=5s

[Install]
WantedBy=multi-user.target
`, s.User, s.WorkDir, strings.Join(args, " "))
}

func (s Service) validate() error {
	var missing []string
	if s.UnitPath == "" {
		missing = append(missing, "unit path")
	}
	if s.User == "" {
		missing = append(missing, "user")
	}
	if s.WorkDir == "" {
		missing = append(missing, "working directory")
	}
	if s.Binary == "" {
		missing = append(missing, "binary")
	}
	if len(missing) > 0 {
		return fmt.Errorf("service definition missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// InstallService writes the unit file. It does not enable it.
func InstallService(s Service) error {
	if err := s.validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.UnitPath), 0755); err != nil {
		return fmt.Errorf("create unit directory: %w", err)
	}
	return os.WriteFile(s.UnitPath, []byte(s.Unit()), 0644)
}

var runCommand = func(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// EnableService reloads systemd and enables the unit at boot.
func EnableService(s Service) error {
	unit := filepath.Base(s.UnitPath)
	if err := runCommand("systemctl", "daemon-reload"); err != nil {
		return fmt.Errorf("daemon-reload: %w", err)
	}
	if err := runCommand("systemctl", "enable", "--now", unit); err != nil {
		return fmt.Errorf("enable %s: %w", unit, err)
	}
	return nil
}
