package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"text/template"

	"github.com/spf13/cobra"
)

const (
	launchdLabel = "com.herald.gateway"
	systemdUnit  = "herald.service"
)

// serviceSpec is everything a service template needs to run the gateway.
type serviceSpec struct {
	Label   string
	Exec    string
	Config  string
	Log     string
	ErrLog  string
	Path    string
	Start   []string
	Restart string
}

func installDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the Herald gateway as a user service (launchd/systemd)",
		RunE: func(cmd *cobra.Command, args []string) error {
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("cannot determine home directory: %w", err)
			}
			spec, tmpl, err := serviceFor(runtime.GOOS, home, execPath, resolveConfigPath())
			if err != nil {
				return err
			}
			body, err := renderService(tmpl, spec)
			if err != nil {
				return err
			}
			if spec.Log != "" {
				if err := os.MkdirAll(filepath.Dir(spec.Log), 0o755); err != nil {
					return fmt.Errorf("create log directory: %w", err)
				}
			}
			if err := os.MkdirAll(filepath.Dir(spec.Path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(spec.Path, body, 0o644); err != nil {
				return err
			}

			fmt.Printf("Daemon installed: %s\n", spec.Path)
			for _, line := range spec.Start {
				fmt.Println(line)
			}
			return nil
		},
	}
}

func uninstallDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the Herald user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("cannot determine home directory: %w", err)
			}
			spec, _, err := serviceFor(runtime.GOOS, home, "", "")
			if err != nil {
				return err
			}
			if err := os.Remove(spec.Path); err != nil {
				return fmt.Errorf("remove %s: %w", spec.Path, err)
			}
			fmt.Printf("Daemon uninstalled: %s\n", spec.Path)
			return nil
		},
	}
}

// serviceFor returns the service spec and template for goos.
func serviceFor(goos, home, execPath, cfgPath string) (serviceSpec, *template.Template, error) {
	switch goos {
	case "darwin":
		path := filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist")
		return serviceSpec{
			Label:  launchdLabel,
			Exec:   execPath,
			Config: cfgPath,
			Log:    filepath.Join(home, ".herald", "logs", "herald.log"),
			ErrLog: filepath.Join(home, ".herald", "logs", "herald-error.log"),
			Path:   path,
			Start: []string{
				"To start: launchctl load " + path,
				"To stop:  launchctl unload " + path,
			},
		}, launchdTemplate, nil
	case "linux":
		return serviceSpec{
			Label:   systemdUnit,
			Exec:    execPath,
			Config:  cfgPath,
			Path:    filepath.Join(home, ".config", "systemd", "user", systemdUnit),
			Restart: "on-failure",
			Start: []string{
				"To start:  systemctl --user start herald",
				"To enable: systemctl --user enable herald",
				"To stop:   systemctl --user stop herald",
			},
		}, systemdTemplate, nil
	default:
		return serviceSpec{}, nil, fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", goos)
	}
}

func renderService(tmpl *template.Template, spec serviceSpec) ([]byte, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, spec); err != nil {
		return nil, fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	return buf.Bytes(), nil
}

var launchdTemplate = template.Must(template.New("launchd").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.Exec}}</string>
        <string>gateway</string>
        <string>--config</string>
        <string>{{.Config}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{.Log}}</string>
    <key>StandardErrorPath</key>
    <string>{{.ErrLog}}</string>
</dict>
</plist>
`))

var systemdTemplate = template.Must(template.New("systemd").Parse(`[Unit]
Description=Herald social agent gateway
After=network-online.target

[Service]
Type=simple
ExecStart={{.Exec}} gateway --config {{.Config}}
Restart={{.Restart}}
RestartSec=5

[Install]
WantedBy=default.target
`))
