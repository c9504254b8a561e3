// Package systemd renders and integrity-checks the unit file for the
// shipper daemon.
package systemd

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// UnitName is the shipper daemon's systemd unit.
const UnitName = "toolscope-ship.service"

// UnitFilePaths are the paths checked for the shipper unit file.
var UnitFilePaths = []string{
	"/etc/systemd/system/" + UnitName,
}

// Template returns the systemd unit for the shipper daemon.
func Template(binPath, configPath string) string {
	return `[Unit]
Description=toolscope telemetry shipper
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart=` + binPath + ` ship --config ` + configPath + `
Restart=on-failure
RestartSec=2
NoNewPrivileges=true
PrivateTmp=true
ProtectSystem=strict
ReadWritePaths=` + filepath.Dir(configPath) + `

[Install]
WantedBy=multi-user.target
`
}

// Install writes the shipper unit file and records its baseline hash
// in the state directory, so later integrity checks have something to
// compare against. Returns the installed path.
func Install(binPath, configPath, stateDir string) (string, error) {
	unitPath := UnitFilePaths[0]
	if err := os.WriteFile(unitPath, []byte(Template(binPath, configPath)), 0644); err != nil {
		return "", fmt.Errorf("systemd: write unit file %s: %w", unitPath, err)
	}
	if err := RecordUnitFileHash(stateDir); err != nil {
		return "", fmt.Errorf("systemd: record baseline hash: %w", err)
	}
	return unitPath, nil
}

// hashPath stores the install-time hash of the unit file.
func hashPath(stateDir string) string {
	return filepath.Join(stateDir, "unit-file.sha256")
}

// CheckUnitFileIntegrity compares the current unit file hash against
// the stored install-time hash. Returns a warning message if the unit
// file has been modified, or empty string if integrity is confirmed or
// checking is not applicable (no unit file or no stored hash).
func CheckUnitFileIntegrity(stateDir string) string {
	var unitPath string
	for _, p := range UnitFilePaths {
		if _, err := os.Stat(p); err == nil {
			unitPath = p
			break
		}
	}
	if unitPath == "" {
		return ""
	}

	stored, err := os.ReadFile(hashPath(stateDir))
	if err != nil {
		return ""
	}
	expected := strings.TrimSpace(string(stored))
	if len(expected) != 64 {
		return ""
	}

	data, err := os.ReadFile(unitPath)
	if err != nil {
		return fmt.Sprintf("cannot read unit file %s: %v", unitPath, err)
	}
	h := sha256.Sum256(data)
	actual := hex.EncodeToString(h[:])

	if actual == expected {
		return ""
	}
	return fmt.Sprintf("systemd unit file %s has been modified since installation (expected %s, got %s)",
		unitPath, expected[:16], actual[:16])
}

// RecordUnitFileHash writes the SHA-256 of the installed unit file to
// the state directory. Called at install time to record the baseline.
func RecordUnitFileHash(stateDir string) error {
	for _, p := range UnitFilePaths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		h := sha256.Sum256(data)
		if err := os.MkdirAll(stateDir, 0700); err != nil {
			return err
		}
		return os.WriteFile(hashPath(stateDir), []byte(hex.EncodeToString(h[:])+"\n"), 0600)
	}
	return fmt.Errorf("no unit file found at expected paths")
}
