package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// InitFile writes a default config template to dir in the given format. It
// refuses to overwrite an existing file.
func InitFile(dir string, format Format) (string, error) {
	name, content := "usbterm.toml", tomlTemplate
	if format == FormatYAML {
		name, content = "usbterm.yaml", yamlTemplate
	}
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("config: %s already exists at %s", name, path)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("config: write %s: %w", path, err)
	}
	return path, nil
}

// ScaffoldProject creates a config file in dir and makes sure the session
// log directory is ignored by git. Files that already exist are left
// untouched. Returns the list of created or modified paths.
func ScaffoldProject(dir string, format Format) ([]string, error) {
	var created []string

	exists := false
	for _, name := range configNames {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			exists = true
			break
		}
	}
	if !exists {
		path, err := InitFile(dir, format)
		if err != nil {
			return created, err
		}
		created = append(created, path)
	}

	const gitignoreEntry = ".usbterm/"
	gitignorePath := filepath.Join(dir, ".gitignore")
	existing, err := os.ReadFile(gitignorePath)
	if os.IsNotExist(err) {
		if writeErr := os.WriteFile(gitignorePath, []byte(gitignoreEntry+"\n"), 0644); writeErr != nil {
			return created, fmt.Errorf("scaffold: write %s: %w", gitignorePath, writeErr)
		}
		created = append(created, gitignorePath)
	} else if err != nil {
		return created, fmt.Errorf("scaffold: read %s: %w", gitignorePath, err)
	} else if !strings.Contains(string(existing), gitignoreEntry) {
		content := string(existing)
		if len(content) > 0 && content[len(content)-1] != '\n' {
			content += "\n"
		}
		content += gitignoreEntry + "\n"
		if writeErr := os.WriteFile(gitignorePath, []byte(content), 0644); writeErr != nil {
			return created, fmt.Errorf("scaffold: write %s: %w", gitignorePath, writeErr)
		}
		created = append(created, gitignorePath)
	}

	return created, nil
}

const tomlTemplate = `# usbterm.toml: serial terminal configuration

[serial]
port = ""          # empty = use the only USB serial port
baud_rate = 19200
data_bits = 8
stop_bits = "1"    # "1", "1.5" or "2"
parity = "none"    # none, odd, even, mark, space

[transport]
kind = "serial"    # serial, websocket or sim
url = ""           # ws:// URL when kind = "websocket"
sim_interval = "100ms"

[log]
dir = ".usbterm/logs"
retention = 50     # session files to keep; 0 = unlimited
sync_writes = false
drain_timeout = "2s"

[chart]
refresh_interval = "1s"
full_scale = 1024
log_malformed = false  # log lines the chart cannot parse

[terminal]
newline = "crlf"   # crlf, lf, cr or none
hex = false
max_lines = 10000
control_lines = false
control_lines_interval = "200ms"
accent_color = "#2AA198"

[notifications]
url = ""            # ntfy.sh topic URL or any HTTP webhook (empty = disabled)
on_background = true # notify when a session keeps running without the UI
on_disconnect = true # notify when the connection fails or is lost
`

const yamlTemplate = `# usbterm.yaml: serial terminal configuration

serial:
  port: ""          # empty = use the only USB serial port
  baud_rate: 19200
  data_bits: 8
  stop_bits: "1"
  parity: none

transport:
  kind: serial      # serial, websocket or sim
  url: ""
  sim_interval: 100ms

log:
  dir: .usbterm/logs
  retention: 50
  sync_writes: false
  drain_timeout: 2s

chart:
  refresh_interval: 1s
  full_scale: 1024
  log_malformed: false

terminal:
  newline: crlf
  hex: false
  max_lines: 10000
  control_lines: false
  control_lines_interval: 200ms
  accent_color: "#2AA198"

notifications:
  url: ""
  on_background: true
  on_disconnect: true
`
