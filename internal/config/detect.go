package config

import (
	"bytes"
	"path/filepath"
	"strings"
)

// Format is a configuration file syntax.
type Format int

const (
	FormatTOML Format = iota
	FormatYAML
)

func (f Format) String() string {
	if f == FormatYAML {
		return "yaml"
	}
	return "toml"
}

// DetectFormat picks the syntax of a config file. The extension decides when
// it is .toml, .yaml or .yml. Otherwise the content is sniffed: a TOML table
// header or key = value line means TOML, a key: value line means YAML.
func DetectFormat(path string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".yaml", ".yml":
		return FormatYAML
	}

	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		if line[0] == '[' {
			return FormatTOML
		}
		if bytes.Equal(line, []byte("---")) {
			return FormatYAML
		}
		eq := bytes.IndexByte(line, '=')
		colon := bytes.IndexByte(line, ':')
		switch {
		case eq >= 0 && (colon < 0 || eq < colon):
			return FormatTOML
		case colon >= 0:
			return FormatYAML
		}
	}
	return FormatTOML
}
