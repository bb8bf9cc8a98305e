package supervisor

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// App describes one process the supervisor can launch.
type App struct {
	Name    string   `yaml:"name" json:"name"`
	Command string   `yaml:"command" json:"command"`
	Args    []string `yaml:"args" json:"args,omitempty"`
	// LogPath receives the process output and is what Tail reads.
	LogPath string `yaml:"log_path" json:"log_path,omitempty"`
	// CleanLog truncates LogPath before every launch.
	CleanLog bool `yaml:"clean_log" json:"clean_log,omitempty"`
}

type appFile struct {
	Apps []App `yaml:"apps"`
}

var ErrInvalidApps = errors.New("invalid app definitions")

// LoadApps reads an app file such as:
//
//	apps:
//	  - name: ws
//	    command: /usr/local/bin/webstream
//	    args: ["-rotation", "180", "-fps", "25"]
//	    log_path: /var/log/webstream.log
func LoadApps(path string) ([]App, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open app file: %w", err)
	}
	defer f.Close()
	return ParseApps(f)
}

// ParseApps decodes and validates app definitions.
func ParseApps(r io.Reader) ([]App, error) {
	var file appFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidApps, err)
	}

	seen := make(map[string]bool, len(file.Apps))
	for i, app := range file.Apps {
		switch {
		case app.Name == "":
			return nil, fmt.Errorf("%w: app %d has no name", ErrInvalidApps, i)
		case app.Command == "":
			return nil, fmt.Errorf("%w: app %q has no command", ErrInvalidApps, app.Name)
		case seen[app.Name]:
			return nil, fmt.Errorf("%w: app %q defined twice", ErrInvalidApps, app.Name)
		case app.CleanLog && app.LogPath == "":
			return nil, fmt.Errorf("%w: app %q sets clean_log without log_path", ErrInvalidApps, app.Name)
		}
		seen[app.Name] = true
	}
	return file.Apps, nil
}
