// Package unit renders systemd service files for the binaries of this repo.
package unit

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/template"
)

var ErrMissingExec = errors.New("unit: ExecStart command is required")

// Service is the content of one .service file.
type Service struct {
	Description string
	Exec        []string // command and arguments
	User        string
	WorkingDir  string
	Environment map[string]string
}

var serviceTemplate = template.Must(template.New("service").Funcs(template.FuncMap{
	"quote": quoteArgs,
}).Parse(`[Unit]
Description={{.Description}}
After=network.target

[Service]
Type=simple
Restart=always
{{- if .User}}
User={{.User}}
{{- end}}
{{- if .WorkingDir}}
WorkingDirectory={{.WorkingDir}}
{{- end}}
{{- range $k, $v := .Environment}}
Environment="{{$k}}={{$v}}"
{{- end}}
ExecStart={{quote .Exec}}

[Install]
WantedBy=multi-user.target
`))

// quoteArgs joins args for ExecStart, quoting any that contain whitespace or quotes.
func quoteArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\"'\\") {
			a = `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(a) + `"`
		}
		quoted[i] = a
	}
	return strings.Join(quoted, " ")
}

// Render writes the service file to w.
func Render(w io.Writer, svc Service) error {
	if len(svc.Exec) == 0 || svc.Exec[0] == "" {
		return ErrMissingExec
	}
	if svc.Description == "" {
		svc.Description = svc.Exec[0]
	}
	if err := serviceTemplate.Execute(w, svc); err != nil {
		return fmt.Errorf("render unit: %w", err)
	}
	return nil
}
