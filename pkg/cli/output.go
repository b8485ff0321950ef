package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v2"

	"github.com/telekom/logmail/pkg/mail"
)

type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

func WriteObject(w io.Writer, format Format, obj any) error {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(obj, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case FormatYAML:
		data, err := yaml.Marshal(obj)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(w, string(data))
		return err
	case FormatTable:
		return fmt.Errorf("table format requires a specific formatter")
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

// ServiceRow is one well-known mail service.
type ServiceRow struct {
	Name    string   `json:"name" yaml:"name"`
	Host    string   `json:"host" yaml:"host"`
	Port    int      `json:"port" yaml:"port"`
	Secure  bool     `json:"secure" yaml:"secure"`
	Aliases []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

func serviceRows() []ServiceRow {
	names := mail.Services()
	rows := make([]ServiceRow, 0, len(names))
	for _, n := range names {
		p, ok := mail.LookupService(n)
		if !ok {
			continue
		}
		rows = append(rows, ServiceRow{Name: p.Name, Host: p.Host, Port: p.Port, Secure: p.Secure, Aliases: p.Aliases})
	}
	return rows
}

func WriteServiceTable(w io.Writer, rows []ServiceRow) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tHOST\tPORT\tSECURE")
	for _, r := range rows {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%t\n", r.Name, r.Host, r.Port, r.Secure)
	}
	_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", mail.PostmarkAPIService, "api.postmarkapp.com", "-", "true")
	_ = tw.Flush()
}
