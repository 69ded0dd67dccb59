package master

import (
	"fmt"
	"html/template"
	"net/http"
	"time"

	"stratadb/internal/directory"
	"stratadb/internal/version"
)

var tabletServersTmpl = template.Must(template.New("tablet-servers").Parse(`<html>
<head><title>Tablet Servers</title></head>
<body>
<h1>Tablet Servers</h1>
<p>Master version: {{.MasterVersion}}</p>
<table border="1">
<tr><th>UUID</th><th>Version</th><th>Status</th><th>Last Heartbeat</th><th>Web UI</th></tr>
{{range .Servers}}<tr>
<td>{{.UUID}}</td>
<td>{{.Version}}</td>
<td>{{.Status}}</td>
<td>{{.LastHeartbeat}}</td>
<td>{{if .WebURL}}<a href="{{.WebURL}}">{{.WebURL}}</a>{{end}}</td>
</tr>
{{end}}</table>
</body>
</html>
`))

type tabletServerRow struct {
	UUID          string
	Version       string
	Status        string
	LastHeartbeat string
	WebURL        string
}

// StatusHandler serves the read-only /tablet-servers view. It only reads
// registration state; the link scheme comes from the server's declared TLS
// capability, never from probing.
func StatusHandler(dir *directory.Directory) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		servers := dir.List()
		rows := make([]tabletServerRow, 0, len(servers))
		for _, desc := range servers {
			rows = append(rows, tabletServerRow{
				UUID:          desc.UUID,
				Version:       desc.Registration.SoftwareVersion,
				Status:        statusString(desc),
				LastHeartbeat: desc.LastHeartbeat.Format(time.RFC3339),
				WebURL:        WebURL(desc.Registration),
			})
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tabletServersTmpl.Execute(w, struct {
			MasterVersion string
			Servers       []tabletServerRow
		}{version.Full(), rows})
	})
}

func statusString(desc directory.Descriptor) string {
	if desc.Live {
		return "live"
	}
	return "not reporting"
}

// WebURL builds the link to a server's own status endpoint. Secure scheme
// only when the registration declared TLS.
func WebURL(reg directory.Registration) string {
	if len(reg.HTTPAddresses) == 0 {
		return ""
	}
	scheme := "http"
	if reg.HTTPSEnabled {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/", scheme, reg.HTTPAddresses[0])
}

// NewWebServer wires the status pages onto a mux.
func NewWebServer(addr string, dir *directory.Directory) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/tablet-servers", StatusHandler(dir))
	return &http.Server{Addr: addr, Handler: mux}
}
