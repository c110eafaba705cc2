// Package markup renders execution results for human consumption: ordered
// markdown fragments for chat-style surfaces and a self-contained HTML
// panel with inline images for embedded viewers.
package markup

import (
	"encoding/base64"
	"fmt"
	"html/template"
	"strings"

	"github.com/dmora/kernelrun"
)

// successNotice is emitted when an execution produced neither output nor
// errors.
const successNotice = "✓ Code executed successfully"

// Parts renders res as ordered markdown fragments: session info, the
// executed code, then output and errors when present. A run with neither
// gets the success notice instead.
func Parts(res kernelrun.Result) []string {
	parts := []string{
		fmt.Sprintf("**Kernel Info:** ID: `%s...` | Uptime: `%.1fs`",
			shortID(res.SessionID), res.Uptime.Seconds()),
		fmt.Sprintf("**Executed:**\n```python\n%s\n```", res.Code),
	}
	if len(res.Outputs) > 0 {
		parts = append(parts,
			fmt.Sprintf("**Output:**\n```\n%s\n```", strings.Join(res.Outputs, "\n")))
	}
	if len(res.Errors) > 0 {
		parts = append(parts,
			fmt.Sprintf("**Errors:**\n```python\n%s\n```", strings.Join(res.Errors, "\n")))
	}
	if len(res.Outputs) == 0 && len(res.Errors) == 0 {
		parts = append(parts, successNotice)
	}
	return parts
}

// Markdown renders res as a single markdown document, the fragments from
// Parts joined by blank lines.
func Markdown(res kernelrun.Result) string {
	return strings.Join(Parts(res), "\n\n")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

type panelData struct {
	Result kernelrun.Result
	Output string
	Errors string
	Images []template.URL
}

var panelTmpl = template.Must(template.New("panel").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><style>
body { font-family: monospace; margin: 1em; }
.status { font-weight: bold; }
.status.completed { color: #2e7d32; }
.status.errored, .status.timed_out { color: #c62828; }
pre { background: #f5f5f5; padding: 0.5em; overflow-x: auto; }
pre.errors { background: #fff3f3; }
img { max-width: 100%; }
</style></head>
<body>
<div class="status {{.Result.Status}}">{{.Result.Status}}</div>
<pre class="code">{{.Result.Code}}</pre>
{{if .Output}}<pre class="output">{{.Output}}</pre>{{end}}
{{if .Errors}}<pre class="errors">{{.Errors}}</pre>{{end}}
{{range .Images}}<img src="{{.}}" alt="figure">
{{end}}</body>
</html>
`))

// HTML renders res as a self-contained HTML panel. All text is escaped by
// html/template; artifacts become inline data-URI images. Artifacts whose
// payload is not valid base64 PNG data are skipped.
func HTML(res kernelrun.Result) (string, error) {
	data := panelData{
		Result: res,
		Output: strings.Join(res.Outputs, "\n"),
		Errors: strings.Join(res.Errors, "\n"),
		Images: imageURIs(res.Artifacts),
	}
	var buf strings.Builder
	if err := panelTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("markup: render panel: %w", err)
	}
	return buf.String(), nil
}

// imageURIs converts image artifacts into data URIs. The payload is
// round-tripped through base64 decoding so only well-formed data reaches
// the src attribute; that validation is what justifies template.URL.
func imageURIs(artifacts []kernelrun.Artifact) []template.URL {
	var uris []template.URL
	for _, a := range artifacts {
		if !strings.HasPrefix(a.MIMEType, "image/") {
			continue
		}
		if _, err := base64.StdEncoding.DecodeString(a.Data); err != nil {
			continue
		}
		uris = append(uris, template.URL("data:"+a.MIMEType+";base64,"+a.Data))
	}
	return uris
}
