package proxy

import (
	"html/template"
	"net/http"
	"time"
)

// timestampLayout is the timestamp format embedded in generated pages.
const timestampLayout = "2006-01-02 15:04:05"

var blockPageTmpl = template.Must(template.New("block").Parse(`<!DOCTYPE html>
<html>
<head><title>Site Blocked</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 10%;">
<h1>&#128683; Site Blocked</h1>
<p>Access to <strong>{{.URL}}</strong> has been blocked by your network administrator.</p>
<p><small>{{.Timestamp}}</small></p>
</body>
</html>
`))

var errorPageTmpl = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html>
<head><title>Site Unreachable</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 10%;">
<h1>Site Unreachable</h1>
<p><strong>{{.URL}}</strong> could not be reached. Please try again later.</p>
<p><small>{{.Timestamp}}</small></p>
</body>
</html>
`))

type pageData struct {
	URL       string
	Timestamp string
}

// writeBlockPage serves the generated block page. Status is 200 on purpose:
// error codes make browsers auto-retry.
func writeBlockPage(w http.ResponseWriter, url string, now time.Time) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = blockPageTmpl.Execute(w, pageData{URL: url, Timestamp: now.Format(timestampLayout)})
}

// writeErrorPage serves the generated origin-failure page.
func writeErrorPage(w http.ResponseWriter, url string, now time.Time) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusBadGateway)
	_ = errorPageTmpl.Execute(w, pageData{URL: url, Timestamp: now.Format(timestampLayout)})
}
