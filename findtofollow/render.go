package findtofollow

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/haileyok/findtofollow/finder"
)

// descriptions arrive with <strong> markers already inserted around keyword
// matches; everything else in them is escaped
var emphasisUnescaper = strings.NewReplacer(
	"&lt;strong&gt;", "<strong>",
	"&lt;/strong&gt;", "</strong>",
)

var resultsTmpl = template.Must(template.New("results").Funcs(template.FuncMap{
	"description": func(s string) template.HTML {
		return template.HTML(emphasisUnescaper.Replace(template.HTMLEscapeString(s)))
	},
	"inc": func(i int) int { return i + 1 },
}).Parse(`<html>
<body>
{{- if .Profiles }}
<table class="user-table">
<tr><th></th><th></th><th>account</th><th>following</th><th>followers</th></tr>
{{- range $i, $p := .Profiles }}
<tr id="user-{{ $p.Did }}">
<td class="number-td">{{ inc $i }}.</td>
<td class="picture-td">{{ if $p.Avatar }}<img src="{{ $p.Avatar }}" width="48" height="48" />{{ end }}</td>
<td class="description-td"><a href="https://bsky.app/profile/{{ $p.Did }}" target="_blank">{{ $p.DisplayName }} (@{{ $p.Handle }})</a><p>{{ description $p.Description }}</p></td>
<td><strong>{{ $p.FollowsCount }}</strong></td>
<td><strong>{{ $p.FollowersCount }}</strong></td>
</tr>
{{- end }}
</table>
{{- else }}
<p>No Results Found!</p>
{{- end }}
<pre class="log">{{ .Log }}</pre>
</body>
</html>
`))

var errorTmpl = template.Must(template.New("error").Parse(`<html>
<body>
<p class="error">{{ .Error }}</p>
<pre class="log">{{ .Log }}</pre>
</body>
</html>
`))

func renderResults(profiles []finder.Profile, log string) (string, error) {
	var buf bytes.Buffer
	if err := resultsTmpl.Execute(&buf, struct {
		Profiles []finder.Profile
		Log      string
	}{profiles, log}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderError(err error, log string) string {
	var buf bytes.Buffer
	if terr := errorTmpl.Execute(&buf, struct {
		Error string
		Log   string
	}{err.Error(), log}); terr != nil {
		return template.HTMLEscapeString(err.Error())
	}
	return buf.String()
}
