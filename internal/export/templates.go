package export

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"kampus/api/internal/report"
)

var digestTemplate = template.Must(template.New("digest").Funcs(template.FuncMap{
	"formatDate": formatDate,
	"coords":     coordinates,
}).Parse(digestHTML))

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("02.01.2006 15:04")
}

func coordinates(r report.Record) string {
	if !r.HasLocation() {
		return "-"
	}
	return fmt.Sprintf("%.5f, %.5f", r.Latitude, r.Longitude)
}

// TemplateData holds data for digest rendering
type TemplateData struct {
	Title       string
	GeneratedAt time.Time
	GeneratedBy string
	Total       int
	ByStatus    []Count
	ByCategory  []Count
	Reports     []report.Record
}

// Count is one row of a summary table.
type Count struct {
	Label string
	Count int
}

func buildTemplateData(title, generatedBy string, now time.Time, records []report.Record) TemplateData {
	data := TemplateData{
		Title:       title,
		GeneratedAt: now,
		GeneratedBy: generatedBy,
		Total:       len(records),
		Reports:     records,
	}

	statusCounts := make(map[report.Status]int)
	categoryCounts := make(map[report.Category]int)
	for _, r := range records {
		statusCounts[r.Status]++
		categoryCounts[r.Type]++
	}
	for _, st := range report.Statuses() {
		data.ByStatus = append(data.ByStatus, Count{Label: string(st), Count: statusCounts[st]})
	}
	for _, c := range report.Categories() {
		if n := categoryCounts[c]; n > 0 {
			data.ByCategory = append(data.ByCategory, Count{Label: c.Label(), Count: n})
		}
	}
	return data
}

// RenderDigestHTML renders the digest template with provided data
func RenderDigestHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const digestHTML = `<!DOCTYPE html>
<html lang="tr">
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.5; max-width: 960px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #1565c0; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 1.5rem; }
    table { border-collapse: collapse; width: 100%; margin-bottom: 1.5rem; }
    th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: left; font-size: 0.9em; }
    th { background: #e6f3ff; }
    .summary { display: flex; gap: 2rem; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">Oluşturulma: {{formatDate .GeneratedAt}}{{if .GeneratedBy}} | {{.GeneratedBy}}{{end}} | Toplam: {{.Total}}</div>
  <div class="summary">
    <table>
      <tr><th>Durum</th><th>Adet</th></tr>
      {{range .ByStatus}}<tr><td>{{.Label}}</td><td>{{.Count}}</td></tr>{{end}}
    </table>
    <table>
      <tr><th>Tür</th><th>Adet</th></tr>
      {{range .ByCategory}}<tr><td>{{.Label}}</td><td>{{.Count}}</td></tr>{{end}}
    </table>
  </div>
  <h2>Bildirimler</h2>
  <table>
    <tr><th>Tarih</th><th>Tür</th><th>Başlık</th><th>Durum</th><th>Gönderen</th><th>Konum</th></tr>
    {{range .Reports}}<tr>
      <td>{{formatDate .Timestamp}}</td>
      <td>{{.Type.Label}}</td>
      <td>{{.Title}}{{if .Description}}<br><small>{{.Description}}</small>{{end}}</td>
      <td>{{.Status}}</td>
      <td>{{.AuthorName}}</td>
      <td>{{coords .}}</td>
    </tr>{{else}}<tr><td colspan="6">Kayıt yok.</td></tr>{{end}}
  </table>
</body>
</html>`
