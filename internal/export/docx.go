package export

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

const docxMime = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

const docxContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
<Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>
</Types>`

const docxRootRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties" Target="docProps/core.xml"/>
</Relationships>`

var reportColumns = []string{"Tarih", "Tür", "Başlık", "Durum", "Gönderen", "Konum"}

// exportDOCX writes the digest as a WordprocessingML package: a title, the
// status and category summaries, then one table row per report.
func exportDOCX(data TemplateData) (*Result, error) {
	var body docxBody
	body.heading(data.Title)
	meta := "Oluşturulma: " + formatDate(data.GeneratedAt)
	if data.GeneratedBy != "" {
		meta += " | " + data.GeneratedBy
	}
	body.paragraph(meta+" | Toplam: "+strconv.Itoa(data.Total), false)

	body.table([]string{"Durum", "Adet"}, countRows(data.ByStatus))
	body.table([]string{"Tür", "Adet"}, countRows(data.ByCategory))

	body.paragraph("Bildirimler", true)
	rows := make([][]string, 0, len(data.Reports))
	for _, r := range data.Reports {
		title := r.Title
		if r.Description != "" {
			title += "\n" + r.Description
		}
		rows = append(rows, []string{
			formatDate(r.Timestamp), r.Type.Label(), title, string(r.Status), r.AuthorName, coordinates(r),
		})
	}
	if len(rows) == 0 {
		body.paragraph("Kayıt yok.", false)
	} else {
		body.table(reportColumns, rows)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	parts := []struct{ name, content string }{
		{"[Content_Types].xml", docxContentTypes},
		{"_rels/.rels", docxRootRels},
		{"docProps/core.xml", coreProperties(data)},
		{"word/document.xml", body.document()},
	}
	for _, part := range parts {
		w, err := zw.Create(part.name)
		if err != nil {
			return nil, fmt.Errorf("docx part %s: %w", part.name, err)
		}
		if _, err := w.Write([]byte(part.content)); err != nil {
			return nil, fmt.Errorf("write docx part %s: %w", part.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close docx: %w", err)
	}

	return &Result{
		Data:     buf.Bytes(),
		Filename: sanitizeFilename(data.Title+" "+data.GeneratedAt.Format("2006-01-02")) + ".docx",
		MimeType: docxMime,
	}, nil
}

func countRows(counts []Count) [][]string {
	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, []string{c.Label, strconv.Itoa(c.Count)})
	}
	return rows
}

func coreProperties(data TemplateData) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
<dc:title>` + xmlText(data.Title) + `</dc:title>
<dc:creator>` + xmlText(data.GeneratedBy) + `</dc:creator>
<dcterms:created xsi:type="dcterms:W3CDTF">` + data.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z") + `</dcterms:created>
</cp:coreProperties>`
}

type docxBody struct {
	b strings.Builder
}

func (d *docxBody) heading(text string) {
	d.b.WriteString(`<w:p><w:pPr><w:spacing w:after="200"/></w:pPr>`)
	d.run(text, true, 32)
	d.b.WriteString(`</w:p>`)
}

func (d *docxBody) paragraph(text string, bold bool) {
	d.b.WriteString(`<w:p>`)
	d.run(text, bold, 0)
	d.b.WriteString(`</w:p>`)
}

func (d *docxBody) table(header []string, rows [][]string) {
	d.b.WriteString(`<w:tbl><w:tblPr><w:tblStyle w:val="TableGrid"/><w:tblW w:w="0" w:type="auto"/>` +
		`<w:tblBorders><w:top w:val="single" w:sz="4"/><w:left w:val="single" w:sz="4"/>` +
		`<w:bottom w:val="single" w:sz="4"/><w:right w:val="single" w:sz="4"/>` +
		`<w:insideH w:val="single" w:sz="4"/><w:insideV w:val="single" w:sz="4"/></w:tblBorders></w:tblPr>`)
	d.row(header, true)
	for _, r := range rows {
		d.row(r, false)
	}
	d.b.WriteString(`</w:tbl><w:p/>`)
}

func (d *docxBody) row(cells []string, header bool) {
	d.b.WriteString(`<w:tr>`)
	for _, cell := range cells {
		d.b.WriteString(`<w:tc>`)
		if header {
			d.b.WriteString(`<w:tcPr><w:shd w:val="clear" w:color="auto" w:fill="E6F3FF"/></w:tcPr>`)
		}
		d.b.WriteString(`<w:p>`)
		d.run(cell, header, 0)
		d.b.WriteString(`</w:p></w:tc>`)
	}
	d.b.WriteString(`</w:tr>`)
}

// run writes text as one run; newlines become line breaks. size is in
// half-points, zero keeps the default.
func (d *docxBody) run(text string, bold bool, size int) {
	d.b.WriteString(`<w:r>`)
	if bold || size > 0 {
		d.b.WriteString(`<w:rPr>`)
		if bold {
			d.b.WriteString(`<w:b/>`)
		}
		if size > 0 {
			fmt.Fprintf(&d.b, `<w:sz w:val="%d"/>`, size)
		}
		d.b.WriteString(`</w:rPr>`)
	}
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			d.b.WriteString(`<w:br/>`)
		}
		d.b.WriteString(`<w:t xml:space="preserve">` + xmlText(line) + `</w:t>`)
	}
	d.b.WriteString(`</w:r>`)
}

func (d *docxBody) document() string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		d.b.String() +
		`<w:sectPr><w:pgSz w:w="11906" w:h="16838"/><w:pgMar w:top="1134" w:right="1134" w:bottom="1134" w:left="1134" w:header="708" w:footer="708" w:gutter="0"/></w:sectPr>` +
		`</w:body></w:document>`
}

func xmlText(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
