package report

import (
	"bufio"
	"bytes"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Shell around each annotated source page. The body between the two
// parts is written manually so region spans can be emitted while
// walking the file once.
var sourceHeader = template.Must(template.New("header").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>{{.}}</title>
<style>
body { font-family: monospace; margin: 0; }
.source { white-space: pre; padding: 1em; }
.source div { min-height: 1em; }
span[data-l] { background: #d7f0d7; }
</style>
</head>
<body>
<div class="source">
`))

const sourceFooter = `</div>
</body>
</html>
`

var indexTemplate = template.Must(template.New("index").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Project}}</title>
</head>
<body>
<h1>{{.Project}}</h1>
<table>
<tr><th>file</th><th>regions</th></tr>
{{range .Files}}{{if .Path}}<tr><td><a href="{{.Path}}.html">{{.Path}}</a></td><td>{{len .Regions}}</td></tr>
{{end}}{{end}}</table>
</body>
</html>
`))

// WriteHTML renders the report under outdir: an index page plus one
// annotated page per registered file, lines split at region boundaries
// so each segment carries its label set in a data-l attribute. Files
// the catalog does not know (bus marks for unregistered IDs) are left
// out.
func (b *Builder) WriteHTML(rep *Report, outdir string) error {
	for _, f := range rep.Files {
		if f.Path == "" {
			continue
		}
		contents, err := b.Contents(f.ID)
		if err != nil {
			return err
		}
		if err := writeSourcePage(outdir, f, contents); err != nil {
			return err
		}
	}

	out, err := os.Create(filepath.Join(outdir, "index.html"))
	if err != nil {
		return err
	}
	defer out.Close()
	return indexTemplate.Execute(out, rep)
}

func writeSourcePage(outdir string, f FileReport, contents []byte) error {
	name := f.Path + ".html"
	if f.Run != 0 {
		name = fmt.Sprintf("%s.r%d.html", f.Path, f.Run)
	}
	path := filepath.Join(outdir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()
	w := bufio.NewWriter(out)

	if err := sourceHeader.Execute(w, f.Path); err != nil {
		return err
	}

	ri := 0
	lineno := 0
	offset := uint32(0)
	for len(contents) > 0 {
		lineno++
		line := contents
		if i := bytes.IndexByte(contents, '\n'); i >= 0 {
			line = contents[:i]
			contents = contents[i+1:]
		} else {
			contents = nil
		}

		fmt.Fprintf(w, "<div id=\"L%d\">", lineno)
		if err := writeLineSegments(w, line, offset, f.Regions, &ri); err != nil {
			return err
		}
		io.WriteString(w, "</div>\n")

		offset += uint32(len(line)) + 1
	}

	if _, err := io.WriteString(w, sourceFooter); err != nil {
		return err
	}
	return w.Flush()
}

// writeLineSegments splits one line at region boundaries. ri is the
// cursor into the start-ordered region slice and persists across lines,
// so the whole file is a single merge pass.
func writeLineSegments(w io.Writer, line []byte, start uint32, regs []RegionReport, ri *int) error {
	pos := start
	end := start + uint32(len(line))

	for pos < end {
		for *ri < len(regs) && regs[*ri].End <= pos {
			*ri++
		}

		if *ri < len(regs) && regs[*ri].Start <= pos {
			segEnd := end
			if regs[*ri].End < segEnd {
				segEnd = regs[*ri].End
			}
			text := line[pos-start : segEnd-start]
			if _, err := fmt.Fprintf(w, "<span data-l=\"%s\">%s</span>",
				labelList(regs[*ri].Labels), template.HTMLEscapeString(string(text))); err != nil {
				return err
			}
			pos = segEnd
			continue
		}

		segEnd := end
		if *ri < len(regs) && regs[*ri].Start < segEnd {
			segEnd = regs[*ri].Start
		}
		text := line[pos-start : segEnd-start]
		if _, err := io.WriteString(w, template.HTMLEscapeString(string(text))); err != nil {
			return err
		}
		pos = segEnd
	}
	return nil
}

func labelList(labels []LabelReport) string {
	var sb strings.Builder
	for i, l := range labels {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatUint(uint64(l.ID), 10))
	}
	return sb.String()
}
