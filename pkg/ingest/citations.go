package ingest

import (
	"strings"
	"time"

	"github.com/imabhichow/duvet/pkg/catalog"
	"github.com/imabhichow/duvet/pkg/logging"
	"github.com/imabhichow/duvet/pkg/regions"
)

// CitationConfig sets the comment style a source set uses for
// citations. A citation block is one or more meta lines followed by
// content lines:
//
//	//= rfc9000#section-4.1
//	//= type=exception
//	//# The stream MUST be reset when ...
//	//# the peer acknowledges the frame.
type CitationConfig struct {
	// MetaPrefix opens a meta line, e.g. "//=".
	MetaPrefix string
	// ContentPrefix opens a content line, e.g. "//#".
	ContentPrefix string
	// DefaultType is the entity type used when no type meta overrides
	// it, e.g. "citation".
	DefaultType string
}

// citationBlock accumulates one meta/content group while scanning.
type citationBlock struct {
	start, end uint32
	document   string
	section    string
	typ        string
	metas      map[string]string
	content    []string
}

// Citations scans a registered file for citation blocks and inserts one
// mark per block, labeled with a requirement entity for its
// (document, section). Returns how many marks were produced.
func (in *Ingestor) Citations(file uint32, cfg CitationConfig) (int, error) {
	started := time.Now()

	contents, err := in.cat.Files.Contents(file)
	if err != nil {
		in.metrics.RecordIngest("citations", "error", time.Since(started), 0)
		return 0, err
	}

	marks := 0
	flush := func(b *citationBlock) error {
		if b == nil || b.document == "" && b.section == "" && len(b.content) == 0 {
			return nil
		}

		attrs := map[string]string{
			catalog.AttrType:     b.typ,
			catalog.AttrDocument: b.document,
			catalog.AttrSection:  b.section,
		}
		for k, v := range b.metas {
			attrs[k] = v
		}
		label, err := in.newEntity(attrs)
		if err != nil {
			return err
		}

		scope := regions.Scope{File: regions.FileID(file)}
		span := regions.Span{Start: b.start, End: b.end}
		if err := in.eng.Insert(scope, span, label); err != nil {
			return err
		}
		marks++
		return nil
	}

	var block *citationBlock
	for _, ln := range splitLines(contents) {
		trimmed := strings.TrimSpace(ln.text)

		if meta, ok := strip(trimmed, cfg.MetaPrefix); ok {
			if block == nil {
				block = &citationBlock{
					start: ln.start,
					typ:   cfg.DefaultType,
					metas: make(map[string]string),
				}
			}
			block.end = ln.start + uint32(len(ln.text))
			applyMeta(block, meta)
			continue
		}

		if content, ok := strip(trimmed, cfg.ContentPrefix); ok && block != nil {
			block.end = ln.start + uint32(len(ln.text))
			block.content = append(block.content, content)
			continue
		}

		// Any other line ends the block.
		if err := flush(block); err != nil {
			in.metrics.RecordIngest("citations", "error", time.Since(started), marks)
			return marks, err
		}
		block = nil
	}
	if err := flush(block); err != nil {
		in.metrics.RecordIngest("citations", "error", time.Since(started), marks)
		return marks, err
	}

	in.metrics.RecordIngest("citations", "success", time.Since(started), marks)
	in.metrics.IngestFilesTotal.WithLabelValues("citations").Inc()
	in.log.Debug("citations scanned", logging.File(file), logging.Count(marks))
	return marks, nil
}

// applyMeta interprets one meta line. An unnamed meta is a
// "document#section" target; named metas are key=value pairs, where
// "type" overrides the block's entity type.
func applyMeta(b *citationBlock, meta string) {
	meta = strings.TrimSpace(meta)
	if key, value, found := strings.Cut(meta, "="); found && !strings.Contains(key, "#") {
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == catalog.AttrType {
			b.typ = value
			return
		}
		b.metas[key] = value
		return
	}

	doc, section, _ := strings.Cut(meta, "#")
	b.document = doc
	b.section = section
}

func strip(line, prefix string) (string, bool) {
	if prefix == "" {
		return "", false
	}
	rest, ok := strings.CutPrefix(line, prefix)
	return rest, ok
}

// line is one source line with its byte offset.
type line struct {
	start uint32
	text  string
}

// splitLines splits contents into lines, excluding the newline from
// each line's text but keeping offsets exact.
func splitLines(contents []byte) []line {
	var out []line
	start := 0
	for i, c := range contents {
		if c == '\n' {
			out = append(out, line{start: uint32(start), text: string(contents[start:i])})
			start = i + 1
		}
	}
	if start < len(contents) {
		out = append(out, line{start: uint32(start), text: string(contents[start:])})
	}
	return out
}
