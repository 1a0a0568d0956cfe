package ingest

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/imabhichow/duvet/pkg/catalog"
	"github.com/imabhichow/duvet/pkg/logging"
	"github.com/imabhichow/duvet/pkg/regions"
)

// ErrBadProfile reports a coverage input that does not parse.
var ErrBadProfile = errors.New("malformed coverage profile")

// PathResolver maps a coverage input's file name (often an import path
// like "example.com/pkg/file.go") to a path registered in the catalog.
// Returning false skips the file.
type PathResolver func(name string) (string, bool)

// SuffixResolver resolves coverage file names by unique path suffix
// against the registered files. The usual resolver for Go profiles,
// whose names carry the module prefix.
func (in *Ingestor) SuffixResolver() (PathResolver, error) {
	ids, err := in.cat.Files.All()
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(ids))
	for _, id := range ids {
		p, err := in.cat.Files.Path(id)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}

	return func(name string) (string, bool) {
		var match string
		for _, p := range paths {
			if name == p || strings.HasSuffix(name, "/"+p) || strings.HasSuffix(p, "/"+trimModule(name)) {
				if match != "" && match != p {
					return "", false // ambiguous
				}
				match = p
			}
		}
		return match, match != ""
	}, nil
}

// trimModule drops the leading module path from an import-qualified
// file name, keeping the package-relative tail.
func trimModule(name string) string {
	parts := strings.SplitN(name, "/", 4)
	if len(parts) == 4 && strings.Contains(parts[0], ".") {
		return parts[3]
	}
	return name
}

// CoverProfile imports a Go cover profile (go test -coverprofile).
// Every covered block becomes a "test" entity carrying the profile's
// run UUID and execution count, marked over the block's byte span.
// Blocks with count 0 and files the resolver cannot place are skipped.
// Returns how many marks were produced.
func (in *Ingestor) CoverProfile(path string, resolve PathResolver) (int, error) {
	started := time.Now()

	f, err := os.Open(path)
	if err != nil {
		in.metrics.RecordIngest("coverprofile", "error", time.Since(started), 0)
		return 0, err
	}
	defer f.Close()

	_, runUUID, err := in.cat.Runs.Register()
	if err != nil {
		in.metrics.RecordIngest("coverprofile", "error", time.Since(started), 0)
		return 0, err
	}
	runAttr := runUUID.String()
	profileName := filepath.Base(path)

	marks := 0
	lineno := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineno++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if lineno == 1 {
			if !strings.HasPrefix(text, "mode:") {
				in.metrics.RecordIngest("coverprofile", "error", time.Since(started), marks)
				return marks, fmt.Errorf("%w: missing mode header in %s", ErrBadProfile, path)
			}
			continue
		}

		block, err := parseProfileLine(text)
		if err != nil {
			in.metrics.RecordIngest("coverprofile", "error", time.Since(started), marks)
			return marks, fmt.Errorf("%s:%d: %w", path, lineno, err)
		}
		if block.count == 0 {
			continue
		}

		registered, ok := resolve(block.file)
		if !ok {
			continue
		}
		file, err := in.cat.Files.ID(registered)
		if err != nil {
			in.metrics.RecordIngest("coverprofile", "error", time.Since(started), marks)
			return marks, err
		}

		start, err := in.cat.Files.LineOffset(file, block.startLine, block.startCol)
		if err != nil {
			in.metrics.RecordIngest("coverprofile", "error", time.Since(started), marks)
			return marks, err
		}
		end, err := in.cat.Files.LineOffset(file, block.endLine, block.endCol)
		if err != nil {
			in.metrics.RecordIngest("coverprofile", "error", time.Since(started), marks)
			return marks, err
		}

		label, err := in.newEntity(map[string]string{
			catalog.AttrType:       "test",
			catalog.AttrName:       profileName,
			catalog.AttrExecutions: strconv.FormatUint(uint64(block.count), 10),
			"run":                  runAttr,
		})
		if err != nil {
			in.metrics.RecordIngest("coverprofile", "error", time.Since(started), marks)
			return marks, err
		}

		scope := regions.Scope{File: regions.FileID(file)}
		if err := in.eng.Insert(scope, regions.Span{Start: start, End: end}, label); err != nil {
			in.metrics.RecordIngest("coverprofile", "error", time.Since(started), marks)
			return marks, err
		}
		marks++
	}
	if err := scanner.Err(); err != nil {
		in.metrics.RecordIngest("coverprofile", "error", time.Since(started), marks)
		return marks, err
	}

	in.metrics.RecordIngest("coverprofile", "success", time.Since(started), marks)
	in.log.Info("coverage profile imported",
		logging.Path(path),
		logging.String("run", runAttr),
		logging.Count(marks))
	return marks, nil
}

// profileBlock is one parsed cover profile row.
type profileBlock struct {
	file                string
	startLine, startCol uint32
	endLine, endCol     uint32
	statements          uint32
	count               uint32
}

// parseProfileLine parses "name.go:sl.sc,el.ec numStmt count".
func parseProfileLine(text string) (profileBlock, error) {
	var b profileBlock

	name, rest, found := cutLast(text, ":")
	if !found {
		return b, fmt.Errorf("%w: no position separator", ErrBadProfile)
	}
	b.file = name

	fields := strings.Fields(rest)
	if len(fields) != 3 {
		return b, fmt.Errorf("%w: expected 3 fields after position", ErrBadProfile)
	}

	startPos, endPos, found := strings.Cut(fields[0], ",")
	if !found {
		return b, fmt.Errorf("%w: no range separator", ErrBadProfile)
	}

	var err error
	if b.startLine, b.startCol, err = parseLineCol(startPos); err != nil {
		return b, err
	}
	if b.endLine, b.endCol, err = parseLineCol(endPos); err != nil {
		return b, err
	}
	if n, err := strconv.ParseUint(fields[1], 10, 32); err != nil {
		return b, fmt.Errorf("%w: statement count: %v", ErrBadProfile, err)
	} else {
		b.statements = uint32(n)
	}
	if n, err := strconv.ParseUint(fields[2], 10, 32); err != nil {
		return b, fmt.Errorf("%w: execution count: %v", ErrBadProfile, err)
	} else {
		b.count = uint32(n)
	}
	return b, nil
}

func parseLineCol(s string) (uint32, uint32, error) {
	lineStr, colStr, found := strings.Cut(s, ".")
	if !found {
		return 0, 0, fmt.Errorf("%w: position %q", ErrBadProfile, s)
	}
	line, err := strconv.ParseUint(lineStr, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: line %q", ErrBadProfile, lineStr)
	}
	col, err := strconv.ParseUint(colStr, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: column %q", ErrBadProfile, colStr)
	}
	return uint32(line), uint32(col), nil
}

// cutLast splits around the last occurrence of sep. File names on
// Windows carry a drive colon, so the last colon is the position one.
func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}
