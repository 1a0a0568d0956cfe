package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/imabhichow/duvet/pkg/catalog"
	"github.com/imabhichow/duvet/pkg/logging"
	"github.com/imabhichow/duvet/pkg/regions"
)

// llvmExport mirrors the llvm-cov export JSON layout. Regions are
// positional arrays: [lineStart, colStart, lineEnd, colEnd,
// executionCount, fileID, expandedFileID, kind].
type llvmExport struct {
	Type    string `json:"type"`
	Version string `json:"version"`
	Data    []struct {
		Functions []llvmFunction `json:"functions"`
	} `json:"data"`
}

type llvmFunction struct {
	Name      string     `json:"name"`
	Count     uint64     `json:"count"`
	Regions   [][]uint64 `json:"regions"`
	Filenames []string   `json:"filenames"`
}

// llvm-cov region kinds; only code regions carry executable spans.
const llvmCodeRegion = 0

// LLVMCov imports an llvm-cov export JSON file. Each executed function
// becomes a "test" entity; its code regions with a non-zero execution
// count become marks. Files the resolver cannot place are skipped.
// Returns how many marks were produced.
func (in *Ingestor) LLVMCov(path string, resolve PathResolver) (int, error) {
	started := time.Now()

	data, err := os.ReadFile(path)
	if err != nil {
		in.metrics.RecordIngest("llvmcov", "error", time.Since(started), 0)
		return 0, err
	}

	var export llvmExport
	if err := json.Unmarshal(data, &export); err != nil {
		in.metrics.RecordIngest("llvmcov", "error", time.Since(started), 0)
		return 0, fmt.Errorf("%w: %s: %v", ErrBadProfile, path, err)
	}

	_, runUUID, err := in.cat.Runs.Register()
	if err != nil {
		in.metrics.RecordIngest("llvmcov", "error", time.Since(started), 0)
		return 0, err
	}
	runAttr := runUUID.String()

	marks := 0
	for _, d := range export.Data {
		for _, fn := range d.Functions {
			if fn.Count == 0 {
				continue
			}

			var label regions.Label
			haveLabel := false
			for _, r := range fn.Regions {
				if len(r) < 8 {
					in.metrics.RecordIngest("llvmcov", "error", time.Since(started), marks)
					return marks, fmt.Errorf("%w: region array length %d", ErrBadProfile, len(r))
				}
				count, fileIdx, kind := r[4], r[5], r[7]
				if count == 0 || kind != llvmCodeRegion {
					continue
				}
				if fileIdx >= uint64(len(fn.Filenames)) {
					in.metrics.RecordIngest("llvmcov", "error", time.Since(started), marks)
					return marks, fmt.Errorf("%w: region file index %d out of range", ErrBadProfile, fileIdx)
				}

				registered, ok := resolve(fn.Filenames[fileIdx])
				if !ok {
					continue
				}
				file, err := in.cat.Files.ID(registered)
				if err != nil {
					in.metrics.RecordIngest("llvmcov", "error", time.Since(started), marks)
					return marks, err
				}

				start, err := in.cat.Files.LineOffset(file, uint32(r[0]), uint32(r[1]))
				if err != nil {
					in.metrics.RecordIngest("llvmcov", "error", time.Since(started), marks)
					return marks, err
				}
				end, err := in.cat.Files.LineOffset(file, uint32(r[2]), uint32(r[3]))
				if err != nil {
					in.metrics.RecordIngest("llvmcov", "error", time.Since(started), marks)
					return marks, err
				}

				if !haveLabel {
					label, err = in.newEntity(map[string]string{
						catalog.AttrType:       "test",
						catalog.AttrName:       fn.Name,
						catalog.AttrExecutions: strconv.FormatUint(fn.Count, 10),
						"run":                  runAttr,
					})
					if err != nil {
						in.metrics.RecordIngest("llvmcov", "error", time.Since(started), marks)
						return marks, err
					}
					haveLabel = true
				}

				scope := regions.Scope{File: regions.FileID(file)}
				if err := in.eng.Insert(scope, regions.Span{Start: start, End: end}, label); err != nil {
					in.metrics.RecordIngest("llvmcov", "error", time.Since(started), marks)
					return marks, err
				}
				marks++
			}
		}
	}

	in.metrics.RecordIngest("llvmcov", "success", time.Since(started), marks)
	in.log.Info("llvm coverage imported",
		logging.Path(path),
		logging.String("run", runAttr),
		logging.Count(marks))
	return marks, nil
}
