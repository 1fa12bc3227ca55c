// Package merge implements the MERGE COW (copy-on-write) streaming
// filter and sink operator spec §4.7 describes: the physical operator
// that sits downstream of the MERGE join and decides, file by file,
// whether a data file needs rewriting at all.
//
// Grounded on original_source's DataFusion merge physical-plan
// extension: constants and helper shapes (unique_values,
// unique_files_and_manifests, the two-entry not-matched buffer)
// translate directly; the DataFusion ExecutionPlan/RecordBatchStream
// scaffolding they sit inside does not exist in this core, so this
// package exposes the same state machine as a plain Go type instead of
// a trait implementation.
package merge

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/embucket/embucket/internal/apperror"
)

// Synthetic column names every merge input batch carries alongside the
// target table's own columns (spec §4.7).
const (
	ColSourceExists     = "__source_exists"
	ColDataFilePath     = "__data_file_path"
	ColManifestFilePath = "__manifest_file_path"
)

// notMatchedBufferCap is the not_matched_buffer's file capacity (spec
// §4.7.1: "LRU ... capped at 2 files").
const notMatchedBufferCap = 2

// RowBatch is one input record batch together with the three synthetic
// columns already unpacked into plain slices, so the filter state
// machine can reason about rows without re-reading Arrow arrays on
// every pass.
type RowBatch struct {
	Record           arrow.Record
	SourceExists     []bool
	DataFilePath     []string
	ManifestFilePath []string
}

// NumRows reports the batch's row count.
func (b RowBatch) NumRows() int { return len(b.SourceExists) }

// fileManifestPair is one (data file, manifest file) reference.
type fileManifestPair struct {
	dataFile     string
	manifestFile string
}

// uniqueValues returns the change-point indices into v: index 0, plus
// every i>0 where v[i] != v[i-1]. Spec §4.7.2 step 3 calls out that
// data/manifest file columns are locally sorted within a batch (rows
// belonging to the same file are adjacent), so this cheaply recovers
// the distinct values without a full set scan.
func uniqueValues(v []string) []int {
	if len(v) == 0 {
		return nil
	}
	idx := []int{0}
	for i := 1; i < len(v); i++ {
		if v[i] != v[i-1] {
			idx = append(idx, i)
		}
	}
	return idx
}

// uniqueFilesAndManifests collects the distinct (data-file, manifest)
// pairs referenced by a batch's df/mf columns, exploiting the same
// adjacent-row locality as uniqueValues (spec §4.7.2 step 3).
func uniqueFilesAndManifests(df, mf []string) []fileManifestPair {
	idx := uniqueValues(df)
	out := make([]fileManifestPair, 0, len(idx))
	for _, i := range idx {
		out = append(out, fileManifestPair{dataFile: df[i], manifestFile: mf[i]})
	}
	return out
}

// FilterState is the per-merge streaming filter (spec §4.7.1): it
// tracks which data files have been confirmed to need rewriting
// (matching_files), which are still undecided (not_matching_files),
// and holds back rows from undecided files in a small bounded buffer
// until their file's status resolves.
type FilterState struct {
	mu sync.Mutex

	matchingFiles    map[string]string // data file -> manifest file
	notMatchingFiles map[string]string

	notMatchedBuffer *lru.Cache[string, []RowBatch]
	evicted          []RowBatch

	consumed bool
}

// NewFilterState builds an empty FilterState for one MERGE execution.
func NewFilterState() (*FilterState, error) {
	fs := &FilterState{
		matchingFiles:    map[string]string{},
		notMatchingFiles: map[string]string{},
	}
	cache, err := lru.NewWithEvict[string, []RowBatch](notMatchedBufferCap, func(_ string, batches []RowBatch) {
		fs.evicted = append(fs.evicted, batches...)
	})
	if err != nil {
		return nil, apperror.New("merge.NewFilterState", apperror.KindArrow, err)
	}
	fs.notMatchedBuffer = cache
	return fs, nil
}

func (fs *FilterState) bufferBatch(file string, b RowBatch) {
	existing, _ := fs.notMatchedBuffer.Get(file)
	fs.notMatchedBuffer.Add(file, append(existing, b))
}

// restrictToFile returns a copy of b containing only the rows whose
// data file path equals file.
func restrictToFile(b RowBatch, file string) (RowBatch, error) {
	keep := make([]bool, b.NumRows())
	for i, f := range b.DataFilePath {
		keep[i] = f == file
	}
	return filterRowBatch(b, keep)
}

// ProcessBatch runs one input batch through spec §4.7.2's nine-step
// algorithm and returns the batches (zero, one, or more) it is now
// safe to emit downstream.
func (fs *FilterState) ProcessBatch(b RowBatch) ([]RowBatch, error) {
	n := b.NumRows()
	if len(b.DataFilePath) != n || len(b.ManifestFilePath) != n {
		return nil, apperror.Newf("merge.FilterState.ProcessBatch", apperror.KindArrow, "synthetic column length mismatch")
	}

	// Step 2: filtered_df = df[se]
	filteredDF := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if b.SourceExists[i] {
			filteredDF = append(filteredDF, b.DataFilePath[i])
		}
	}

	// Step 3: all_files referenced by this batch.
	allFiles := uniqueFilesAndManifests(b.DataFilePath, b.ManifestFilePath)

	// Step 4: matching_data_files = unique(filtered_df) ∪
	// (matching_files.keys ∩ all_files.keys)
	matchingDataFiles := map[string]bool{}
	for _, i := range uniqueValues(filteredDF) {
		matchingDataFiles[filteredDF[i]] = true
	}
	for _, fm := range allFiles {
		if _, ok := fs.matchingFiles[fm.dataFile]; ok {
			matchingDataFiles[fm.dataFile] = true
		}
	}

	// Step 5: classify every file referenced by this batch.
	matchingDataAndManifest := map[string]string{}
	for _, fm := range allFiles {
		if matchingDataFiles[fm.dataFile] {
			matchingDataAndManifest[fm.dataFile] = fm.manifestFile
			continue
		}
		fs.bufferBatch(fm.dataFile, b)
		fs.notMatchingFiles[fm.dataFile] = fm.manifestFile
	}

	var out []RowBatch
	if len(fs.evicted) > 0 {
		out = append(out, fs.evicted...)
		fs.evicted = nil
	}

	// Step 6: short-circuit when nothing in this batch is confirmed
	// to need rewriting.
	if len(matchingDataAndManifest) == 0 {
		if len(filteredDF) == 0 {
			return out, nil
		}
		return append(out, b), nil
	}

	// Step 7: promote newly-matching files and drain their buffered
	// rows, restricted to that file.
	for file, manifest := range matchingDataAndManifest {
		if _, wasPending := fs.notMatchingFiles[file]; !wasPending {
			fs.mu.Lock()
			fs.matchingFiles[file] = manifest
			fs.mu.Unlock()
			continue
		}
		delete(fs.notMatchingFiles, file)
		fs.mu.Lock()
		fs.matchingFiles[file] = manifest
		fs.mu.Unlock()

		buffered, ok := fs.notMatchedBuffer.Get(file)
		if !ok {
			return nil, apperror.Newf("merge.FilterState.ProcessBatch", apperror.KindMergeFilterStreamNotMatching, "no buffered rows for newly-matching file %q", file)
		}
		fs.notMatchedBuffer.Remove(file)
		for _, buf := range buffered {
			restricted, err := restrictToFile(buf, file)
			if err != nil {
				return nil, err
			}
			if restricted.NumRows() > 0 {
				out = append(out, restricted)
			}
		}
	}

	// Step 8: P = (df ∈ matching_data_files) OR_KLEENE se; filter and
	// emit the current batch under that predicate. matching_data_files
	// is never empty here — matchingDataAndManifest is non-empty only
	// because some file in it is also in matching_data_files — but the
	// check mirrors the fold-over-empty-set failure spec §4.7.4 names.
	if len(matchingDataFiles) == 0 {
		return nil, apperror.Newf("merge.FilterState.ProcessBatch", apperror.KindMissingFilterPredicates, "matching files were identified but no predicate could be built")
	}
	keep := make([]bool, n)
	for i := 0; i < n; i++ {
		keep[i] = b.SourceExists[i] || matchingDataFiles[b.DataFilePath[i]]
	}
	filtered, err := filterRowBatch(b, keep)
	if err != nil {
		return nil, err
	}
	if filtered.NumRows() > 0 {
		out = append(out, filtered)
	}
	return out, nil
}

// FinishedManifests implements spec §4.7.2 step 9: at end of stream,
// group the confirmed matching_files by manifest file. It may be
// called exactly once per FilterState; a second call fails with
// KindMatchingFilesAlreadyConsumed (spec §4.7.4), since the sink is
// the only intended reader and reading twice means two sinks raced.
func (fs *FilterState) FinishedManifests() (map[string][]string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.consumed {
		return nil, apperror.Newf("merge.FilterState.FinishedManifests", apperror.KindMatchingFilesAlreadyConsumed, "matching files already consumed")
	}
	fs.consumed = true

	out := map[string][]string{}
	for file, manifest := range fs.matchingFiles {
		out[manifest] = append(out[manifest], file)
	}
	return out, nil
}
