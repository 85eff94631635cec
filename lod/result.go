// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package lod

import (
	"context"
	"io"
	"strconv"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/pkg/errors"
)

// Result is the detectability outcome for one variant.
type Result struct {
	// VCFID is the variant's join key, "chrom_pos_ref_alt".
	VCFID string
	// Score is the log-odds detectability score; -Inf for zero coverage.
	Score float64
	// Condition is the classification, or Failed when Err is set.
	Condition Condition
	// Coverage is the total number of filtered reads overlapping the
	// position.
	Coverage uint32
	// VariantReads is the subset of Coverage supporting the alt allele.
	// VariantReads <= Coverage always.
	VariantReads uint32
	// Err records an isolated per-variant failure.  It is serialized to the
	// results table only as the Failed condition and an NA score.
	Err error
}

// failedScore is the Detectability_Score cell for rows whose evidence could
// not be computed.  It is distinct from every numeric score and from the
// zero-coverage -Inf sentinel.
const failedScore = "NA"

// ScoreString serializes the score cell: a decimal float, "-Inf" at zero
// coverage, or "NA" for failed rows.
func (r *Result) ScoreString() string {
	if r.Err != nil {
		return failedScore
	}
	return strconv.FormatFloat(r.Score, 'g', -1, 64)
}

// WriteTable writes one results row per variant, in order, as TSV with a
// VCF_ID/Detectability_Score/Detectability_Condition/Coverage/Variant_Reads
// header.  A path ending in a recognized compression suffix selects
// compressed output.
func WriteTable(ctx context.Context, path string, results []Result) (err error) {
	var out file.File
	if out, err = file.Create(ctx, path); err != nil {
		return
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := out.Writer(ctx)
	if zw, ok := compress.NewWriterPath(w, path); ok {
		defer func() {
			if e := zw.Close(); e != nil && err == nil {
				err = e
			}
		}()
		w = zw
	}
	return writeTable(w, results)
}

func writeTable(w io.Writer, results []Result) error {
	tsvw := tsv.NewWriter(w)
	tsvw.WriteString("VCF_ID\tDetectability_Score\tDetectability_Condition\tCoverage\tVariant_Reads")
	if err := tsvw.EndLine(); err != nil {
		return err
	}
	for i := range results {
		r := &results[i]
		tsvw.WriteString(r.VCFID)
		tsvw.WriteString(r.ScoreString())
		tsvw.WriteString(r.Condition.String())
		tsvw.WriteUint32(r.Coverage)
		tsvw.WriteUint32(r.VariantReads)
		if err := tsvw.EndLine(); err != nil {
			return err
		}
	}
	return tsvw.Flush()
}

// ReadTable loads a results table previously produced by WriteTable,
// preserving row order.  Gzipped tables are detected by content.
func ReadTable(ctx context.Context, path string) (results []Result, err error) {
	var in file.File
	if in, err = file.Open(ctx, path); err != nil {
		return
	}
	defer file.CloseAndReport(ctx, in, &err)
	reader, _ := compress.NewReader(in.Reader(ctx))
	defer func() {
		if e := reader.Close(); e != nil && err == nil {
			err = e
		}
	}()
	return readTable(reader)
}

func readTable(reader io.Reader) ([]Result, error) {
	r := tsv.NewReader(reader)
	r.HasHeaderRow = true
	r.UseHeaderNames = true
	var row struct {
		VCFID        string `tsv:"VCF_ID"`
		Score        string `tsv:"Detectability_Score"`
		Condition    string `tsv:"Detectability_Condition"`
		Coverage     string `tsv:"Coverage"`
		VariantReads string `tsv:"Variant_Reads"`
	}
	var results []Result
	for {
		if err := r.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.Wrap(err, "couldn't read results table")
		}
		res := Result{VCFID: row.VCFID}
		var err error
		if res.Condition, err = ParseCondition(row.Condition); err != nil {
			return nil, err
		}
		if row.Score == failedScore {
			if res.Condition != Failed {
				return nil, errors.Errorf("lod: NA score on row %s with condition %s", row.VCFID, row.Condition)
			}
			res.Err = errors.Errorf("lod: recorded failure for %s", row.VCFID)
		} else {
			if res.Score, err = strconv.ParseFloat(row.Score, 64); err != nil {
				return nil, errors.Wrapf(err, "row %s: bad score", row.VCFID)
			}
		}
		cov, err := strconv.ParseUint(row.Coverage, 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "row %s: bad coverage", row.VCFID)
		}
		vr, err := strconv.ParseUint(row.VariantReads, 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "row %s: bad variant reads", row.VCFID)
		}
		res.Coverage = uint32(cov)
		res.VariantReads = uint32(vr)
		if res.VariantReads > res.Coverage {
			return nil, errors.Errorf("row %s: variant reads %d exceed coverage %d", row.VCFID, vr, cov)
		}
		results = append(results, res)
	}
	return results, nil
}
