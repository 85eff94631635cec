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
	"fmt"
	"strconv"

	"github.com/grailbio/base/log"
	"github.com/grailbio/vlod/encoding/vcf"
)

// INFO field IDs written by the merge stage.
const (
	infoCondition    = "DET"
	infoScore        = "DETS"
	infoCoverage     = "DETC"
	infoVariantReads = "DETVR"
)

// missingValue marks a variant for which the results table has no row.  It
// is the VCF missing-value convention and cannot collide with any real
// score, condition, or count.
const missingValue = "."

var infoHeaderLines = []string{
	`##INFO=<ID=` + infoCondition + `,Number=1,Type=String,Description="Detectability condition (Detectable, Non-detectable, or Failed; . if no result row matched)">`,
	`##INFO=<ID=` + infoScore + `,Number=1,Type=String,Description="Detectability log-odds score (NA for failed rows)">`,
	`##INFO=<ID=` + infoCoverage + `,Number=1,Type=String,Description="Total filtered read depth at the variant position">`,
	`##INFO=<ID=` + infoVariantReads + `,Number=1,Type=String,Description="Reads supporting the alternate allele">`,
}

func annotation(r *Result) string {
	return infoCondition + "=" + r.Condition.String() +
		";" + infoScore + "=" + r.ScoreString() +
		";" + infoCoverage + "=" + strconv.FormatUint(uint64(r.Coverage), 10) +
		";" + infoVariantReads + "=" + strconv.FormatUint(uint64(r.VariantReads), 10)
}

var missingAnnotation = infoCondition + "=" + missingValue +
	";" + infoScore + "=" + missingValue +
	";" + infoCoverage + "=" + missingValue +
	";" + infoVariantReads + "=" + missingValue

// Merge re-attaches a results table to the VCF it was computed from.  Each
// variant record gains the four detectability INFO fields from the row with
// the same (chrom, position, ref, alt) identity; records with no matching
// row are annotated with the explicit "." sentinel and counted, never given
// fabricated values.  Record order and all other columns pass through
// unmodified.  Table rows matching no VCF record are informational only.
func Merge(ctx context.Context, vcfPath, tablePath, outPath string) (err error) {
	var results []Result
	if results, err = ReadTable(ctx, tablePath); err != nil {
		return fmt.Errorf("Merge: reading %s: %v", tablePath, err)
	}
	index := make(map[string]*Result, len(results))
	for i := range results {
		index[results[i].VCFID] = &results[i]
	}

	var f *vcf.File
	if f, err = vcf.Open(ctx, vcfPath); err != nil {
		return fmt.Errorf("Merge: reading %s: %v", vcfPath, err)
	}
	f.InsertInfoHeaders(infoHeaderLines)

	matched := make(map[string]bool, len(index))
	nMissing := 0
	for _, rec := range f.Records {
		variants, e := rec.Variants()
		var row *Result
		if e == nil {
			// Multi-allelic records are annotated from the first alt allele
			// with a result row; the scoring stage emits one row per alt.
			for _, v := range variants {
				if r, ok := index[v.Key()]; ok {
					row = r
					matched[v.Key()] = true
					break
				}
			}
		}
		if row == nil {
			nMissing++
			rec.AppendInfo(missingAnnotation)
			continue
		}
		rec.AppendInfo(annotation(row))
	}
	if nMissing != 0 {
		log.Error.Printf("Merge: %d of %d VCF records had no result row; annotated with %q",
			nMissing, len(f.Records), missingValue)
	}
	if nOrphan := len(index) - len(matched); nOrphan > 0 {
		log.Printf("Merge: %d result rows matched no VCF record", nOrphan)
	}

	if err = vcf.Create(ctx, outPath, f); err != nil {
		return fmt.Errorf("Merge: writing %s: %v", outPath, err)
	}
	log.Printf("Merge: annotated %d records to %s", len(f.Records), outPath)
	return
}
