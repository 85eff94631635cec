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
	"runtime"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/bio/encoding/bamprovider"
	"github.com/grailbio/vlod/encoding/vcf"
	"github.com/grailbio/vlod/pileup"
)

type Opts struct {
	// Commandline options.
	BamIndexPath string
	Params       Params
	Pileup       pileup.Opts
	Parallelism  int
}

var DefaultOpts = Opts{
	Params: DefaultParams,
	Pileup: pileup.DefaultOpts,
}

// ScoreVariants computes one Result per variant, in input order.  Variants
// are scored independently across a worker pool; each worker owns a
// contiguous slice of the preallocated results arena and obtains its own
// read cursors from the extractor, so the only synchronization is the
// fan-in barrier at the end.
//
// A failure to extract or score one variant is isolated: it is recorded on
// that variant's Result (condition Failed) and the rest of the batch
// proceeds.  Invalid model parameters are rejected up front instead, since
// they would fail every row the same way.
func ScoreVariants(variants []vcf.Variant, extractor *pileup.Extractor, params Params, parallelism int) ([]Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	n := len(variants)
	if n == 0 {
		return nil, nil
	}
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	jobs := parallelism
	if jobs > n {
		jobs = n
	}
	results := make([]Result, n)
	// Job errors are never returned from the closure; every per-variant
	// failure lands in its arena slot instead, so Each cannot abandon
	// later slices and each input yields exactly one row.
	_ = traverse.Each(jobs, func(jobIdx int) error {
		for i := (jobIdx * n) / jobs; i < ((jobIdx + 1) * n) / jobs; i++ {
			results[i] = scoreOne(variants[i], extractor, params)
		}
		return nil
	})
	nFailed := 0
	for i := range results {
		if results[i].Err != nil {
			nFailed++
			log.Error.Printf("lod: %s: %v", results[i].VCFID, results[i].Err)
		}
	}
	if nFailed != 0 {
		log.Printf("lod: %d of %d variants failed; see rows with condition %s", nFailed, n, Failed)
	}
	return results, nil
}

func scoreOne(v vcf.Variant, extractor *pileup.Extractor, params Params) Result {
	result := Result{VCFID: v.Key()}
	ev, err := extractor.Extract(v)
	if err != nil {
		result.Condition = Failed
		result.Err = err
		return result
	}
	result.Coverage = ev.Depth
	result.VariantReads = ev.Alt
	if result.Score, result.Condition, err = Score(ev.Depth, ev.Alt, params); err != nil {
		result.Condition = Failed
		result.Err = err
	}
	return result
}

// ScoreVCF is the scoring stage entry point: it reads the variant list from
// vcfPath, scores every variant against the alignments at bamPath, and
// writes the results table to outPath.  Unreadable inputs abort before any
// scoring; per-variant failures do not.
func ScoreVCF(ctx context.Context, vcfPath, bamPath, outPath string, opts Opts) (err error) {
	indexPath := opts.BamIndexPath
	if indexPath == "" {
		indexPath = bamPath + ".bai"
	}
	// The provider opens the index lazily, which would smear a missing index
	// into one failure per variant.  Check it up front so a missing or
	// unreadable index is a single fatal error instead.
	if _, err = file.Stat(ctx, indexPath); err != nil {
		return fmt.Errorf("ScoreVCF: alignment index %s: %v", indexPath, err)
	}

	var f *vcf.File
	if f, err = vcf.Open(ctx, vcfPath); err != nil {
		return fmt.Errorf("ScoreVCF: reading %s: %v", vcfPath, err)
	}
	var variants []vcf.Variant
	nSkipped := 0
	for _, rec := range f.Records {
		vs, e := rec.Variants()
		if e != nil {
			// Non-numeric POS placeholder lines are not scorable identities.
			nSkipped++
			continue
		}
		variants = append(variants, vs...)
	}
	if nSkipped != 0 {
		log.Printf("ScoreVCF: skipped %d records without a numeric POS", nSkipped)
	}

	provider := bamprovider.NewProvider(bamPath, bamprovider.ProviderOpts{Index: indexPath})
	defer func() {
		if e := provider.Close(); e != nil && err == nil {
			err = e
		}
	}()
	var extractor *pileup.Extractor
	if extractor, err = pileup.NewExtractor(provider, opts.Pileup); err != nil {
		return fmt.Errorf("ScoreVCF: reading %s header: %v", bamPath, err)
	}

	log.Printf("ScoreVCF: scoring %d variants", len(variants))
	var results []Result
	if results, err = ScoreVariants(variants, extractor, opts.Params, opts.Parallelism); err != nil {
		return
	}
	if err = WriteTable(ctx, outPath, results); err != nil {
		return
	}
	log.Printf("ScoreVCF: wrote %d rows to %s", len(results), outPath)
	return
}
