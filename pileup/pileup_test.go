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
package pileup_test

import (
	"testing"

	"github.com/grailbio/bio/encoding/bamprovider"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/grailbio/vlod/encoding/vcf"
	"github.com/grailbio/vlod/pileup"
)

var (
	testRef, _    = sam.NewReference("chr1", "", "", 10000, nil, nil)
	testHeader, _ = sam.NewHeader(nil, []*sam.Reference{testRef})
)

// read builds a mapped test read with uniform base quality.
func read(name string, pos int, seq string, qual byte, cigar ...sam.CigarOp) *sam.Record {
	quals := make([]byte, len(seq))
	for i := range quals {
		quals[i] = qual
	}
	if len(cigar) == 0 {
		cigar = []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, len(seq))}
	}
	return &sam.Record{
		Name:  name,
		Ref:   testRef,
		Pos:   pos,
		MapQ:  60,
		Cigar: cigar,
		Seq:   sam.NewSeq([]byte(seq)),
		Qual:  quals,
	}
}

func extract(t *testing.T, recs []*sam.Record, v vcf.Variant, opts pileup.Opts) (pileup.Evidence, error) {
	provider := bamprovider.NewFakeProvider(testHeader, recs)
	extractor, err := pileup.NewExtractor(provider, opts)
	assert.NoError(t, err)
	return extractor.Extract(v)
}

func TestExtractSNV(t *testing.T) {
	// Variant at 1-based position 1001, i.e. 0-based 1000.
	v := vcf.NewVariant("chr1", 1001, "A", "T")
	lowmapq := read("lowmapq", 995, "CCCCCTCCCC", 40)
	lowmapq.MapQ = 5
	recs := []*sam.Record{
		// Ends before the position.
		read("upstream", 980, "CCCCCCCCCC", 40),
		// Base T at offset 5 of a read starting at 995.
		read("alt1", 995, "CCCCCTCCCC", 40),
		read("ref1", 995, "CCCCCACCCC", 40),
		read("other1", 995, "CCCCCGCCCC", 40),
		// Deletion spanning the variant position.
		read("del1", 995, "CCCCCCCCCC", 40,
			sam.NewCigarOp(sam.CigarMatch, 4),
			sam.NewCigarOp(sam.CigarDeletion, 3),
			sam.NewCigarOp(sam.CigarMatch, 6)),
		// Low mapping quality; must be excluded entirely.
		lowmapq,
		read("alt2", 1000, "TGGGGGGGGG", 40),
		// Starts after the position.
		read("downstream", 1001, "CCCCCCCCCC", 40),
	}
	opts := pileup.DefaultOpts
	opts.Mapq = 20
	ev, err := extract(t, recs, v, opts)
	assert.NoError(t, err)
	expect.EQ(t, ev, pileup.Evidence{Depth: 5, Ref: 1, Alt: 2, Other: 2})
}

func TestExtractMNV(t *testing.T) {
	v := vcf.NewVariant("chr1", 1001, "AC", "TG")
	recs := []*sam.Record{
		// Alignment ends mid-window.
		read("short1", 992, "CCCCCCCCT", 40),
		read("alt1", 998, "CCTGCCCCCC", 40),
		read("ref1", 998, "CCACCCCCCC", 40),
		// Matches neither allele string.
		read("other1", 998, "CCTCCCCCCC", 40),
	}
	ev, err := extract(t, recs, v, pileup.DefaultOpts)
	assert.NoError(t, err)
	expect.EQ(t, ev, pileup.Evidence{Depth: 4, Ref: 1, Alt: 1, Other: 2})
}

func TestExtractInsertion(t *testing.T) {
	v := vcf.NewVariant("chr1", 1001, "A", "AT")
	recs := []*sam.Record{
		// Insertion of 1 base immediately after the anchor base.
		read("alt1", 995, "CCCCCATCCCC", 40,
			sam.NewCigarOp(sam.CigarMatch, 6),
			sam.NewCigarOp(sam.CigarInsertion, 1),
			sam.NewCigarOp(sam.CigarMatch, 4)),
		// No indel at the anchor.
		read("ref1", 995, "CCCCCACCCC", 40),
		// Insertion of the wrong length.
		read("other1", 995, "CCCCCATTCCCC", 40,
			sam.NewCigarOp(sam.CigarMatch, 6),
			sam.NewCigarOp(sam.CigarInsertion, 2),
			sam.NewCigarOp(sam.CigarMatch, 4)),
	}
	ev, err := extract(t, recs, v, pileup.DefaultOpts)
	assert.NoError(t, err)
	expect.EQ(t, ev, pileup.Evidence{Depth: 3, Ref: 1, Alt: 1, Other: 1})
}

func TestExtractDeletion(t *testing.T) {
	v := vcf.NewVariant("chr1", 1001, "AT", "A")
	recs := []*sam.Record{
		read("alt1", 995, "CCCCCACCCC", 40,
			sam.NewCigarOp(sam.CigarMatch, 6),
			sam.NewCigarOp(sam.CigarDeletion, 1),
			sam.NewCigarOp(sam.CigarMatch, 4)),
		read("ref1", 995, "CCCCCATCCC", 40),
	}
	ev, err := extract(t, recs, v, pileup.DefaultOpts)
	assert.NoError(t, err)
	expect.EQ(t, ev, pileup.Evidence{Depth: 2, Ref: 1, Alt: 1})
}

func TestExtractZeroDepth(t *testing.T) {
	v := vcf.NewVariant("chr1", 5001, "A", "T")
	recs := []*sam.Record{
		read("far", 100, "CCCCCCCCCC", 40),
	}
	ev, err := extract(t, recs, v, pileup.DefaultOpts)
	assert.NoError(t, err)
	expect.EQ(t, ev, pileup.Evidence{})
}

func TestExtractBaseQualFilter(t *testing.T) {
	v := vcf.NewVariant("chr1", 1001, "A", "T")
	recs := []*sam.Record{
		read("lowqual", 995, "CCCCCTCCCC", 10),
		read("highqual", 995, "CCCCCTCCCC", 40),
	}
	opts := pileup.DefaultOpts
	opts.MinBaseQual = 20
	ev, err := extract(t, recs, v, opts)
	assert.NoError(t, err)
	expect.EQ(t, ev, pileup.Evidence{Depth: 1, Alt: 1})
}

func TestExtractBadCoordinates(t *testing.T) {
	_, err := extract(t, nil, vcf.NewVariant("chrMissing", 100, "A", "T"), pileup.DefaultOpts)
	expect.NotNil(t, err)
	_, err = extract(t, nil, vcf.NewVariant("chr1", 99999, "A", "T"), pileup.DefaultOpts)
	expect.NotNil(t, err)
	_, err = extract(t, nil, vcf.NewVariant("chr1", 0, "A", "T"), pileup.DefaultOpts)
	expect.NotNil(t, err)
}
