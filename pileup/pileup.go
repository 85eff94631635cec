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

// Package pileup extracts per-variant allele-support evidence from an
// indexed BAM/PAM.  Unlike a whole-genome pileup, it answers a point query:
// given one variant, how many overlapping reads support the ref allele, the
// alt allele, or neither.
package pileup

import (
	"fmt"
	"strings"

	gbam "github.com/grailbio/bio/encoding/bam"
	"github.com/grailbio/bio/encoding/bamprovider"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/vlod/encoding/vcf"
)

type Opts struct {
	// Mapq is the minimum mapping quality; reads below it are excluded.
	Mapq int
	// MinBaseQual is the minimum base quality at the variant position; reads
	// below it are excluded.
	MinBaseQual int
	// FlagExclude skips reads with an intersecting FLAG bit.
	FlagExclude int
	// MaxReadSpan is an upper bound on the size of the reference-genome
	// region a single read maps to.  It bounds how far before the variant
	// position the extractor must look for overlapping reads.
	MaxReadSpan int
}

var DefaultOpts = Opts{
	Mapq:        0,
	MinBaseQual: 0,
	FlagExclude: int(sam.Unmapped | sam.Secondary | sam.QCFail | sam.Duplicate | sam.Supplementary),
	MaxReadSpan: 511,
}

// Evidence summarizes the reads overlapping one variant's position.
// Depth == Ref + Alt + Other always holds.
type Evidence struct {
	// Depth is the total number of overlapping reads surviving the filters.
	Depth uint32
	// Ref counts reads whose alignment supports the reference allele.
	Ref uint32
	// Alt counts reads whose alignment supports the alternate allele.
	Alt uint32
	// Other counts reads that overlap the position but support neither
	// allele (different base, different indel length, or a spanning
	// deletion).
	Other uint32
}

// Extractor performs point pileup queries against one alignment source.  It
// is safe for concurrent use: each Extract call obtains its own iterator
// from the provider, so no cursor state is shared between goroutines.
type Extractor struct {
	provider bamprovider.Provider
	opts     Opts
	refs     map[string]*sam.Reference
}

// NewExtractor reads the alignment source's header and prepares an
// Extractor.  The provider must stay open for the Extractor's lifetime.
func NewExtractor(provider bamprovider.Provider, opts Opts) (*Extractor, error) {
	header, err := provider.GetHeader()
	if err != nil {
		return nil, err
	}
	refs := make(map[string]*sam.Reference, len(header.Refs()))
	for _, ref := range header.Refs() {
		refs[ref.Name()] = ref
	}
	return &Extractor{provider: provider, opts: opts, refs: refs}, nil
}

// Extract counts the reads supporting each allele of v.  A position with no
// overlapping reads yields the zero Evidence; an unknown contig or a
// position outside the contig's bounds is an error.
func (x *Extractor) Extract(v vcf.Variant) (ev Evidence, err error) {
	ref, ok := x.refs[v.Chrom]
	if !ok {
		err = fmt.Errorf("pileup.Extract: contig %s not in BAM/PAM header", v.Chrom)
		return
	}
	pos := v.Pos - 1 // 0-based
	if pos < 0 || pos >= ref.Len() {
		err = fmt.Errorf("pileup.Extract: position %s:%d outside contig bounds [1, %d]", v.Chrom, v.Pos, ref.Len())
		return
	}
	shard := gbam.Shard{
		StartRef: ref,
		EndRef:   ref,
		Start:    pos,
		End:      pos + 1,
		Padding:  x.opts.MaxReadSpan,
	}
	iter := x.provider.NewIterator(shard)
	defer func() {
		if e := iter.Close(); e != nil && err == nil {
			err = e
		}
	}()
	for iter.Scan() {
		samr := iter.Record()
		if samr.Pos > pos {
			// Reads are position-sorted; nothing past this point overlaps.
			sam.PutInFreePool(samr)
			break
		}
		if (x.opts.FlagExclude&int(samr.Flags) != 0) || (x.opts.Mapq > int(samr.MapQ)) || (len(samr.Cigar) == 0) {
			sam.PutInFreePool(samr)
			continue
		}
		span, _ := samr.Cigar.Lengths()
		if span > x.opts.MaxReadSpan {
			err = fmt.Errorf("pileup.Extract: maxReadSpan is %d, but read %s at %s:%d has span %d",
				x.opts.MaxReadSpan, samr.Name, v.Chrom, samr.Pos+1, span)
			sam.PutInFreePool(samr)
			return
		}
		if samr.Pos+span <= pos {
			sam.PutInFreePool(samr)
			continue
		}
		x.countRead(&ev, samr, pos, v)
		sam.PutInFreePool(samr)
	}
	return
}

// countRead classifies one overlapping read's support and updates ev.
func (x *Extractor) countRead(ev *Evidence, samr *sam.Record, pos int, v vcf.Variant) {
	aligned, qpos, indel := alignAtPos(samr.Cigar, samr.Pos, pos)
	if len(v.Ref) == len(v.Alt) {
		x.countBaseMatch(ev, samr, aligned, qpos, v)
		return
	}
	// Indel variant: support is decided by the length of the insertion or
	// deletion immediately following the anchor base, matched exactly
	// against len(alt)-len(ref).  No fuzzy or realigned matching.
	if !aligned {
		ev.Depth++
		ev.Other++
		return
	}
	if int(samr.Qual[qpos]) < x.opts.MinBaseQual {
		return
	}
	ev.Depth++
	switch indel {
	case len(v.Alt) - len(v.Ref):
		ev.Alt++
	case 0:
		ev.Ref++
	default:
		ev.Other++
	}
}

// countBaseMatch handles SNV and MNV variants: the aligned query substring
// of len(ref) bases is compared against each allele string.
func (x *Extractor) countBaseMatch(ev *Evidence, samr *sam.Record, aligned bool, qpos int, v vcf.Variant) {
	if !aligned {
		// A deletion or reference skip spans the locus: the read covers the
		// position but cannot support either allele string.
		ev.Depth++
		ev.Other++
		return
	}
	n := len(v.Ref)
	if qpos+n > len(samr.Qual) {
		ev.Depth++
		ev.Other++
		return
	}
	minQual := samr.Qual[qpos]
	for _, q := range samr.Qual[qpos+1 : qpos+n] {
		if q < minQual {
			minQual = q
		}
	}
	if int(minQual) < x.opts.MinBaseQual {
		return
	}
	ev.Depth++
	seq := strings.ToUpper(string(samr.Seq.Expand()[qpos : qpos+n]))
	switch seq {
	case v.Ref:
		ev.Ref++
	case v.Alt:
		ev.Alt++
	default:
		ev.Other++
	}
}

// alignAtPos walks the CIGAR to locate the query base aligned to reference
// position pos.  It returns whether such a base exists (false when a
// deletion or reference skip spans pos), its query index, and the length of
// the insertion (positive) or deletion (negative) immediately following pos,
// zero when the read continues with aligned bases.
func alignAtPos(cigar sam.Cigar, readStart, pos int) (aligned bool, qpos int, indel int) {
	posInRef := readStart
	posInRead := 0
	for i, co := range cigar {
		n := co.Len()
		switch co.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			if pos >= posInRef && pos < posInRef+n {
				qpos = posInRead + (pos - posInRef)
				if pos == posInRef+n-1 && i+1 < len(cigar) {
					switch cigar[i+1].Type() {
					case sam.CigarInsertion:
						indel = cigar[i+1].Len()
					case sam.CigarDeletion:
						indel = -cigar[i+1].Len()
					}
				}
				return true, qpos, indel
			}
			posInRef += n
			posInRead += n
		case sam.CigarInsertion, sam.CigarSoftClipped:
			posInRead += n
		case sam.CigarDeletion, sam.CigarSkipped:
			if pos >= posInRef && pos < posInRef+n {
				return false, 0, 0
			}
			posInRef += n
		default:
			// Hard clips and padding consume neither sequence.
		}
	}
	return false, 0, 0
}
