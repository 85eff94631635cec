// Package vcf contains code for reading and writing Variant Call Format
// files.  See https://samtools.github.io/hts-specs/VCFv4.2.pdf.  Briefly, a
// VCF file consists of '##' metadata lines, one '#CHROM' column-header line,
// and one tab-separated record per variant site:
//
// ##fileformat=VCFv4.2
// #CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO
// chr1	12345	.	A	T	50	PASS	DP=100
//
// Records are kept as verbatim column slices so that a read-modify-write
// cycle preserves every byte of the columns this package does not touch.
package vcf

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	chromCol = 0
	posCol   = 1
	refCol   = 3
	altCol   = 4
	infoCol  = 7

	// minColumns is the column count mandated by the VCF spec for sites-only
	// files (through INFO).
	minColumns = 8

	bufferInitSize = 16 * 1024 * 1024
)

// Variant identifies a single alt allele at a single site.  Chrom and the
// alleles are whitespace-trimmed, and the alleles upper-cased, at
// construction time so that identity comparisons are insensitive to
// formatting differences between producers.
type Variant struct {
	Chrom string
	// Pos is the 1-based position from the POS column.
	Pos int
	Ref string
	Alt string
}

// NewVariant normalizes the given identity tuple into a Variant.
func NewVariant(chrom string, pos int, ref, alt string) Variant {
	return Variant{
		Chrom: strings.TrimSpace(chrom),
		Pos:   pos,
		Ref:   strings.ToUpper(strings.TrimSpace(ref)),
		Alt:   strings.ToUpper(strings.TrimSpace(alt)),
	}
}

// Key returns the join key "chrom_pos_ref_alt" used to match a variant
// against externally produced per-variant tables.  It doubles as the
// human-readable VCF_ID in those tables.
func (v Variant) Key() string {
	return v.Chrom + "_" + strconv.Itoa(v.Pos) + "_" + v.Ref + "_" + v.Alt
}

// Record is one data line of a VCF file, split into its tab-separated
// columns but otherwise untouched.
type Record struct {
	Fields []string
}

// Chrom returns the CHROM column.
func (r *Record) Chrom() string { return r.Fields[chromCol] }

// Pos returns the POS column parsed as a 1-based position.  Lines with a
// non-numeric POS do occur in the wild (e.g. gVCF telomere placeholders);
// callers are expected to skip such records rather than fail.
func (r *Record) Pos() (int, error) {
	pos, err := strconv.Atoi(r.Fields[posCol])
	if err != nil {
		return 0, errors.Errorf("vcf: non-numeric POS %q", r.Fields[posCol])
	}
	return pos, nil
}

// Ref returns the REF column.
func (r *Record) Ref() string { return r.Fields[refCol] }

// Alt returns the raw ALT column, possibly comma-separated.
func (r *Record) Alt() string { return r.Fields[altCol] }

// Info returns the INFO column.
func (r *Record) Info() string { return r.Fields[infoCol] }

// SetInfo replaces the INFO column.
func (r *Record) SetInfo(info string) { r.Fields[infoCol] = info }

// AppendInfo appends key=value entries to the INFO column, replacing a bare
// "." placeholder instead of appending to it.
func (r *Record) AppendInfo(entries string) {
	if info := r.Fields[infoCol]; info == "." || info == "" {
		r.Fields[infoCol] = entries
	} else {
		r.Fields[infoCol] = info + ";" + entries
	}
}

// Variants expands the record into one Variant per alt allele.  Records
// whose ALT is "." (monomorphic reference) expand to nothing.
func (r *Record) Variants() ([]Variant, error) {
	pos, err := r.Pos()
	if err != nil {
		return nil, err
	}
	alt := r.Alt()
	if alt == "." || alt == "" {
		return nil, nil
	}
	var variants []Variant
	for _, a := range strings.Split(alt, ",") {
		variants = append(variants, NewVariant(r.Chrom(), pos, r.Ref(), a))
	}
	return variants, nil
}

// String reassembles the record's tab-separated form.
func (r *Record) String() string {
	return strings.Join(r.Fields, "\t")
}

// File holds a fully parsed VCF: the verbatim header lines (both '##'
// metadata and the '#CHROM' column header) and all data records, in input
// order.
type File struct {
	HeaderLines []string
	Records     []*Record
}

// Read parses VCF data from r.  The reader must yield uncompressed text;
// see Open for transparent gzip handling.
func Read(r io.Reader) (*File, error) {
	f := &File{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, bufferInitSize)
	nLine := 0
	for scanner.Scan() {
		nLine++
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		if line[0] == '#' {
			f.HeaderLines = append(f.HeaderLines, line)
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < minColumns {
			return nil, errors.Errorf("vcf: line %d: %d columns, expected at least %d", nLine, len(fields), minColumns)
		}
		f.Records = append(f.Records, &Record{Fields: fields})
	}
	if scanner.Err() != nil {
		return nil, errors.Wrap(scanner.Err(), "couldn't read VCF data")
	}
	return f, nil
}

// InsertInfoHeaders inserts ##INFO metadata lines immediately before the
// #CHROM column-header line, or at the end of the header block if the file
// has no column-header line.
func (f *File) InsertInfoHeaders(lines []string) {
	n := len(f.HeaderLines)
	if n > 0 && strings.HasPrefix(f.HeaderLines[n-1], "#CHROM") {
		header := make([]string, 0, n+len(lines))
		header = append(header, f.HeaderLines[:n-1]...)
		header = append(header, lines...)
		header = append(header, f.HeaderLines[n-1])
		f.HeaderLines = header
		return
	}
	f.HeaderLines = append(f.HeaderLines, lines...)
}

// Write emits the file in VCF text form.
func (f *File) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, line := range f.HeaderLines {
		if _, err := bw.WriteString(line); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	for _, rec := range f.Records {
		for i, field := range rec.Fields {
			if i > 0 {
				if err := bw.WriteByte('\t'); err != nil {
					return err
				}
			}
			if _, err := bw.WriteString(field); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}
