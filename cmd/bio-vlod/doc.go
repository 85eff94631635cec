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

/*
Given a VCF and a matched, indexed BAM, bio-vlod reports whether each variant
in the VCF would be statistically detectable from the aligned reads.  For
each variant it extracts the allele-support pileup at the variant's position
and computes a binomial log-odds score comparing a true-variant hypothesis
against a sequencing-artifact hypothesis; a score at or above zero classifies
the variant as Detectable.

The score subcommand writes one TSV row per variant:

bio-vlod score \
    --tp 0.999 --fp 0.001 --se 0.0001 \
    my.vcf.gz \
    my.bam \
    detectability.tsv.gz

The merge subcommand re-attaches a previously computed table to the VCF it
came from, adding DET/DETS/DETC/DETVR INFO fields to each record (or the "."
missing sentinel for records without a matching row):

bio-vlod merge my.vcf.gz detectability.tsv.gz annotated.vcf

Per-variant failures (for example a variant on a contig absent from the BAM)
do not abort a run; they are logged, written as rows with condition Failed
and score NA, and the command still exits zero.  Missing or unreadable input
files exit non-zero before any scoring.
*/
package main
