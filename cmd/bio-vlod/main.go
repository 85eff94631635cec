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
package main

import (
	"fmt"
	"log"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/vlod/lod"
	"github.com/grailbio/vlod/pileup"
	"v.io/x/lib/cmdline"
)

func newCmdScore() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "score",
		Short:    "Score the detectability of each VCF variant against a BAM",
		ArgsName: "vcfpath bampath outpath",
	}
	opts := lod.DefaultOpts
	cmd.Flags.StringVar(&opts.BamIndexPath, "index", "", "Input BAM index path. Defaults to bampath + .bai")
	cmd.Flags.Float64Var(&opts.Params.TPRate, "tp", lod.DefaultParams.TPRate, "Probability that a true variant's read shows the alt allele")
	cmd.Flags.Float64Var(&opts.Params.FPRate, "fp", lod.DefaultParams.FPRate, "Probability that an artifact's read shows the alt allele")
	cmd.Flags.Float64Var(&opts.Params.ErrRate, "se", lod.DefaultParams.ErrRate, "Per-base sequencing error probability")
	cmd.Flags.IntVar(&opts.Pileup.Mapq, "mapq", pileup.DefaultOpts.Mapq, "Reads with MAPQ below this level are skipped")
	cmd.Flags.IntVar(&opts.Pileup.MinBaseQual, "min-base-qual", pileup.DefaultOpts.MinBaseQual, "Reads whose base quality at the variant position is below this level are skipped")
	cmd.Flags.IntVar(&opts.Pileup.FlagExclude, "flag-exclude", pileup.DefaultOpts.FlagExclude, "Reads with a FLAG bit intersecting this value are skipped")
	cmd.Flags.IntVar(&opts.Pileup.MaxReadSpan, "max-read-span", pileup.DefaultOpts.MaxReadSpan, "Upper bound on size of reference-genome region a read maps to")
	cmd.Flags.IntVar(&opts.Parallelism, "parallelism", 0, "Maximum number of simultaneous scoring jobs; 0 = runtime.NumCPU()")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 3 {
			return fmt.Errorf("score takes vcfpath bampath outpath, but got %v", argv)
		}
		return lod.ScoreVCF(vcontext.Background(), argv[0], argv[1], argv[2], opts)
	})
	return cmd
}

func newCmdMerge() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "merge",
		Short:    "Annotate a VCF with a previously computed detectability table",
		ArgsName: "vcfpath tablepath outpath",
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 3 {
			return fmt.Errorf("merge takes vcfpath tablepath outpath, but got %v", argv)
		}
		return lod.Merge(vcontext.Background(), argv[0], argv[1], argv[2])
	})
	return cmd
}

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(
		&cmdline.Command{
			Name:     "bio-vlod",
			Short:    "Variant detectability scoring against matched sequencing reads",
			LookPath: false,
			Children: []*cmdline.Command{
				newCmdScore(),
				newCmdMerge(),
			},
		})
}
