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

// Package lod scores the detectability of VCF variants against matched
// aligned reads, and merges previously computed scores back into a VCF.
//
// The detectability score is a log-odds ratio comparing two hypotheses for
// the observed allele counts at a variant's position: that the variant is a
// true positive sampled at the true-positive rate, versus a false positive
// or sequencing artifact sampled at the false-positive rate, both observed
// through a symmetric sequencing-error channel.  Support counts combine
// through a binomial likelihood, so the score is additive in the per-read
// log-odds.
package lod

import (
	"fmt"
	"math"
)

// Params holds the process-wide model parameters.  They are immutable for a
// whole scoring pass; there are no per-variant overrides.
type Params struct {
	// ErrRate is the per-base sequencing error rate (epsilon).
	ErrRate float64
	// TPRate is the rate at which a true variant's reads show the alt
	// allele.
	TPRate float64
	// FPRate is the rate at which an artifact's reads show the alt allele.
	FPRate float64
}

// DefaultParams mirrors the rates commonly used for hybrid-capture panels.
var DefaultParams = Params{
	ErrRate: 0.0001,
	TPRate:  0.999,
	FPRate:  0.001,
}

// Validate rejects parameters outside the model's domain.  Out-of-range
// values are reported, never clamped.
func (p Params) Validate() error {
	if p.ErrRate <= 0 || p.ErrRate >= 1 {
		return fmt.Errorf("lod: sequencing error rate %v outside (0,1)", p.ErrRate)
	}
	if p.TPRate <= 0 || p.TPRate >= 1 {
		return fmt.Errorf("lod: true-positive rate %v outside (0,1)", p.TPRate)
	}
	if p.FPRate <= 0 || p.FPRate >= 1 {
		return fmt.Errorf("lod: false-positive rate %v outside (0,1)", p.FPRate)
	}
	if p.TPRate <= p.FPRate {
		return fmt.Errorf("lod: true-positive rate %v must exceed false-positive rate %v", p.TPRate, p.FPRate)
	}
	return nil
}

// Condition is the binary classification derived from a score.
type Condition int

const (
	// NonDetectable means the evidence favors the artifact hypothesis.
	NonDetectable Condition = iota
	// Detectable means the evidence favors the true-variant hypothesis.
	Detectable
	// Failed marks a variant whose evidence could not be computed; it only
	// appears in results tables, never as a Score classification.
	Failed
)

var conditionNames = [...]string{"Non-detectable", "Detectable", "Failed"}

func (c Condition) String() string { return conditionNames[c] }

// ParseCondition is the inverse of Condition.String.
func ParseCondition(s string) (Condition, error) {
	for i, name := range conditionNames {
		if s == name {
			return Condition(i), nil
		}
	}
	return NonDetectable, fmt.Errorf("lod: unknown detectability condition %q", s)
}

// DetectableThreshold is the classification cut on the log-odds score: a
// score at or above it classifies as Detectable.  Zero is the natural
// log-odds decision boundary (the two hypotheses are equally likely).
const DetectableThreshold = 0.0

// minProb bounds the per-read probabilities away from 0 and 1 before taking
// logs, so saturated counts can never feed NaNs into the arithmetic.
const minProb = 1e-300

// altProb is the probability that one read shows the alt allele when the
// underlying signal rate is r and bases pass through a symmetric error
// channel with rate errRate.
func altProb(r, errRate float64) float64 {
	p := r*(1-errRate) + (1-r)*errRate
	if p < minProb {
		p = minProb
	} else if p > 1-minProb {
		p = 1 - minProb
	}
	return p
}

// Score computes the log-odds detectability score and its classification
// for variantReads supporting reads out of coverage total.
//
// Zero coverage is a valid degenerate input: there is no evidence either
// way, so the score is the -Inf sentinel and the variant Non-detectable.
func Score(coverage, variantReads uint32, p Params) (float64, Condition, error) {
	if err := p.Validate(); err != nil {
		return 0, NonDetectable, err
	}
	if variantReads > coverage {
		return 0, NonDetectable, fmt.Errorf("lod: variant reads %d exceed coverage %d", variantReads, coverage)
	}
	if coverage == 0 {
		return math.Inf(-1), NonDetectable, nil
	}
	pTP := altProb(p.TPRate, p.ErrRate)
	pFP := altProb(p.FPRate, p.ErrRate)
	k := float64(variantReads)
	n := float64(coverage)
	score := k*math.Log(pTP/pFP) + (n-k)*math.Log((1-pTP)/(1-pFP))
	if score >= DetectableThreshold {
		return score, Detectable, nil
	}
	return score, NonDetectable, nil
}
