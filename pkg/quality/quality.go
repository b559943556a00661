// Package quality implements the Quality Assessor (spec.md §4.E): five
// non-negative sub-scores per candidate item, combined into the fixed
// weighted overall defined in spec.md §3.
package quality

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/models"
)

// authorityTable is the table lookup from spec.md §4.E. Keys are the
// category labels a Provider Client's transform step assigns to
// CandidateItem.SourceAuthority.
var authorityTable = map[string]float64{
	"government": 1.0,
	"academic":   0.9,
	"museum":     0.85,
	"major_news": 0.8,
	"commercial": 0.7,
	"community":  0.5,
	"unknown":    0.3,
}

// interestingKeywords is the fixed ten-keyword list from spec.md §4.E's
// engagement_potential signal.
var interestingKeywords = []string{
	"secret", "hidden", "mystery", "legend", "ancient", "forbidden",
	"unique", "rare", "lost", "forgotten",
}

var yearPattern = regexp.MustCompile(`\b(\d{4})\b`)
var properNounPattern = regexp.MustCompile(`\b[A-Z][a-z]+\s+[A-Z][a-z]+\b`)

// Peer is a cross-referenced candidate from the same fan-out, used by
// cross_source_agreement to compare titles/dates/locations.
type Peer struct {
	Title    string
	Date     string
	Location string
}

// Assess computes the five §4.E sub-scores and the weighted overall
// for one CandidateItem against its cross-reference peers.
func Assess(item models.CandidateItem, peers []Peer, numSources int) models.QualityScore {
	sourceAuthority := scoreSourceAuthority(item)
	completeness := scoreCompleteness(item)
	agreement := scoreCrossSourceAgreement(item, peers)
	freshness := scoreFreshness(item.Date)
	engagement := scoreEngagementPotential(item)

	overall := models.WeightSourceAuthority*sourceAuthority +
		models.WeightCompleteness*completeness +
		models.WeightCrossSourceAgreement*agreement +
		models.WeightFreshness*freshness +
		models.WeightEngagementPotential*engagement

	confidence := (sourceAuthority+completeness+agreement)/3 + math.Min(0.1*float64(numSources), 0.3)
	if confidence > 1 {
		confidence = 1
	}

	return models.QualityScore{
		SourceAuthority:      sourceAuthority,
		Completeness:         completeness,
		CrossSourceAgreement: agreement,
		Freshness:            freshness,
		EngagementPotential:  engagement,
		Overall:              overall,
		Confidence:           confidence,
	}
}

// scoreSourceAuthority looks up SourceAuthority in the fixed table. An
// item produced by merging multiple sources carries the comma-joined
// label of each contributor; the highest applicable value wins
// (spec.md §4.E "pick the maximum if multiple sources merged").
func scoreSourceAuthority(item models.CandidateItem) float64 {
	labels := strings.Split(item.SourceAuthority, ",")
	best := authorityTable["unknown"]
	found := false
	for _, label := range labels {
		label = strings.TrimSpace(strings.ToLower(label))
		if v, ok := authorityTable[label]; ok {
			if !found || v > best {
				best = v
				found = true
			}
		}
	}
	return best
}

func scoreCompleteness(item models.CandidateItem) float64 {
	var score float64
	if strings.TrimSpace(item.Title) != "" {
		score += 0.3
	}
	if strings.TrimSpace(item.Body) != "" {
		score += 0.3
	}
	if strings.TrimSpace(item.Location) != "" {
		score += 0.15
	}
	if strings.TrimSpace(item.Date) != "" {
		score += 0.10
	}
	if strings.TrimSpace(item.SourceName) != "" {
		score += 0.05
	}
	if hasURLReference(item) {
		score += 0.05
	}
	if len(item.Topics) > 0 {
		score += 0.05
	}
	if score > 1 {
		score = 1
	}
	return score
}

func hasURLReference(item models.CandidateItem) bool {
	if strings.Contains(item.Body, "http://") || strings.Contains(item.Body, "https://") {
		return true
	}
	for _, ref := range item.MediaRefs {
		if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
			return true
		}
	}
	return false
}

// scoreCrossSourceAgreement averages, over cross-reference peers,
// whether title Jaccard similarity exceeds 0.7, dates match exactly,
// and locations substring-match (spec.md §4.E). With no peers it
// returns the documented default of 0.7.
func scoreCrossSourceAgreement(item models.CandidateItem, peers []Peer) float64 {
	if len(peers) == 0 {
		return 0.7
	}
	var sum float64
	for _, peer := range peers {
		var signals float64
		var count float64

		count++
		if jaccardSimilarity(item.Title, peer.Title) > 0.7 {
			signals++
		}
		if item.Date != "" && peer.Date != "" {
			count++
			if item.Date == peer.Date {
				signals++
			}
		}
		if item.Location != "" && peer.Location != "" {
			count++
			if strings.Contains(strings.ToLower(item.Location), strings.ToLower(peer.Location)) ||
				strings.Contains(strings.ToLower(peer.Location), strings.ToLower(item.Location)) {
				signals++
			}
		}
		if count > 0 {
			sum += signals / count
		}
	}
	return sum / float64(len(peers))
}

func jaccardSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	tokens := strings.Fields(strings.ToLower(s))
	out := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		out[t] = true
	}
	return out
}

// scoreFreshness parses a 4-digit year out of date and scores it as
// exp(-age_years/20); absent a year it returns the documented 0.5
// default (spec.md §4.E).
func scoreFreshness(date string) float64 {
	match := yearPattern.FindString(date)
	if match == "" {
		return 0.5
	}
	year, err := strconv.Atoi(match)
	if err != nil {
		return 0.5
	}
	age := float64(time.Now().Year() - year)
	if age < 0 {
		age = 0
	}
	return math.Exp(-age / 20)
}

// scoreEngagementPotential is additive over the binary signals named
// in spec.md §4.E, clipped to 1.
func scoreEngagementPotential(item models.CandidateItem) float64 {
	var score float64
	combined := item.Title + " " + item.Body
	lower := strings.ToLower(combined)

	if len(item.MediaRefs) > 0 {
		score += 0.3
	}

	switch {
	case len(item.Body) > 280:
		score += 0.2
	case len(item.Body) > 120:
		score += 0.1
	}

	keywordScore := 0.0
	for _, kw := range interestingKeywords {
		if strings.Contains(lower, kw) {
			keywordScore += 0.1
		}
	}
	if keywordScore > 0.3 {
		keywordScore = 0.3
	}
	score += keywordScore

	if yearPattern.MatchString(combined) {
		score += 0.1
	}
	if properNounPattern.MatchString(combined) {
		score += 0.1
	}

	if score > 1 {
		score = 1
	}
	return score
}
