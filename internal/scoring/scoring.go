// Package scoring computes the deterministic rule score of a news item:
// weighted keyword hits per field, source and synergy bonuses, a clamp and
// the promotional cap.
package scoring

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/deusflow/shorts-hunter/internal/keywords"
	"github.com/deusflow/shorts-hunter/internal/textnorm"
)

const (
	MaxScore = 40
	PromoCap = 10

	GovBonus     = 4
	EconBonus    = 1
	SynergyBonus = 4
)

// DefaultGovSources are official outlets that earn the government bonus.
var DefaultGovSources = []string{"korea_policy", "mohw_press", "moel_policy", "moef_press", "molit_press"}

// DefaultEconSources are economic-press outlets that earn the smaller bonus.
var DefaultEconSources = []string{"mk_economy", "hk_economy", "donga_economy"}

// DefaultPromoTerms mark ceremonial or promotional coverage.
var DefaultPromoTerms = []string{"개최", "기념식", "캠페인", "행사", "간담회", "토론회"}

type Input struct {
	Title       string
	Summary     string
	ContentText string
	SourceID    string
}

type Result struct {
	Score   int
	Reasons []string
	RawSum  float64
}

type fieldWeight struct {
	name   string
	weight float64
}

var (
	titleField   = fieldWeight{"title", 1.0}
	summaryField = fieldWeight{"summary", 0.6}
	contentField = fieldWeight{"content", 0.3}
)

type Scorer struct {
	gov   map[string]bool
	econ  map[string]bool
	promo []string
}

func New() *Scorer {
	return NewWithSources(DefaultGovSources, DefaultEconSources)
}

// NewWithSources builds a scorer with custom bonus source lists.
func NewWithSources(gov, econ []string) *Scorer {
	s := &Scorer{
		gov:   make(map[string]bool, len(gov)),
		econ:  make(map[string]bool, len(econ)),
		promo: DefaultPromoTerms,
	}
	for _, id := range gov {
		s.gov[id] = true
	}
	for _, id := range econ {
		s.econ[id] = true
	}
	return s
}

func (s *Scorer) Score(in Input, dict keywords.Dictionary) Result {
	var (
		raw     float64
		reasons []string
	)

	fields := []struct {
		fw   fieldWeight
		text string
	}{
		{titleField, in.Title},
		{summaryField, in.Summary},
		{contentField, in.ContentText},
	}
	for _, f := range fields {
		if f.text == "" {
			continue
		}
		sum, hits := scanField(f.fw.name, textnorm.ForMatch(f.text), dict)
		raw += float64(sum) * f.fw.weight
		reasons = append(reasons, hits...)
	}

	switch {
	case s.gov[in.SourceID]:
		raw += GovBonus
		reasons = append(reasons, "bonus:gov(+4)")
	case s.econ[in.SourceID]:
		raw += EconBonus
		reasons = append(reasons, "bonus:econpress(+1)")
	}

	combined := textnorm.ForMatch(in.Title + " " + in.Summary)
	if groupHit(dict.Change, combined) && groupHit(dict.Life, combined) {
		raw += SynergyBonus
		reasons = append(reasons, "bonus:synergy(+4)")
	}

	score := clamp(int(math.Floor(raw+0.5)), 0, MaxScore)

	for _, term := range s.promo {
		if strings.Contains(combined, term) {
			score = min(score, PromoCap)
			reasons = append(reasons, fmt.Sprintf("cap:promo(max %d)", PromoCap))
			break
		}
	}

	return Result{Score: score, Reasons: reasons, RawSum: raw}
}

// scanField matches change, life and noise terms against already simplified
// text, in that order.
func scanField(field, text string, dict keywords.Dictionary) (int, []string) {
	var (
		sum  int
		hits []string
	)
	for _, g := range []keywords.Group{dict.Change, dict.Life, dict.Noise} {
		for _, t := range g {
			if !matches(text, t.Term) {
				continue
			}
			sum += t.Weight
			hits = append(hits, field+":"+t.Term+"("+signed(t.Weight)+")")
		}
	}
	return sum, hits
}

func groupHit(g keywords.Group, text string) bool {
	for _, t := range g {
		if matches(text, t.Term) {
			return true
		}
	}
	return false
}

// matches compares against the lower-cased term so Latin terms like "DSR"
// still hit the lower-cased text.
func matches(text, term string) bool {
	if term == "" {
		return false
	}
	return strings.Contains(text, strings.ToLower(term))
}

func signed(w int) string {
	if w > 0 {
		return "+" + strconv.Itoa(w)
	}
	return strconv.Itoa(w)
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
