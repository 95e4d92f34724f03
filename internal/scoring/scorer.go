package scoring

import (
	"sort"
	"strings"
	"time"

	"github.com/miyazaki-CS/bidding-system/internal/model"
)

// Match boosts: a keyword found in the title counts its weight 30-fold,
// a keyword found only in the body 10-fold. Tier thresholds are tuned
// against these factors, so they are constants, not configuration.
const (
	titleBoost = 30
	bodyBoost  = 10

	// MaxScore caps the final score.
	MaxScore = 100
)

var kantoRegions = []string{"東京", "神奈川", "千葉", "埼玉"}
var kansaiRegions = []string{"大阪", "京都", "兵庫"}
var municipalSuffixes = []string{"市", "区", "町", "村"}

// Scorer computes relevance scores against a fixed keyword set.
// Matching is case-insensitive substring search over title and body;
// the algorithm is deterministic for a given posting, keyword set and
// reference time.
type Scorer struct {
	keywords []model.Keyword // include-category only
}

// NewScorer builds a Scorer from the include keywords. Keywords with a
// non-positive weight default to weight 1.
func NewScorer(keywords []model.Keyword) *Scorer {
	ks := make([]model.Keyword, 0, len(keywords))
	for _, k := range keywords {
		if k.Term == "" {
			continue
		}
		if k.Weight <= 0 {
			k.Weight = 1
		}
		ks = append(ks, k)
	}
	return &Scorer{keywords: ks}
}

// Score computes the relevance score for p. now is the run start time and
// only influences the deadline-headroom bonus; passing it explicitly keeps
// Score a pure function of its inputs.
func (s *Scorer) Score(p model.Posting, now time.Time) (int, []string) {
	title := strings.ToLower(p.Title)
	body := strings.ToLower(p.Body)

	score := 0
	var matched []string
	for _, k := range s.keywords {
		term := strings.ToLower(k.Term)
		switch {
		case strings.Contains(title, term):
			score += k.Weight * titleBoost
			matched = append(matched, k.Term)
		case strings.Contains(body, term):
			score += k.Weight * bodyBoost
			matched = append(matched, k.Term)
		}
	}

	score += budgetBonus(p.BudgetAmount)
	score += regionBonus(p.Region)
	score += organizationBonus(p.Organization)
	score += deadlineBonus(p.DeadlineAt, now)

	if score > MaxScore {
		score = MaxScore
	}
	sort.Strings(matched)
	return score, matched
}

// budgetBonus rewards larger contracts: ≥10M yen +20, ≥5M +15, ≥1M +10.
func budgetBonus(budget *int64) int {
	if budget == nil {
		return 0
	}
	switch {
	case *budget >= 10_000_000:
		return 20
	case *budget >= 5_000_000:
		return 15
	case *budget >= 1_000_000:
		return 10
	}
	return 0
}

// regionBonus prefers postings near the head office: Kanto +15, Kansai +10.
func regionBonus(region string) int {
	for _, r := range kantoRegions {
		if strings.Contains(region, r) {
			return 15
		}
	}
	for _, r := range kansaiRegions {
		if strings.Contains(region, r) {
			return 10
		}
	}
	return 0
}

// organizationBonus adds +5 for basic municipalities (市/区/町/村).
func organizationBonus(org string) int {
	for _, suffix := range municipalSuffixes {
		if strings.Contains(org, suffix) {
			return 5
		}
	}
	return 0
}

// deadlineBonus prefers postings with submission headroom:
// ≥14 days out +10, ≥7 days +5.
func deadlineBonus(deadline *time.Time, now time.Time) int {
	if deadline == nil {
		return 0
	}
	days := int(deadline.Sub(now).Hours() / 24)
	switch {
	case days >= 14:
		return 10
	case days >= 7:
		return 5
	}
	return 0
}
