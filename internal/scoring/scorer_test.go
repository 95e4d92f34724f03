package scoring_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/miyazaki-CS/bidding-system/internal/model"
	"github.com/miyazaki-CS/bidding-system/internal/scoring"
)

var now = time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

func kw(term string, weight int) model.Keyword {
	return model.Keyword{Term: term, Category: "include", Weight: weight}
}

// ── Keyword matching ───────────────────────────────────────────────────────

func TestScore_TitleMatchOutweighsBodyMatch(t *testing.T) {
	s := scoring.NewScorer([]model.Keyword{kw("データ入力", 1)})

	inTitle := model.Posting{Title: "データ入力業務委託", Body: "アンケート集計"}
	inBody := model.Posting{Title: "業務委託", Body: "データ入力作業を含む"}

	titleScore, _ := s.Score(inTitle, now)
	bodyScore, _ := s.Score(inBody, now)

	if titleScore != 30 {
		t.Errorf("title match score = %d, want 30", titleScore)
	}
	if bodyScore != 10 {
		t.Errorf("body match score = %d, want 10", bodyScore)
	}
}

func TestScore_CaseInsensitive(t *testing.T) {
	s := scoring.NewScorer([]model.Keyword{kw("PC設定", 1)})
	p := model.Posting{Title: "pc設定およびキッティング"}
	got, matched := s.Score(p, now)
	if got != 30 {
		t.Errorf("score = %d, want 30 (case-insensitive title match)", got)
	}
	if !reflect.DeepEqual(matched, []string{"PC設定"}) {
		t.Errorf("matched = %v, want [PC設定]", matched)
	}
}

func TestScore_WeightedKeywordCapsAtHundred(t *testing.T) {
	// キッティング weight=100 in the title → 100×30 capped at 100.
	s := scoring.NewScorer([]model.Keyword{kw("キッティング", 100)})
	p := model.Posting{Title: "キッティング作業員募集"}
	got, matched := s.Score(p, now)
	if got != 100 {
		t.Errorf("score = %d, want 100", got)
	}
	if !reflect.DeepEqual(matched, []string{"キッティング"}) {
		t.Errorf("matched = %v, want [キッティング]", matched)
	}
}

func TestScore_NoMatchIsZero(t *testing.T) {
	s := scoring.NewScorer([]model.Keyword{kw("コールセンター", 1)})
	p := model.Posting{Title: "道路建設工事", Body: "橋梁補修"}
	got, matched := s.Score(p, now)
	if got != 0 {
		t.Errorf("score = %d, want 0", got)
	}
	if len(matched) != 0 {
		t.Errorf("matched = %v, want none", matched)
	}
}

func TestScore_ZeroWeightDefaultsToOne(t *testing.T) {
	s := scoring.NewScorer([]model.Keyword{kw("事務業務", 0)})
	p := model.Posting{Title: "事務業務委託"}
	if got, _ := s.Score(p, now); got != 30 {
		t.Errorf("score = %d, want 30 (weight defaults to 1)", got)
	}
}

// ── Bonuses ────────────────────────────────────────────────────────────────

func i64(v int64) *int64 { return &v }

func TestScore_BudgetBonus(t *testing.T) {
	s := scoring.NewScorer(nil)
	cases := []struct {
		budget *int64
		want   int
	}{
		{nil, 0},
		{i64(500_000), 0},
		{i64(1_000_000), 10},
		{i64(5_000_000), 15},
		{i64(10_000_000), 20},
		{i64(50_000_000), 20},
	}
	for _, c := range cases {
		p := model.Posting{Title: "x", BudgetAmount: c.budget}
		if got, _ := s.Score(p, now); got != c.want {
			t.Errorf("budget %v → score %d, want %d", c.budget, got, c.want)
		}
	}
}

func TestScore_RegionBonus(t *testing.T) {
	s := scoring.NewScorer(nil)
	cases := []struct {
		region string
		want   int
	}{
		{"東京都", 15},
		{"神奈川県", 15},
		{"大阪府", 10},
		{"愛知県", 0},
		{"", 0},
	}
	for _, c := range cases {
		p := model.Posting{Title: "x", Region: c.region}
		if got, _ := s.Score(p, now); got != c.want {
			t.Errorf("region %q → score %d, want %d", c.region, got, c.want)
		}
	}
}

func TestScore_OrganizationBonus(t *testing.T) {
	s := scoring.NewScorer(nil)
	p := model.Posting{Title: "x", Organization: "横浜市"}
	if got, _ := s.Score(p, now); got != 5 {
		t.Errorf("municipal organization → score %d, want 5", got)
	}
	p = model.Posting{Title: "x", Organization: "国土交通省"}
	if got, _ := s.Score(p, now); got != 0 {
		t.Errorf("ministry organization → score %d, want 0", got)
	}
}

func TestScore_DeadlineBonus(t *testing.T) {
	s := scoring.NewScorer(nil)
	far := now.AddDate(0, 0, 20)
	near := now.AddDate(0, 0, 8)
	tight := now.AddDate(0, 0, 2)

	cases := []struct {
		deadline *time.Time
		want     int
	}{
		{&far, 10},
		{&near, 5},
		{&tight, 0},
		{nil, 0},
	}
	for _, c := range cases {
		p := model.Posting{Title: "x", DeadlineAt: c.deadline}
		if got, _ := s.Score(p, now); got != c.want {
			t.Errorf("deadline %v → score %d, want %d", c.deadline, got, c.want)
		}
	}
}

// ── Determinism ────────────────────────────────────────────────────────────

func TestScore_Deterministic(t *testing.T) {
	s := scoring.NewScorer([]model.Keyword{kw("データ入力", 2), kw("コールセンター", 1)})
	p := model.Posting{
		Title:        "コールセンター業務委託",
		Body:         "電話受付とデータ入力作業を含む。",
		Organization: "○○市",
		Region:       "東京都",
		BudgetAmount: i64(5_000_000),
	}

	first, firstMatched := s.Score(p, now)
	for i := 0; i < 10; i++ {
		got, matched := s.Score(p, now)
		if got != first || !reflect.DeepEqual(matched, firstMatched) {
			t.Fatalf("Score is not deterministic: run %d gave (%d, %v), first gave (%d, %v)",
				i, got, matched, first, firstMatched)
		}
	}
	if first < 0 || first > scoring.MaxScore {
		t.Errorf("score %d out of [0, %d]", first, scoring.MaxScore)
	}
}

// ── Exclude filter ─────────────────────────────────────────────────────────

func TestContainsExcludeTerm(t *testing.T) {
	terms := []string{"建設工事", "解体"}

	if !scoring.ContainsExcludeTerm("道路建設工事の入札", "", terms) {
		t.Error("title containing an exclude term should match")
	}
	if !scoring.ContainsExcludeTerm("業務委託", "旧庁舎の解体を含む", terms) {
		t.Error("body containing an exclude term should match")
	}
	if scoring.ContainsExcludeTerm("データ入力業務", "アンケート集計", terms) {
		t.Error("clean posting should not match")
	}
	if scoring.ContainsExcludeTerm("データ入力業務", "x", nil) {
		t.Error("empty term list should never match")
	}
	if scoring.ContainsExcludeTerm("anything", "x", []string{""}) {
		t.Error("empty term must be ignored")
	}
}
