package notify

import (
	"fmt"
	"strings"

	"github.com/miyazaki-CS/bidding-system/internal/model"
)

// HighPriorityMessage formats the immediate alert for one high-tier posting.
func HighPriorityMessage(sp model.ScoredPosting) Message {
	subject := fmt.Sprintf("【入札案件アラート】%s（スコア %d）", sp.Title, sp.Score)

	var b strings.Builder
	fmt.Fprintf(&b, "案件名: %s\n", sp.Title)
	if sp.Organization != "" {
		fmt.Fprintf(&b, "発注機関: %s\n", sp.Organization)
	}
	if sp.Region != "" {
		fmt.Fprintf(&b, "地域: %s\n", sp.Region)
	}
	if sp.BudgetAmount != nil {
		fmt.Fprintf(&b, "予算: %d円\n", *sp.BudgetAmount)
	}
	if sp.DeadlineAt != nil {
		fmt.Fprintf(&b, "締切: %s\n", sp.DeadlineAt.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "適合度スコア: %d / 100\n", sp.Score)
	if len(sp.MatchedKeywords) > 0 {
		fmt.Fprintf(&b, "マッチキーワード: %s\n", strings.Join(sp.MatchedKeywords, ", "))
	}
	if sp.SourceURL != "" {
		fmt.Fprintf(&b, "詳細: %s\n", sp.SourceURL)
	}

	return Message{Subject: subject, Body: b.String()}
}

// DigestMessage formats the per-run digest: medium/low postings plus run
// statistics.
func DigestMessage(summary model.RunSummary, postings []model.ScoredPosting) Message {
	subject := fmt.Sprintf("【入札案件ダイジェスト】新着 %d 件（高 %d / 中 %d / 低 %d）",
		summary.Scored, summary.HighTier, summary.MediumTier, summary.LowTier)

	var b strings.Builder
	fmt.Fprintf(&b, "収集 %d 件、重複除外 %d 件、スコア済 %d 件。\n\n",
		summary.Collected, summary.Duplicates, summary.Scored)

	if len(postings) > 0 {
		b.WriteString("── 中・低優先度案件 ──\n")
		for _, sp := range postings {
			fmt.Fprintf(&b, "[%d] %s", sp.Score, sp.Title)
			if sp.Organization != "" {
				fmt.Fprintf(&b, "（%s）", sp.Organization)
			}
			if sp.SourceURL != "" {
				fmt.Fprintf(&b, "\n    %s", sp.SourceURL)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	for _, src := range summary.Sources {
		if src.Err != "" {
			fmt.Fprintf(&b, "※ ソース %s は取得に失敗しました: %s\n", src.Source, src.Err)
		}
	}

	return Message{Subject: subject, Body: b.String()}
}
