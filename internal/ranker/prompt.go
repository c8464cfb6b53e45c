package ranker

import (
	"fmt"
	"strings"

	"github.com/deusflow/shorts-hunter/internal/storage"
)

const summaryRunes = 200

const criteria = `선정 기준:
- 일반 대중(직장인·주부·청년)의 실제 생활에 직접적인 영향을 미치는 변화
- "무엇이 바뀌었고, 나에게 어떤 영향인지" 명확한 스토리가 있는 것
- 신선하고 시의성 있는 정보 (새로운 제도, 정책 변경, 금액 변동 등)
- 쇼츠 1분 또는 블로그 1편으로 설명 가능한 핵심이 있는 것
- 단순 행사/기념식/인터뷰/사건사고는 제외`

// BuildPrompt renders the ranking request for the given candidates, which
// are numbered from 1 in the order given.
func BuildPrompt(presetName, presetDescription string, cands []storage.CandidateView) string {
	var b strings.Builder

	b.WriteString("당신은 한국 정책·생활·금융 정보 콘텐츠 기획자입니다.\n")
	fmt.Fprintf(&b, "주제: \"%s\"", presetName)
	if presetDescription != "" {
		fmt.Fprintf(&b, " (%s)", presetDescription)
	}
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "아래 뉴스 기사 %d개 중, 이 주제로 유튜브 쇼츠 또는 블로그 포스팅 소재로 가장 적합한 기사 TOP 10을 선정해주세요.\n\n", len(cands))
	b.WriteString(criteria)
	b.WriteString("\n\n--- 기사 목록 ---\n")

	for i, c := range cands {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] id:%s\n제목: %s\n요약: %s\n출처: %s | 룰점수: %d",
			i+1, c.ID, c.Item.Title, excerpt(c.Item.Summary), c.Source.Name, c.RuleScore)
	}

	b.WriteString("\n\nJSON 형식으로만 응답하세요 (다른 텍스트 없이):\n{\n  \"top10\": [\n")
	for rank := 1; rank <= 10; rank++ {
		fmt.Fprintf(&b, "    { \"rank\": %d, \"candidateId\": \"후보id\", \"reason\": \"선정 이유 (한 문장)\" }", rank)
		if rank < 10 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("  ]\n}")
	return b.String()
}

func excerpt(summary string) string {
	if summary == "" {
		return "(요약 없음)"
	}
	r := []rune(summary)
	if len(r) > summaryRunes {
		return string(r[:summaryRunes])
	}
	return summary
}
