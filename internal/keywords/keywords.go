// Package keywords holds the weighted term groups the rule scorer matches
// against and resolves the dictionary of the active topic preset.
package keywords

// Group names as stored on keyword rows.
const (
	GroupChange = "change"
	GroupLife   = "life"
	GroupNoise  = "noise"
)

type Term struct {
	Term   string `json:"term" yaml:"term"`
	Weight int    `json:"weight" yaml:"weight"`
}

// Group keeps terms in declaration order so scans are deterministic.
type Group []Term

// Dictionary is the three-group keyword model of one topic.
type Dictionary struct {
	Change Group `json:"change"`
	Life   Group `json:"life"`
	Noise  Group `json:"noise"`
}

// Add appends a term to the named group, replacing the weight when the term
// is already present. Unknown groups are ignored and reported as false.
func (d *Dictionary) Add(group, term string, weight int) bool {
	var g *Group
	switch group {
	case GroupChange:
		g = &d.Change
	case GroupLife:
		g = &d.Life
	case GroupNoise:
		g = &d.Noise
	default:
		return false
	}
	for i := range *g {
		if (*g)[i].Term == term {
			(*g)[i].Weight = weight
			return true
		}
	}
	*g = append(*g, Term{Term: term, Weight: weight})
	return true
}

func (d Dictionary) Len() int {
	return len(d.Change) + len(d.Life) + len(d.Noise)
}

// Default is the built-in policy dictionary used when no preset is active.
func Default() Dictionary {
	return Dictionary{
		Change: Group{
			{"개편", 6}, {"신설", 6}, {"확대", 6}, {"상향", 6}, {"인하", 6}, {"완화", 6}, {"강화", 6},
			{"변경", 5}, {"개정", 6}, {"시행", 6}, {"적용", 5}, {"연장", 5}, {"폐지", 6}, {"전환", 4}, {"통합", 4},
		},
		Life: Group{
			{"지원", 5}, {"지급", 6}, {"급여", 6}, {"수당", 6}, {"바우처", 6}, {"보조금", 6},
			{"세액공제", 7}, {"소득공제", 7}, {"감면", 7}, {"과세", 7}, {"비과세", 7},
			{"보험료", 6}, {"건강보험", 6}, {"국민연금", 5}, {"대출", 5}, {"금리", 5}, {"한도", 5},
			{"기준", 5}, {"자격", 5}, {"요건", 5}, {"신청", 5}, {"대상", 4}, {"의무", 4}, {"면제", 5},
		},
		Noise: Group{
			{"개최", -12}, {"기념식", -12}, {"캠페인", -10}, {"행사", -10}, {"간담회", -10}, {"토론회", -10},
			{"시상", -10}, {"인터뷰", -8}, {"논란", -12}, {"충격", -12}, {"사건", -12}, {"사고", -12},
			{"연예", -20}, {"스포츠", -20},
		},
	}
}
