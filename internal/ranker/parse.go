package ranker

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// MaxRank is the largest rank number a pick can hold.
const MaxRank = 10

// Entry is one ranked pick returned by the model.
type Entry struct {
	Rank        int    `json:"rank"`
	CandidateID string `json:"candidateId"`
	Reason      string `json:"reason"`
}

type response struct {
	Top10 []Entry `json:"top10"`
}

// ParseResponse decodes the model reply. Code fences and text around the
// JSON object are tolerated. Repeated candidate ids keep the first entry.
// Ranks outside 1..MaxRank, missing or already taken are moved to the
// lowest free rank, and entries left without one are dropped. The result is
// ordered by rank; an empty list is an ErrResponseFormat.
func ParseResponse(text string) ([]Entry, error) {
	body := stripFences(strings.TrimSpace(text))

	var resp response
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		start, end := strings.Index(body, "{"), strings.LastIndex(body, "}")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("%w: %v (reply %q)", ErrResponseFormat, err, clip(text))
		}
		if err := json.Unmarshal([]byte(body[start:end+1]), &resp); err != nil {
			return nil, fmt.Errorf("%w: %v (reply %q)", ErrResponseFormat, err, clip(text))
		}
	}

	seen := make(map[string]bool, len(resp.Top10))
	entries := make([]Entry, 0, len(resp.Top10))
	for _, e := range resp.Top10 {
		e.CandidateID = strings.TrimSpace(e.CandidateID)
		if e.CandidateID == "" || seen[e.CandidateID] {
			continue
		}
		seen[e.CandidateID] = true
		e.Reason = strings.TrimSpace(e.Reason)
		entries = append(entries, e)
	}

	out := assignRanks(entries)
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no ranked entries", ErrResponseFormat)
	}
	return out, nil
}

// assignRanks keeps valid first claims on a rank, then hands the free ranks
// to the remaining entries in reply order.
func assignRanks(entries []Entry) []Entry {
	taken := make(map[int]bool, MaxRank)
	var pending []int
	for i, e := range entries {
		if e.Rank >= 1 && e.Rank <= MaxRank && !taken[e.Rank] {
			taken[e.Rank] = true
			continue
		}
		entries[i].Rank = 0
		pending = append(pending, i)
	}

	next := 1
	for _, i := range pending {
		for next <= MaxRank && taken[next] {
			next++
		}
		if next > MaxRank {
			break
		}
		entries[i].Rank = next
		taken[next] = true
	}

	out := make([]Entry, 0, min(len(entries), MaxRank))
	for _, e := range entries {
		if e.Rank > 0 {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

func clip(s string) string {
	r := []rune(s)
	if len(r) > 200 {
		return string(r[:200])
	}
	return s
}
