package textnorm

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"zero width", "건강\u200b보험\ufeff", "건강보험"},
		{"whitespace runs", "  정책\t\n  브리핑  ", "정책 브리핑"},
		{"only spaces", " \n\t ", ""},
		{"joiners", "a\u200cb\u200dc", "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"\u200b \u200b",
		"건강보험 보장 확대 시행",
		"Line one\r\nLine two\t\tthree",
		"\ufeff  [속보] 청년 월세 지원 \u200d연장 ",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestForMatch(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"[속보] DSR 규제 완화!", " 속보  dsr 규제 완화 "},
		{"Tax-Free 2025", "tax free 2025"},
		{"", ""},
		{"\u200b·", " "},
	}
	for _, tt := range tests {
		if got := ForMatch(tt.in); got != tt.want {
			t.Errorf("ForMatch(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
