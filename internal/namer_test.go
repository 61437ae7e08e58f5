package internal

import (
	"strings"
	"testing"
)

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{
			name:    "short message unchanged",
			message: "Review this NDA",
			want:    "Review this NDA",
		},
		{
			name:    "whitespace collapsed",
			message: "  Review \n\t this   NDA  ",
			want:    "Review this NDA",
		},
		{
			name:    "exactly fifty characters kept",
			message: strings.Repeat("a", 50),
			want:    strings.Repeat("a", 50),
		},
		{
			name:    "long message truncated at word boundary",
			message: "Explain indemnification risk in clause 4 of this NDA covering the period from January through December",
			want:    "Explain indemnification risk in clause 4 of this…",
		},
		{
			name:    "no boundary beyond twenty hard truncates",
			message: strings.Repeat("a", 80),
			want:    strings.Repeat("a", 50) + "…",
		},
		{
			name:    "boundary before twenty ignored",
			message: "short " + strings.Repeat("b", 70),
			want:    "short " + strings.Repeat("b", 44) + "…",
		},
		{
			name:    "empty message",
			message: "   ",
			want:    "",
		},
		{
			name:    "multibyte boundary before twenty hard truncates",
			message: "日本語の契約書です " + strings.Repeat("x", 60),
			want:    "日本語の契約書です " + strings.Repeat("x", 40) + "…",
		},
		{
			name:    "multibyte boundary beyond twenty used",
			message: strings.Repeat("契", 25) + " " + strings.Repeat("約", 30),
			want:    strings.Repeat("契", 25) + "…",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveTitle(tt.message); got != tt.want {
				t.Errorf("DeriveTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}
