package agent

import (
	"strings"
	"testing"
	"time"
)

func TestBuildSystemPrompt(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.October, 22, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		base   string
		suffix string
		want   string
	}{
		{name: "no suffix", base: "Today is {{date}}.", want: "Today is Tuesday, October 22, 2024."},
		{name: "suffix", base: "base", suffix: "be brief", want: "base be brief"},
		{name: "no placeholder", base: "static", want: "static"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := BuildSystemPrompt(tt.base, tt.suffix, now); got != tt.want {
				t.Errorf("BuildSystemPrompt() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDefaultSystemPrompt_HasDate(t *testing.T) {
	t.Parallel()

	got := BuildSystemPrompt(DefaultSystemPrompt, "", time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))
	if strings.Contains(got, "{{date}}") {
		t.Error("placeholder not substituted")
	}
	if !strings.Contains(got, "Monday, January 1, 2024") {
		t.Errorf("date missing from prompt: %q", got)
	}
}
