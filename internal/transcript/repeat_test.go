package transcript

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"What is your greatest strength?", "what is your greatest strength"},
		{"Here's the question one more time: what is your greatest strength", "what is your greatest strength"},
		{"  So, um, what IS your name?! ", "what is your name"},
		{"Again: why do you want this job?", "why do you want this job"},
		{"", ""},
		{"...", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSameQuestion(t *testing.T) {
	tests := []struct {
		name string
		prev string
		curr string
		want bool
	}{
		{
			"repeat with filler prefix",
			"What is your greatest strength?",
			"Here's the question one more time: what is your greatest strength",
			true,
		},
		{
			"different questions",
			"What is your name?",
			"What is your favorite color?",
			false,
		},
		{
			"identical",
			"Why should we hire you?",
			"Why should we hire you?",
			true,
		},
		{
			"small wording drift",
			"Tell me about your biggest weakness.",
			"Okay, tell me about your biggest weaknesses.",
			true,
		},
		{
			"unrelated",
			"Where do you see yourself in five years?",
			"Do you have any questions for us?",
			false,
		},
		{
			"empty previous",
			"",
			"What is your name?",
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SameQuestion(tt.prev, tt.curr); got != tt.want {
				t.Errorf("SameQuestion(%q, %q) = %v, want %v", tt.prev, tt.curr, got, tt.want)
			}
		})
	}
}
