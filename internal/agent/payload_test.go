package agent

import "testing"

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "bare object",
			input: `{"songs": []}`,
			want:  `{"songs": []}`,
		},
		{
			name:  "surrounding prose",
			input: "Here you go:\n{\"songs\": []}\nHope that helps!",
			want:  `{"songs": []}`,
		},
		{
			name:  "json fence",
			input: "```json\n{\"songs\": []}\n```",
			want:  `{"songs": []}`,
		},
		{
			name:  "unlabelled fence",
			input: "```\n{\"is_valid\": true}\n```",
			want:  `{"is_valid": true}`,
		},
		{
			name:  "json fence preferred over other fences",
			input: "```text\nnot json\n```\n```json\n{\"a\": 1}\n```",
			want:  `{"a": 1}`,
		},
		{
			name:  "nested braces",
			input: "prefix {\"outer\": {\"inner\": 1}} suffix",
			want:  `{"outer": {"inner": 1}}`,
		},
		{
			name:  "no braces returned as-is",
			input: "sorry, I cannot help",
			want:  "sorry, I cannot help",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.input); got != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
