package latex

import "testing"

func TestProcess(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "bold",
			input:    `a \textbf{strong} claim`,
			expected: "a <strong>strong</strong> claim",
		},
		{
			name:     "italic and emph",
			input:    `\textit{a} and \emph{b}`,
			expected: "<em>a</em> and <em>b</em>",
		},
		{
			name:     "monospace and underline",
			input:    `\texttt{code} \underline{u}`,
			expected: "<code>code</code> <u>u</u>",
		},
		{
			name:     "url command",
			input:    `see \url{https://example.org/x}`,
			expected: `see <a href="https://example.org/x" target="_blank">https://example.org/x</a>`,
		},
		{
			name:     "href command",
			input:    `\href{https://example.org}{the site}`,
			expected: `<a href="https://example.org" target="_blank">the site</a>`,
		},
		{
			name:     "url with escaped underscore survives escape pass",
			input:    `\url{https://example.org/a\_b}`,
			expected: `<a href="https://example.org/a_b" target="_blank">https://example.org/a_b</a>`,
		},
		{
			name:     "bare url linked with trailing period outside",
			input:    "read https://example.org/paper. Then stop",
			expected: `read <a href="https://example.org/paper" target="_blank">https://example.org/paper</a>. Then stop`,
		},
		{
			name:     "escapes",
			input:    `100\% of \$5 \& \#1 a\_b \{x\}`,
			expected: "100% of $5 & #1 a_b {x}",
		},
		{
			name:     "double quotes",
			input:    "``quoted''",
			expected: `"quoted"`,
		},
		{
			name:     "single quotes curled",
			input:    "`it's`",
			expected: "‘it’s‘",
		},
		{
			name:     "spacing commands",
			input:    `a\,b A~B end\\next`,
			expected: "a b A&nbsp;B end<br>next",
		},
		{
			name:     "escaped tilde becomes nbsp via spacing pass",
			input:    `Smith\~Jones`,
			expected: "Smith&nbsp;Jones",
		},
		{
			name:     "textbackslash",
			input:    `a \textbackslash{} b`,
			expected: `a \ b`,
		},
		{
			name:     "plain text untouched",
			input:    "no markup at all",
			expected: "no markup at all",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Process(tt.input)
			if got != tt.expected {
				t.Errorf("Process(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

// Running the normalizer on its own output must change nothing, including
// URLs it has already wrapped in anchors.
func TestProcessIdempotent(t *testing.T) {
	inputs := []string{
		`\textbf{x}`,
		`see \url{https://example.org/a\_b} and https://example.org/c for details`,
		"100\\% ``quoted'' a\\,b A~B",
		`\href{https://example.org}{site} trailing https://example.org/d. end`,
	}

	for _, input := range inputs {
		once := Process(input)
		twice := Process(once)
		if once != twice {
			t.Errorf("Process not idempotent:\ninput: %q\nonce:  %q\ntwice: %q", input, once, twice)
		}
	}
}
