package capability

import "testing"

func TestDetect(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    Capability
	}{
		{
			name:    "keyword question",
			message: "What are the best gift keywords for mothers day?",
			want:    KeywordInsights,
		},
		{
			name:    "search volume question",
			message: "show me the search volume for yoga mats",
			want:    KeywordInsights,
		},
		{
			name:    "market trend question",
			message: "Is demand for camping gear seasonal?",
			want:    MarketBrief,
		},
		{
			name:    "competitor question",
			message: "How do my competitors price this product?",
			want:    CompetitorIntel,
		},
		{
			name:    "alert question",
			message: "Why was I notified about my listing yesterday?",
			want:    AlertExplanation,
		},
		{
			name:    "alert outranks market phrasing",
			message: "explain the alert about my market position",
			want:    AlertExplanation,
		},
		{
			name:    "recommendation question",
			message: "What should I do to improve my conversion?",
			want:    Recommendations,
		},
		{
			name:    "compliance question",
			message: "Is this product restricted in the EU marketplace?",
			want:    ComplianceCheck,
		},
		{
			name:    "how-to question",
			message: "How do I set up automated repricing?",
			want:    SupportDocs,
		},
		{
			name:    "unclassifiable question",
			message: "Tell me something interesting",
			want:    OpenEnded,
		},
		{
			name:    "empty message",
			message: "",
			want:    OpenEnded,
		},
		{
			name:    "case insensitive",
			message: "KEYWORD performance please",
			want:    KeywordInsights,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect(tt.message)
			if got != tt.want {
				t.Errorf("Detect(%q) = %q, want %q", tt.message, got, tt.want)
			}
		})
	}
}

func TestDetectDeterministic(t *testing.T) {
	message := "alert about keyword trends in my market"
	first := Detect(message)
	for i := 0; i < 10; i++ {
		if got := Detect(message); got != first {
			t.Fatalf("Detect is not deterministic: got %q then %q", first, got)
		}
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		explicit string
		message  string
		want     Capability
	}{
		{
			name:     "explicit wins over detection",
			explicit: string(MarketBrief),
			message:  "keyword performance please",
			want:     MarketBrief,
		},
		{
			name:     "invalid explicit falls back to detection",
			explicit: "not-a-capability",
			message:  "keyword performance please",
			want:     KeywordInsights,
		},
		{
			name:     "empty explicit uses detection",
			explicit: "",
			message:  "why was I notified?",
			want:     AlertExplanation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.explicit, tt.message)
			if got != tt.want {
				t.Errorf("Resolve(%q, %q) = %q, want %q", tt.explicit, tt.message, got, tt.want)
			}
		})
	}
}

func TestValid(t *testing.T) {
	for _, c := range all {
		if !Valid(string(c)) {
			t.Errorf("Valid(%q) = false, want true", c)
		}
	}
	if Valid("keyword") {
		t.Error("Valid(\"keyword\") = true, want false")
	}
	if Valid("") {
		t.Error("Valid(\"\") = true, want false")
	}
}
