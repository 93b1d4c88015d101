package cleanup

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Decision
		wantErr error
	}{
		{
			name: "plain-json",
			raw:  `{"category":"receipt","label":"Receipts","confidence":0.9,"reason":"invoice","summary":"Stripe invoice"}`,
			want: Decision{Category: CategoryReceipt, Label: "Receipts", Confidence: 0.9, Reason: "invoice", Summary: "Stripe invoice"},
		},
		{
			name: "fenced-with-language-tag",
			raw:  "```json\n{\"category\":\"spam\",\"label\":null,\"confidence\":1}\n```",
			want: Decision{Category: CategorySpam, Confidence: 1},
		},
		{
			name: "json-embedded-in-prose",
			raw:  "Sure! Here is the verdict: {\"category\":\"should_read\",\"confidence\":0.4} hope that helps",
			want: Decision{Category: CategoryShouldRead, Confidence: 0.4},
		},
		{
			name: "confidence-as-numeric-string",
			raw:  `{"category":"useful_archive","label":"Travel","confidence":"0.75"}`,
			want: Decision{Category: CategoryUsefulArchive, Label: "Travel", Confidence: 0.75},
		},
		{
			name: "confidence-garbage-becomes-zero",
			raw:  `{"category":"requires_response","confidence":"very sure"}`,
			want: Decision{Category: CategoryRequiresResponse, Confidence: 0},
		},
		{
			name: "label-null",
			raw:  `{"category":"spam","label":null}`,
			want: Decision{Category: CategorySpam},
		},
		{
			name: "label-whitespace-trimmed-to-empty",
			raw:  `{"category":"useful_archive","label":"   "}`,
			want: Decision{Category: CategoryUsefulArchive},
		},
		{
			name:    "not-json-at-all",
			raw:     "I could not decide.",
			wantErr: ErrInvalidResponse,
		},
		{
			name:    "invalid-category",
			raw:     `{"category":"urgent"}`,
			wantErr: ErrInvalidResponse,
		},
		{
			name:    "missing-category",
			raw:     `{"label":"Receipts"}`,
			wantErr: ErrInvalidResponse,
		},
		{
			name:    "label-wrong-type",
			raw:     `{"category":"receipt","label":42}`,
			wantErr: ErrInvalidResponse,
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseDecision(tc.raw)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("decision mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClampConfidence(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want float64
	}{
		{"negative", float64(-5), 0},
		{"in-range", float64(0.5), 0.5},
		{"above-one", float64(12), 1},
		{"numeric-string", "0.3", 0.3},
		{"non-numeric-string", "high", 0},
		{"nil", nil, 0},
		{"bool", true, 0},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			if got := clampConfidence(tc.in); got != tc.want {
				t.Fatalf("clampConfidence(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
