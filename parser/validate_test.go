package parser

import (
	"fmt"
	"strings"
	"testing"
)

func TestValidatePage(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantKind    OutcomeKind
		wantReason  string
		wantRecords int
		wantSkipped int
	}{
		{
			name:        "products",
			body:        `{"data":{"products":[{"id":1},{"id":2}]}}`,
			wantKind:    OutcomeProducts,
			wantRecords: 2,
		},
		{
			name:     "explicit empty list",
			body:     `{"state":0,"data":{"products":[]}}`,
			wantKind: OutcomeEmpty,
		},
		{
			name:     "null products",
			body:     `{"data":{"products":null}}`,
			wantKind: OutcomeEmpty,
		},
		{
			name:        "non-object entries dropped",
			body:        `{"data":{"products":[{"id":1},42,"x",null,{"id":2}]}}`,
			wantKind:    OutcomeProducts,
			wantRecords: 2,
			wantSkipped: 3,
		},
		{
			name:       "empty body",
			body:       "  \n",
			wantKind:   OutcomeMalformed,
			wantReason: ReasonEmptyBody,
		},
		{
			name:       "html error page",
			body:       "<html><body>502 Bad Gateway</body></html>",
			wantKind:   OutcomeMalformed,
			wantReason: ReasonInvalidJSON,
		},
		{
			name:       "truncated json",
			body:       `{"data":{"products":[{"id":1}`,
			wantKind:   OutcomeMalformed,
			wantReason: ReasonInvalidJSON,
		},
		{
			name:       "top-level array",
			body:       `[{"id":1}]`,
			wantKind:   OutcomeMalformed,
			wantReason: ReasonNotAnObject,
		},
		{
			name:       "missing data",
			body:       `{"state":0}`,
			wantKind:   OutcomeMalformed,
			wantReason: ReasonMissingData,
		},
		{
			name:       "data is a string",
			body:       `{"data":"oops"}`,
			wantKind:   OutcomeMalformed,
			wantReason: ReasonDataNotObject,
		},
		{
			name:       "missing products",
			body:       `{"data":{"total":0}}`,
			wantKind:   OutcomeMalformed,
			wantReason: ReasonMissingProducts,
		},
		{
			name:       "products is an object",
			body:       `{"data":{"products":{"id":1}}}`,
			wantKind:   OutcomeMalformed,
			wantReason: ReasonProductsNotArray,
		},
		{
			name:       "only broken entries",
			body:       `{"data":{"products":[1,2,3]}}`,
			wantKind:   OutcomeMalformed,
			wantReason: ReasonProductsAllBroken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidatePage([]byte(tt.body))
			if got.Kind != tt.wantKind {
				t.Fatalf("kind = %v, want %v (reason %q)", got.Kind, tt.wantKind, got.Reason)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", got.Reason, tt.wantReason)
			}
			if len(got.Records) != tt.wantRecords {
				t.Errorf("records = %d, want %d", len(got.Records), tt.wantRecords)
			}
			if got.Skipped != tt.wantSkipped {
				t.Errorf("skipped = %d, want %d", got.Skipped, tt.wantSkipped)
			}
		})
	}
}

func TestValidatePageSizeCountsRawEntries(t *testing.T) {
	items := make([]string, 0, 100)
	for i := 0; i < 99; i++ {
		items = append(items, fmt.Sprintf(`{"id":%d}`, i+1))
	}
	items = append(items, `"garbage"`)
	body := `{"data":{"products":[` + strings.Join(items, ",") + `]}}`

	got := ValidatePage([]byte(body))
	if got.Kind != OutcomeProducts {
		t.Fatalf("kind = %v, want products", got.Kind)
	}
	if got.Size != 100 || len(got.Records) != 99 {
		t.Fatalf("size = %d records = %d, want 100 and 99", got.Size, len(got.Records))
	}
}

func TestValidatePageNeverPanics(t *testing.T) {
	inputs := []string{"null", "true", "0", `""`, `{"data":null}`, `{"data":[]}`, "{", "}}}"}
	for _, in := range inputs {
		got := ValidatePage([]byte(in))
		if got.Kind != OutcomeMalformed {
			t.Errorf("ValidatePage(%q) kind = %v, want malformed", in, got.Kind)
		}
	}
}
