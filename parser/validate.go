package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// OutcomeKind classifies a validated page.
type OutcomeKind int

const (
	// OutcomeProducts is a well-formed envelope carrying at least one record.
	OutcomeProducts OutcomeKind = iota
	// OutcomeEmpty is a well-formed envelope with explicitly zero records.
	OutcomeEmpty
	// OutcomeMalformed is anything the envelope assumptions below reject.
	OutcomeMalformed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeProducts:
		return "products"
	case OutcomeEmpty:
		return "empty"
	case OutcomeMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Malformed reasons, kept distinct for diagnostics and metrics labels.
const (
	ReasonEmptyBody         = "empty_body"
	ReasonInvalidJSON       = "invalid_json"
	ReasonNotAnObject       = "not_an_object"
	ReasonMissingData       = "missing_data"
	ReasonDataNotObject     = "data_not_object"
	ReasonMissingProducts   = "missing_products"
	ReasonProductsNotArray  = "products_not_array"
	ReasonProductsAllBroken = "products_all_broken"
)

// PageOutcome is the tri-state result of ValidatePage. Records is only
// populated for OutcomeProducts; Reason only for OutcomeMalformed.
type PageOutcome struct {
	Kind    OutcomeKind
	Records []map[string]any
	// Size is the number of entries the upstream sent, including ones
	// dropped because they were not objects. Pagination decisions use it.
	Size    int
	Skipped int
	Reason  string
	Detail  string
}

// ValidatePage checks the catalog/search envelope `{"data":{"products":[...]}}`.
// It never panics and never coerces: every shape it does not recognise is
// returned as OutcomeMalformed with a reason. All knowledge of the upstream
// envelope lives in this function.
func ValidatePage(body []byte) PageOutcome {
	if len(bytes.TrimSpace(body)) == 0 {
		return malformed(ReasonEmptyBody, "")
	}

	var root any
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&root); err != nil {
		return malformed(ReasonInvalidJSON, err.Error())
	}

	envelope, ok := root.(map[string]any)
	if !ok {
		return malformed(ReasonNotAnObject, fmt.Sprintf("top-level %s", jsonType(root)))
	}

	rawData, ok := envelope["data"]
	if !ok || rawData == nil {
		return malformed(ReasonMissingData, "")
	}
	data, ok := rawData.(map[string]any)
	if !ok {
		return malformed(ReasonDataNotObject, fmt.Sprintf("data is %s", jsonType(rawData)))
	}

	rawProducts, ok := data["products"]
	if !ok {
		return malformed(ReasonMissingProducts, "")
	}
	// The catalog answers past-the-end pages with "products": null.
	if rawProducts == nil {
		return PageOutcome{Kind: OutcomeEmpty}
	}
	items, ok := rawProducts.([]any)
	if !ok {
		return malformed(ReasonProductsNotArray, fmt.Sprintf("products is %s", jsonType(rawProducts)))
	}
	if len(items) == 0 {
		return PageOutcome{Kind: OutcomeEmpty}
	}

	records := make([]map[string]any, 0, len(items))
	skipped := 0
	for _, item := range items {
		record, ok := item.(map[string]any)
		if !ok {
			skipped++
			continue
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return malformed(ReasonProductsAllBroken, fmt.Sprintf("%d non-object entries", skipped))
	}

	return PageOutcome{
		Kind:    OutcomeProducts,
		Records: records,
		Size:    len(items),
		Skipped: skipped,
	}
}

func malformed(reason, detail string) PageOutcome {
	return PageOutcome{Kind: OutcomeMalformed, Reason: reason, Detail: detail}
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "bool"
	case json.Number, float64:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
