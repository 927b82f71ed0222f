package domain

import "encoding/json"

// CallResultKind tags the shape of a tool call result.
type CallResultKind int

const (
	// CallResultEmpty is a successful call with no text content.
	CallResultEmpty CallResultKind = iota
	// CallResultSingleText carries exactly one text item.
	CallResultSingleText
	// CallResultMultiText carries two or more text items in order.
	CallResultMultiText
)

func (k CallResultKind) String() string {
	switch k {
	case CallResultEmpty:
		return "empty"
	case CallResultSingleText:
		return "single_text"
	case CallResultMultiText:
		return "multi_text"
	default:
		return "unknown"
	}
}

// CallResult is the shaped outcome of tools/call.
type CallResult struct {
	Kind  CallResultKind
	Texts []string
}

// ShapeTextResult builds the variant from the text items of a response.
func ShapeTextResult(texts []string) CallResult {
	switch len(texts) {
	case 0:
		return CallResult{Kind: CallResultEmpty}
	case 1:
		return CallResult{Kind: CallResultSingleText, Texts: []string{texts[0]}}
	default:
		return CallResult{Kind: CallResultMultiText, Texts: append([]string(nil), texts...)}
	}
}

// Text returns the single text item, or "" for other shapes.
func (r CallResult) Text() (string, bool) {
	if r.Kind != CallResultSingleText || len(r.Texts) != 1 {
		return "", false
	}
	return r.Texts[0], true
}

// String renders the result for text-only consumers: raw text, "" for empty,
// and a JSON array for multiple items.
func (r CallResult) String() string {
	switch r.Kind {
	case CallResultEmpty:
		return ""
	case CallResultSingleText:
		text, _ := r.Text()
		return text
	default:
		raw, err := json.Marshal(r.Texts)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}
