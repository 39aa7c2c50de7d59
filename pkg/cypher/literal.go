package cypher

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ObjectLiteral renders props as a Cypher map literal with unquoted keys, for
// example {Age: 30, Name: "Ann"}. Keys are sorted so output is stable.
func ObjectLiteral(props map[string]any) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(literalValue(props[k]))
	}
	b.WriteByte('}')
	return b.String()
}

func literalValue(v any) string {
	switch tv := v.(type) {
	case map[string]any:
		return ObjectLiteral(tv)
	case nil:
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%q", fmt.Sprint(v))
	}
	return string(b)
}
