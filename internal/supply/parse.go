package supply

import (
	"encoding/json"
	"fmt"
	"strings"

	"reelflow/internal/util"
)

// ParseFragments accepts only a bare JSON array of non-blank strings. Any
// other shape fails the whole batch; nothing is salvaged from a partial parse.
func ParseFragments(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty completion output", util.ErrGeneration)
	}
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("%w: completion output is not a JSON array of strings: %w", util.ErrGeneration, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: completion returned no fragments", util.ErrGeneration)
	}
	for i, it := range items {
		if strings.TrimSpace(it) == "" {
			return nil, fmt.Errorf("%w: fragment %d is blank", util.ErrGeneration, i)
		}
	}
	return items, nil
}
