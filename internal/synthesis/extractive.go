package synthesis

import (
	"context"
	"strings"
)

// Extractive answers with the most relevant passage verbatim. It needs no
// model and is used when running offline.
type Extractive struct{}

// Synthesize returns the first passage, which retrieval ranks highest.
func (Extractive) Synthesize(_ context.Context, _ string, passages []string) (string, error) {
	for _, p := range passages {
		if p = strings.TrimSpace(p); p != "" {
			return p, nil
		}
	}
	return "I don't know.", nil
}
