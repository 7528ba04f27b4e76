package httpapi

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
)

// errorResponse is the body of every error reply.
type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Detail: message})
}

// scrubber hides server filesystem layout in client-facing messages.
type scrubber struct {
	replacer *strings.Replacer
}

func newScrubber(dirs []string) *scrubber {
	var paths []string
	for _, d := range dirs {
		if d == "" {
			continue
		}
		paths = append(paths, filepath.Clean(d))
		if abs, err := filepath.Abs(d); err == nil {
			paths = append(paths, abs)
		}
	}
	// Longest first so an absolute path is not half-replaced by its relative suffix.
	sort.Slice(paths, func(i, j int) bool { return len(paths[i]) > len(paths[j]) })

	var pairs []string
	for _, p := range paths {
		if p == "." || p == string(filepath.Separator) {
			continue
		}
		pairs = append(pairs, p, filepath.Base(p))
	}
	return &scrubber{replacer: strings.NewReplacer(pairs...)}
}

func (s *scrubber) scrub(msg string) string {
	return s.replacer.Replace(msg)
}
