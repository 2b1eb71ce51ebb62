package worker

import (
	"log/slog"
	"path/filepath"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
)

// previewKeys is the fixed allow-list of scalar summary fields copied into
// result_preview so listings never deserialize full result blobs.
var previewKeys = []string{
	"status",
	"error",
	"file_count",
	"count",
	"event_count",
	"events_count",
	"messages_count",
	"parsed_objects",
	"tags_found",
	"entropy",
	"is_suspicious",
	"integrity_ok",
}

// Preview projects a lossy, best-effort summary of a module result: allow-listed
// fields copied verbatim, plus output_file when present.
func Preview(result map[string]any) map[string]any {
	preview := make(map[string]any)
	for _, key := range previewKeys {
		if v, ok := previewField(result, key); ok {
			preview[key] = v
		}
	}
	if v, ok := result["output_file"]; ok {
		preview["output_file"] = v
	}
	return preview
}

// previewField reads a top-level field, falling back to the stats.<key>
// location some modules nest their counters under.
func previewField(result map[string]any, key string) (any, bool) {
	if v, ok := result[key]; ok {
		return v, true
	}
	v, err := jmespath.Search("stats."+key, result)
	if err != nil || v == nil {
		return nil, false
	}
	return v, true
}

// ExtractOutputFiles collects artifact references from a raw module result:
// the single "output_file" path first, then the "output_files" list, in
// encounter order. Paths that do not resolve under the case artifact root are
// dropped (and logged) rather than failing the job; duplicates are removed,
// first occurrence wins. The extraction is idempotent.
func ExtractOutputFiles(result map[string]any, artifactRoot string, logger *slog.Logger) []string {
	var candidates []string
	if s, ok := result["output_file"].(string); ok {
		candidates = append(candidates, s)
	}
	switch list := result["output_files"].(type) {
	case []any:
		for _, item := range list {
			if s, ok := item.(string); ok {
				candidates = append(candidates, s)
			}
		}
	case []string:
		candidates = append(candidates, list...)
	}

	seen := make(map[string]struct{}, len(candidates))
	out := []string{}
	for _, c := range candidates {
		rel, ok := containedRel(artifactRoot, c)
		if !ok {
			if logger != nil {
				logger.Warn("dropping module output path outside artifact root", "path", c)
			}
			continue
		}
		if _, dup := seen[rel]; dup {
			continue
		}
		seen[rel] = struct{}{}
		out = append(out, rel)
	}
	return out
}

// containedRel converts path into a slash-separated path relative to root, or
// reports false when it would escape the root. Relative inputs are interpreted
// against the root itself.
func containedRel(root, path string) (string, bool) {
	if path == "" {
		return "", false
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, abs)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(filepath.Clean(root), abs)
	if err != nil {
		return "", false
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
