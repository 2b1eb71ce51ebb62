// Package builtin provides the compiled-in analysis capabilities registered at
// startup. Each is deliberately thin; heavier forensic tooling plugs in behind
// the same module.Runner contract.
package builtin

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"evidence-job-service/internal/module"
)

// Verify recomputes evidence hashes and writes an integrity report artifact.
type Verify struct{}

func (Verify) Descriptor() module.Descriptor {
	return module.Descriptor{
		Name:             "verify",
		Description:      "Recompute evidence hashes and write an integrity report",
		RequiresEvidence: true,
		Runner:           Verify{},
	}
}

func (Verify) Run(ctx context.Context, req module.Request) (map[string]any, error) {
	f, err := os.Open(req.EvidencePath)
	if err != nil {
		return nil, fmt.Errorf("open evidence: %w", err)
	}
	defer f.Close()

	sha := sha256.New()
	md := md5.New()
	var size int64

	buf := make([]byte, 1<<20)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, readErr := f.Read(buf)
		if n > 0 {
			sha.Write(buf[:n])
			md.Write(buf[:n])
			size += int64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("read evidence: %w", readErr)
		}
	}

	shaHex := hex.EncodeToString(sha.Sum(nil))
	expected, _ := req.Params["expected_sha256"].(string)
	integrityOK := expected == "" || expected == shaHex

	report := map[string]any{
		"evidence_path": filepath.Base(req.EvidencePath),
		"sha256":        shaHex,
		"md5":           hex.EncodeToString(md.Sum(nil)),
		"size_bytes":    size,
		"integrity_ok":  integrityOK,
	}

	outPath, err := writeArtifact(req.ArtifactRoot, "verify", "integrity_report.json", report)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"status":       "ok",
		"sha256":       shaHex,
		"size_bytes":   size,
		"integrity_ok": integrityOK,
		"output_file":  outPath,
	}, nil
}

// writeArtifact stores a JSON document under <artifactRoot>/<subdir>/<name>
// and returns its absolute path.
func writeArtifact(artifactRoot, subdir, name string, doc any) (string, error) {
	dir := filepath.Join(artifactRoot, subdir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal artifact: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}
