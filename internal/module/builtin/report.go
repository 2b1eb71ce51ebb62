package builtin

import (
	"context"
	"time"

	"evidence-job-service/internal/module"
)

// Report writes a case summary artifact. It needs no evidence input.
type Report struct{}

func (Report) Descriptor() module.Descriptor {
	return module.Descriptor{
		Name:             "report",
		Description:      "Write a case summary report artifact",
		RequiresEvidence: false,
		Runner:           Report{},
	}
}

func (Report) Run(ctx context.Context, req module.Request) (map[string]any, error) {
	title, _ := req.Params["title"].(string)
	if title == "" {
		title = "Case report"
	}

	doc := map[string]any{
		"title":        title,
		"case_id":      req.CaseID.String(),
		"generated_by": req.Actor,
		"generated_at": time.Now().UTC().Format(time.RFC3339),
		"params":       req.Params,
	}

	outPath, err := writeArtifact(req.ArtifactRoot, "report", "case_report.json", doc)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"status":      "ok",
		"file_count":  1,
		"output_file": outPath,
	}, nil
}

// All returns every builtin descriptor for startup registration.
func All() []module.Descriptor {
	return []module.Descriptor{
		Verify{}.Descriptor(),
		Report{}.Descriptor(),
	}
}
