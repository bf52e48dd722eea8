package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

type ArtifactCmd struct {
	Server  string        `help:"Gateway URL" default:"http://localhost:8080" env:"HUSKY_SERVER"`
	Token   string        `help:"Bearer token for authentication" env:"HUSKY_TOKEN"`
	JobID   string        `arg:"" help:"Job ID to fetch the artifact for"`
	Timeout time.Duration `help:"Request timeout" default:"30s"`
	Quiet   bool          `help:"Print only the generated text" short:"q"`
}

func (a *ArtifactCmd) Run(ctx context.Context, globals *Globals) error {
	client := newAPIClient(a.Server, a.Token, a.Timeout)

	var artifact struct {
		JobID         string    `json:"jobId"`
		ContentType   string    `json:"contentType"`
		GeneratedText string    `json:"generatedText"`
		WordCount     int       `json:"wordCount"`
		CreatedAt     time.Time `json:"createdAt"`
	}
	err := client.doJSON(ctx, http.MethodGet,
		fmt.Sprintf("/api/v1/applications/%s/artifact", a.JobID), nil, &artifact)
	if err != nil {
		return fmt.Errorf("failed to fetch artifact: %w", err)
	}

	if a.Quiet {
		fmt.Println(artifact.GeneratedText)
		return nil
	}

	fmt.Printf("Job:        %s\n", artifact.JobID)
	fmt.Printf("Type:       %s\n", artifact.ContentType)
	fmt.Printf("Words:      %d\n", artifact.WordCount)
	fmt.Printf("Created:    %s\n", artifact.CreatedAt.Local().Format(time.RFC3339))
	fmt.Printf("\n%s\n", artifact.GeneratedText)
	return nil
}
