package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/huskyapply/gateway/internal/service"
)

type SubmitCmd struct {
	Server    string        `help:"Gateway URL" default:"http://localhost:8080" env:"HUSKY_SERVER"`
	Token     string        `help:"Bearer token for authentication" env:"HUSKY_TOKEN"`
	JDURL     string        `arg:"" help:"Job description URL the cover letter targets"`
	Resume    string        `help:"Resume URI (s3:// or https://)" required:""`
	Provider  string        `help:"Model provider, defaults to the gateway's configured default"`
	Model     string        `help:"Model name, defaults to the gateway's configured default"`
	Timeout   time.Duration `help:"Request timeout" default:"30s"`
	Watch     bool          `help:"Stream status events after submitting" default:"false"`
}

func (s *SubmitCmd) Run(ctx context.Context, globals *Globals) error {
	client := newAPIClient(s.Server, s.Token, s.Timeout)

	var resp struct {
		JobID string `json:"jobId"`
	}
	err := client.doJSON(ctx, http.MethodPost, "/api/v1/applications", service.CreateJobRequest{
		JDURL:         s.JDURL,
		ResumeURI:     s.Resume,
		ModelProvider: s.Provider,
		ModelName:     s.Model,
	}, &resp)
	if err != nil {
		return fmt.Errorf("failed to submit job: %w", err)
	}

	fmt.Printf("Job submitted with ID: %s\n", resp.JobID)

	if !s.Watch {
		return nil
	}
	watch := &WatchCmd{Server: s.Server, Token: s.Token, JobID: resp.JobID, Timeout: 10 * time.Minute}
	return watch.Run(ctx, globals)
}
