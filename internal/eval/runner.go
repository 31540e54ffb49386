package eval

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/voicecrm/internal/extract"
	"github.com/kalambet/voicecrm/internal/logger"
)

const (
	StatusPass  = "PASS"
	StatusFail  = "FAIL"
	StatusError = "ERROR"
)

// Extractor is the extraction step under evaluation.
type Extractor interface {
	Extract(ctx context.Context, transcript string) (extract.Result, error)
}

// CaseResult is the outcome of one case. Output is omitted when extraction
// failed; Error is omitted when it succeeded.
type CaseResult struct {
	ID     int            `json:"id"`
	Input  string         `json:"input"`
	Output extract.Result `json:"output,omitempty"`
	Status string         `json:"status"`
	Error  string         `json:"error,omitempty"`
}

// Summary counts results per status.
type Summary struct {
	Total  int
	Passed int
	Failed int
	Errors int
}

// Runner extracts CRM fields from a fixed set of transcripts and grades each
// result by whether a customer name came back.
type Runner struct {
	extractor   Extractor
	concurrency int
	log         *logger.Logger
}

// NewRunner creates a Runner. concurrency below 1 means sequential.
func NewRunner(e Extractor, concurrency int, log *logger.Logger) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Runner{extractor: e, concurrency: concurrency, log: log}
}

// Run evaluates cases and returns one result per case in input order. A
// failing case never aborts the run; only a cancelled ctx does.
func (r *Runner) Run(ctx context.Context, cases []string) ([]CaseResult, error) {
	results := make([]CaseResult, len(cases))
	var g errgroup.Group
	g.SetLimit(r.concurrency)

	for i, text := range cases {
		g.Go(func() error {
			results[i] = r.runCase(ctx, i+1, text)
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func (r *Runner) runCase(ctx context.Context, id int, text string) CaseResult {
	res := CaseResult{ID: id, Input: text}
	log := r.log.WithField("case", id)

	out, err := r.extractor.Extract(ctx, text)
	if err != nil {
		res.Status = StatusError
		res.Error = err.Error()
		log.WithError(err).Warn("eval case errored")
		return res
	}

	res.Output = out
	if out.HasName() {
		res.Status = StatusPass
	} else {
		res.Status = StatusFail
	}
	log.WithFields(logrus.Fields{"status": res.Status}).Debug("eval case done")
	return res
}

// Summarize tallies results by status.
func Summarize(results []CaseResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			s.Passed++
		case StatusFail:
			s.Failed++
		default:
			s.Errors++
		}
	}
	return s
}
