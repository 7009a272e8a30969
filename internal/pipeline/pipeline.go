// Package pipeline runs an uploaded document through a fixed sequence of
// role-specialised LLM agents and collects their reports.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kiranshivaraju/findoc/internal/ai"
	"github.com/kiranshivaraju/findoc/internal/metrics"
	"github.com/kiranshivaraju/findoc/internal/search"
	"github.com/kiranshivaraju/findoc/pkg/models"
	"golang.org/x/time/rate"
)

var ErrPipeline = errors.New("analysis pipeline failed")

const (
	defaultMaxDocumentChars = 20000
	Disclaimer              = "This analysis is generated by AI models for informational purposes only and does not constitute investment advice."
)

// Runner is the pipeline as seen by the job executor: an opaque call with
// unknown latency that may fail.
type Runner interface {
	Run(ctx context.Context, query, filePath string) (*Report, error)
}

type Options struct {
	Temperature float32
	// RequestsPerMinute caps LLM calls across all agents. Zero means no cap.
	RequestsPerMinute int
	// Search is the web search tool. Nil leaves the tool unavailable.
	Search           search.Client
	Reader           DocumentReader
	MaxDocumentChars int
}

type Pipeline struct {
	provider models.AIProvider
	crew     *Crew
	opts     Options
	global   *rate.Limiter
	limiters map[string]*rate.Limiter
}

func New(provider models.AIProvider, crew *Crew, opts Options) *Pipeline {
	if opts.Reader == nil {
		opts.Reader = ReadPDF
	}
	if opts.MaxDocumentChars <= 0 {
		opts.MaxDocumentChars = defaultMaxDocumentChars
	}

	limiters := make(map[string]*rate.Limiter, len(crew.Agents))
	for _, a := range crew.Agents {
		limiters[a.Key] = newLimiter(a.MaxRPM)
	}

	return &Pipeline{
		provider: provider,
		crew:     crew,
		opts:     opts,
		global:   newLimiter(opts.RequestsPerMinute),
		limiters: limiters,
	}
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
}

// Agents returns the agent roles in definition order.
func (p *Pipeline) Agents() []string {
	return p.crew.Roles()
}

// Tools returns the tools usable in this process.
func (p *Pipeline) Tools() []string {
	tools := []string{ToolReadDocument, ToolInvestment, ToolRisk}
	if p.opts.Search != nil {
		tools = append(tools, ToolWebSearch)
	}
	return tools
}

func (p *Pipeline) Components() []string {
	return p.crew.Components()
}

func (p *Pipeline) Run(ctx context.Context, query, filePath string) (*Report, error) {
	text, err := p.opts.Reader(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: read document: %w", ErrPipeline, err)
	}

	excerpt := truncateRunes(text, p.opts.MaxDocumentChars)
	if strings.TrimSpace(excerpt) == "" {
		excerpt = "(the document contains no extractable text)"
	}

	report := &Report{
		Query:      query,
		Components: p.crew.Components(),
		Investment: AnalyzeInvestment(text),
		Risk:       AnalyzeRisk(text),
		Provider:   p.provider.Name(),
		Model:      p.provider.Model(),
	}

	var web *string
	for _, task := range p.crew.Tasks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		agent, _ := p.crew.Agent(task.Agent)

		tools := []toolOutput{}
		if agent.HasTool(ToolReadDocument) {
			tools = append(tools, toolOutput{name: ToolReadDocument, output: excerpt})
		}
		if agent.HasTool(ToolWebSearch) && p.opts.Search != nil {
			if web == nil {
				out := p.webSearch(ctx, query)
				web = &out
				report.WebSearchUsed = true
			}
			tools = append(tools, toolOutput{name: ToolWebSearch, output: *web})
		}
		if agent.HasTool(ToolInvestment) {
			tools = append(tools, toolOutput{name: ToolInvestment, output: report.Investment.String()})
		}
		if agent.HasTool(ToolRisk) {
			tools = append(tools, toolOutput{name: ToolRisk, output: report.Risk.String()})
		}

		req := models.CompletionRequest{
			System:      systemPrompt(agent, query, p.crew),
			Prompt:      taskPrompt(task, query, tools, report.Stages),
			Temperature: p.opts.Temperature,
		}

		start := time.Now()
		out, attempts, err := p.complete(ctx, agent, req)
		metrics.StageDuration.WithLabelValues(task.Key).Observe(time.Since(start).Seconds())
		if err != nil {
			return nil, fmt.Errorf("%w: task %s (%s): %w", ErrPipeline, task.Key, agent.Role, err)
		}

		report.Stages = append(report.Stages, StageOutput{
			Task:     task.Key,
			Agent:    agent.Key,
			Role:     agent.Role,
			Output:   out,
			Attempts: attempts,
		})
		slog.Info("pipeline stage completed",
			"task", task.Key,
			"agent", agent.Key,
			"attempts", attempts,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	return report, nil
}

// complete calls the provider, retrying invalid (empty) answers up to the
// agent's max_iter. Other errors are returned immediately.
func (p *Pipeline) complete(ctx context.Context, agent Agent, req models.CompletionRequest) (string, int, error) {
	var lastErr error
	for attempt := 1; attempt <= max(agent.MaxIter, 1); attempt++ {
		if err := throttle(ctx, p.global); err != nil {
			return "", attempt, err
		}
		if err := throttle(ctx, p.limiters[agent.Key]); err != nil {
			return "", attempt, err
		}

		out, err := p.provider.Complete(ctx, req)
		if err == nil && strings.TrimSpace(out) != "" {
			return out, attempt, nil
		}
		if err == nil {
			err = ai.ErrInvalidResponse
		}
		if !ai.Retryable(err) {
			return "", attempt, err
		}
		lastErr = err
		slog.Warn("agent returned an unusable answer", "agent", agent.Key, "attempt", attempt)
	}
	return "", agent.MaxIter, lastErr
}

// throttle waits for a token from l. A wait the limiter refuses because it
// would outlast ctx's deadline is reported as context.DeadlineExceeded.
func throttle(ctx context.Context, l *rate.Limiter) error {
	err := l.Wait(ctx)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if _, ok := ctx.Deadline(); ok {
		return fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	return err
}

func (p *Pipeline) webSearch(ctx context.Context, query string) string {
	results, err := p.opts.Search.Search(ctx, query)
	if err != nil {
		slog.Warn("web search failed", "error", err)
		return "Web search unavailable: " + err.Error()
	}
	return search.Format(results)
}

var _ Runner = (*Pipeline)(nil)
