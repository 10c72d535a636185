// Package report assembles synthesized topic sections into the final
// markdown document: generated title, introduction, per-topic body,
// conclusion, optional table of contents and the numbered source list.
package report

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"deepscribe/internal/engine"
)

// defaultTitle is used when title generation fails; a missing title never
// fails the run.
const defaultTitle = "Research Report"

const titlePrompt = `Create a concise, professional research report title based on this query: "%s"

The title should be:
- Clear and descriptive
- Professional in tone
- Under 100 characters
- Suitable for academic or business contexts

Return only the title, no quotes or formatting:`

const introductionPrompt = `You are a research analyst writing the introduction to a structured report.

The user asked: "%s"

Here are the synthesized sections by topic:

%s

Write an engaging, informative **introduction** that sets up the structure of the report, based on the topics and findings. The introduction should be no longer than one paragraph long.`

const conclusionPrompt = `You are a research analyst writing the conclusion to a structured report.

<User query>
"%s"
</User query>

<Key sections by topic>
%s
</Key sections by topic>

<Task>
Write a thoughtful **conclusion** that summarizes the major insights and takeaways across topics. Do not introduce new information. The conclusion should be no longer than one paragraph long.
</Task>`

// Assembler implements the engine's report assembly port.
type Assembler struct {
	llm    engine.LLMProvider
	model  string
	logger *log.Logger
}

// NewAssembler creates an assembler using model for title, introduction and
// conclusion generation.
func NewAssembler(llm engine.LLMProvider, model string, logger *log.Logger) *Assembler {
	if logger == nil {
		logger = log.New(log.Writer(), "[REPORT] ", log.LstdFlags)
	}
	return &Assembler{llm: llm, model: model, logger: logger}
}

// Assemble builds the complete markdown document. Title generation degrades
// to a default; introduction or conclusion failure fails the assembly.
func (a *Assembler) Assemble(ctx context.Context, in engine.ReportInput) (engine.Report, error) {
	title := a.title(ctx, in.Query)
	topicContent := summarizeSections(in)

	intro, err := a.llm.Generate(ctx, fmt.Sprintf(introductionPrompt, in.Query, topicContent), a.model)
	if err != nil {
		return engine.Report{}, engine.GenerationError{Op: "introduction", Cause: err}
	}
	conclusion, err := a.llm.Generate(ctx, fmt.Sprintf(conclusionPrompt, in.Query, topicContent), a.model)
	if err != nil {
		return engine.Report{}, engine.GenerationError{Op: "conclusion", Cause: err}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	if in.Legend {
		b.WriteString(legend(in.Topics))
	}
	fmt.Fprintf(&b, "## Introduction\n\n%s\n\n", strings.TrimSpace(intro))
	b.WriteString(body(in))
	fmt.Fprintf(&b, "\n## Conclusion\n\n%s", strings.TrimSpace(conclusion))
	b.WriteString(sourcesSection(in.Sources))

	return engine.Report{
		Title:    title,
		Document: b.String(),
		Filename: fmt.Sprintf("research_report_%s.md", time.Now().Format("20060102_150405")),
	}, nil
}

// Save writes an assembled report under dir and returns the full path.
func Save(r engine.Report, dir string) (string, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("creating report dir: %w", err)
		}
	}
	path := filepath.Join(dir, r.Filename)
	if err := os.WriteFile(path, []byte(r.Document), 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}

func (a *Assembler) title(ctx context.Context, query string) string {
	out, err := a.llm.Generate(ctx, fmt.Sprintf(titlePrompt, query), a.model)
	if err != nil {
		a.logger.Printf("title generation failed, using default: %v", err)
		return defaultTitle
	}
	title := strings.TrimSpace(strings.Trim(strings.TrimSpace(out), `"`))
	if title == "" {
		return defaultTitle
	}
	return title
}

// summarizeSections renders the per-topic content block the introduction and
// conclusion prompts consume.
func summarizeSections(in engine.ReportInput) string {
	var b strings.Builder
	for _, topic := range in.Topics {
		fmt.Fprintf(&b, "\nTopic: %s\nSection: %s\n", topic, sectionContent(in, topic))
	}
	return b.String()
}

func body(in engine.ReportInput) string {
	var b strings.Builder
	for _, topic := range in.Topics {
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", topic, sectionContent(in, topic))
	}
	return b.String()
}

func sectionContent(in engine.ReportInput, topic string) string {
	if res, ok := in.Sections[topic]; ok && strings.TrimSpace(res.Content) != "" {
		return res.Content
	}
	return fmt.Sprintf("No information available for %s.", topic)
}

// legend renders the table of contents with github-style anchors.
func legend(topics []string) string {
	var b strings.Builder
	b.WriteString("## Table of Contents\n\n")
	b.WriteString("1. [Introduction](#introduction)\n")
	for i, topic := range topics {
		fmt.Fprintf(&b, "%d. [%s](#%s)\n", i+2, topic, anchor(topic))
	}
	fmt.Fprintf(&b, "%d. [Conclusion](#conclusion)\n", len(topics)+2)
	fmt.Fprintf(&b, "%d. [Sources](#sources)\n\n", len(topics)+3)
	return b.String()
}

func anchor(topic string) string {
	a := strings.ToLower(topic)
	a = strings.ReplaceAll(a, " ", "-")
	a = strings.ReplaceAll(a, ",", "")
	a = strings.ReplaceAll(a, ":", "")
	return a
}

// sourcesSection renders the numbered source list sorted by citation id.
// Empty when the run discovered no sources.
func sourcesSection(sources []engine.Source) string {
	if len(sources) == 0 {
		return ""
	}
	sorted := make([]engine.Source, len(sources))
	copy(sorted, sources)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var b strings.Builder
	b.WriteString("\n## Sources\n\n")
	for _, s := range sorted {
		fmt.Fprintf(&b, "[%d] %s - %s\n\n", s.ID, s.Title, s.URL)
	}
	return b.String()
}
