package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/civichub/backend/internal/models"
)

// Classification is what a Classifier assigns to a submission.
type Classification struct {
	Department string
	Severity   models.Severity
}

// Classifier maps a photo and its tags to a department and severity.
type Classifier interface {
	Classify(ctx context.Context, photo []byte, mimeType string, tags []string) (Classification, error)
}

// StubClassifier is used when no inference backend is configured.
type StubClassifier struct{}

func (StubClassifier) Classify(context.Context, []byte, string, []string) (Classification, error) {
	return Classification{Department: "General", Severity: models.SeverityLow}, nil
}

// Departments is the closed category set the inference classifier picks from.
var Departments = []string{
	"Roads and Transport",
	"Water Supply",
	"Sanitation",
	"Electricity",
	"Public Safety",
	"Parks and Environment",
	"General",
}

// Prompter sends one instruction plus image to a generative model and
// returns its raw text answer.
type Prompter interface {
	Prompt(ctx context.Context, instruction, text string, image []byte, mimeType string) (string, error)
}

var ErrUnrecognizedLabel = errors.New("unrecognized label")

// InferenceClassifier asks a Prompter two independent questions: which
// department, and which severity. Answers outside the allowed sets fail.
type InferenceClassifier struct {
	prompter    Prompter
	departments map[string]string
}

func NewInferenceClassifier(p Prompter) *InferenceClassifier {
	deps := make(map[string]string, len(Departments))
	for _, d := range Departments {
		deps[normalizeLabel(d)] = d
	}
	return &InferenceClassifier{prompter: p, departments: deps}
}

func (c *InferenceClassifier) Classify(ctx context.Context, photo []byte, mimeType string, tags []string) (Classification, error) {
	text := "Tags: " + strings.Join(tags, ", ")

	var out Classification
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		raw, err := c.prompter.Prompt(gctx, departmentInstruction(), text, photo, mimeType)
		if err != nil {
			return fmt.Errorf("department prompt: %w", err)
		}
		dep, ok := c.departments[normalizeLabel(raw)]
		if !ok {
			return fmt.Errorf("department %q: %w", raw, ErrUnrecognizedLabel)
		}
		out.Department = dep
		return nil
	})
	g.Go(func() error {
		raw, err := c.prompter.Prompt(gctx, severityInstruction, text, photo, mimeType)
		if err != nil {
			return fmt.Errorf("severity prompt: %w", err)
		}
		sev, ok := models.ParseSeverity(raw)
		if !ok {
			return fmt.Errorf("severity %q: %w", raw, ErrUnrecognizedLabel)
		}
		out.Severity = sev
		return nil
	})
	if err := g.Wait(); err != nil {
		return Classification{}, err
	}
	return out, nil
}

func normalizeLabel(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, ".\"'`*")
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func departmentInstruction() string {
	return "You route civic issue reports to a municipal department. " +
		"Look at the photo and the tags and answer with exactly one of: " +
		strings.Join(Departments, "; ") + ". Answer with the department name only."
}

const severityInstruction = "You assess civic issue reports. Look at the photo and the tags and " +
	"rate how urgent the issue is. Answer with exactly one word: low, medium or high."
