package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civichub/backend/internal/models"
)

// scriptedPrompter answers by matching the instruction text.
type scriptedPrompter struct {
	department string
	severity   string
	err        error
}

func (p *scriptedPrompter) Prompt(_ context.Context, instruction, _ string, _ []byte, _ string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	if strings.Contains(instruction, "department") {
		return p.department, nil
	}
	return p.severity, nil
}

func TestStubClassifierIsConstant(t *testing.T) {
	var c Classifier = StubClassifier{}
	got, err := c.Classify(context.Background(), nil, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "General", got.Department)
	assert.Equal(t, models.SeverityLow, got.Severity)
}

func TestInferenceClassifierNormalizesAnswers(t *testing.T) {
	c := NewInferenceClassifier(&scriptedPrompter{department: "  water supply.\n", severity: "HIGH "})

	got, err := c.Classify(context.Background(), []byte{0xff}, "image/jpeg", []string{"leak"})
	require.NoError(t, err)
	assert.Equal(t, "Water Supply", got.Department)
	assert.Equal(t, models.SeverityHigh, got.Severity)
}

func TestInferenceClassifierRejectsUnknownLabels(t *testing.T) {
	t.Run("department", func(t *testing.T) {
		c := NewInferenceClassifier(&scriptedPrompter{department: "Department of Magic", severity: "low"})
		_, err := c.Classify(context.Background(), nil, "image/png", []string{"x"})
		assert.ErrorIs(t, err, ErrUnrecognizedLabel)
	})

	t.Run("severity", func(t *testing.T) {
		c := NewInferenceClassifier(&scriptedPrompter{department: "General", severity: "catastrophic"})
		_, err := c.Classify(context.Background(), nil, "image/png", []string{"x"})
		assert.ErrorIs(t, err, ErrUnrecognizedLabel)
	})

	t.Run("backend failure", func(t *testing.T) {
		boom := errors.New("quota")
		c := NewInferenceClassifier(&scriptedPrompter{err: boom})
		_, err := c.Classify(context.Background(), nil, "image/png", []string{"x"})
		assert.ErrorIs(t, err, boom)
	})
}

func TestGeminiClientPrompt(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":" Sanitation \n"}]}}]}`))
	}))
	defer srv.Close()

	c := NewGeminiClient("secret", "test-model")
	c.Endpoint = srv.URL

	answer, err := c.Prompt(context.Background(), "pick one", "Tags: trash", []byte("img"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "Sanitation", answer)

	require.Len(t, got.Contents, 1)
	require.Len(t, got.Contents[0].Parts, 2)
	assert.Equal(t, "image/png", got.Contents[0].Parts[0].InlineData.MimeType)
	assert.Equal(t, "Tags: trash", got.Contents[0].Parts[1].Text)
	assert.Equal(t, "pick one", got.SystemInstruction.Parts[0].Text)
}

func TestGeminiClientHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewGeminiClient("secret", "")
	c.Endpoint = srv.URL

	_, err := c.Prompt(context.Background(), "i", "t", nil, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
