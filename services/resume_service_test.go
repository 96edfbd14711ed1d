package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExtractor struct {
	text string
	err  error
}

func (s stubExtractor) ExtractText(content []byte) (string, error) {
	return s.text, s.err
}

type stubCompleter struct {
	reply  string
	err    error
	system string
	user   string
}

func (s *stubCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	s.system, s.user = systemPrompt, userPrompt
	return s.reply, s.err
}

func TestResumeService_Parse(t *testing.T) {
	completer := &stubCompleter{reply: "Here you go:\n```json\n" + `{
		"fullName": " Jane Doe ",
		"email": "Jane@Example.com",
		"skills": ["Go", "go", " Kubernetes ", ""],
		"experience": [{"company": "Acme", "title": "Staff Engineer", "startDate": "2019", "endDate": "Present"}]
	}` + "\n```"}
	svc := NewResumeService(stubExtractor{text: "Jane Doe, Staff Engineer at Acme"}, completer, nil)

	profile, err := svc.Parse(context.Background(), []byte("%PDF-1.4"))
	require.NoError(t, err)

	assert.Equal(t, "Jane Doe", profile.FullName)
	assert.Equal(t, "jane@example.com", profile.Email)
	assert.Equal(t, []string{"Go", "Kubernetes"}, profile.Skills)
	require.Len(t, profile.Experience, 1)
	assert.Equal(t, "Present", profile.Experience[0].EndDate)
	assert.NotNil(t, profile.Education)

	assert.Contains(t, completer.system, `"fullName"`)
	assert.True(t, strings.HasPrefix(completer.user, "Resume:"))
	assert.Contains(t, completer.user, "Staff Engineer at Acme")
}

func TestResumeService_TruncatesLongText(t *testing.T) {
	completer := &stubCompleter{reply: `{"fullName":"A"}`}
	svc := NewResumeService(stubExtractor{text: strings.Repeat("x", maxResumeChars+500)}, completer, nil)

	_, err := svc.Parse(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, completer.user, len("Resume:\n\n")+maxResumeChars)
}

func TestResumeService_Errors(t *testing.T) {
	_, err := NewResumeService(stubExtractor{err: ErrNoExtractableText}, &stubCompleter{}, nil).
		Parse(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoExtractableText)

	_, err = NewResumeService(stubExtractor{text: "resume"}, &stubCompleter{err: errors.New("401")}, nil).
		Parse(context.Background(), nil)
	var upstream *UpstreamError
	assert.ErrorAs(t, err, &upstream)

	_, err = NewResumeService(stubExtractor{text: "resume"}, &stubCompleter{reply: "I cannot help with that."}, nil).
		Parse(context.Background(), nil)
	assert.ErrorContains(t, err, "failed to decode resume profile")
}

func TestPDFExtractor_RejectsGarbage(t *testing.T) {
	p := NewPDFExtractor(nil)

	_, err := p.ExtractText(nil)
	assert.Error(t, err)

	_, err = p.ExtractText([]byte("definitely not a pdf"))
	assert.Error(t, err)
}
