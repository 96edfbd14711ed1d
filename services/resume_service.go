package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/northbeam/portal-api/model"
	"github.com/northbeam/portal-api/services/assistant"
	"github.com/northbeam/portal-api/utils"
	"go.uber.org/zap"
)

// maxResumeChars bounds the text sent to the model
const maxResumeChars = 24000

const resumeSystemPrompt = `You extract structured data from resumes.
Respond with a single JSON object and nothing else, using exactly these keys:
{
  "fullName": string,
  "email": string,
  "phone": string,
  "location": string,
  "headline": string,
  "summary": string,
  "skills": [string],
  "experience": [{"company": string, "title": string, "startDate": string, "endDate": string, "description": string}],
  "education": [{"institution": string, "degree": string, "field": string, "year": string}]
}
Use empty strings or empty arrays for anything the resume does not state. Do not invent details.
Write dates as they appear, or "Present" for current roles. Keep "summary" under 80 words.`

// TextExtractor turns an uploaded document into plain text
type TextExtractor interface {
	ExtractText(content []byte) (string, error)
}

// ResumeService parses resumes into a ResumeProfile
type ResumeService struct {
	extractor TextExtractor
	completer assistant.Completer
	logger    *zap.Logger
}

// NewResumeService creates a resume parser
func NewResumeService(extractor TextExtractor, completer assistant.Completer, logger *zap.Logger) *ResumeService {
	return &ResumeService{
		extractor: extractor,
		completer: completer,
		logger:    utils.OrNop(logger),
	}
}

// Parse extracts the resume text and asks the model to structure it
func (s *ResumeService) Parse(ctx context.Context, content []byte) (*model.ResumeProfile, error) {
	text, err := s.extractor.ExtractText(content)
	if err != nil {
		return nil, err
	}
	if len(text) > maxResumeChars {
		text = text[:maxResumeChars]
	}

	raw, err := s.completer.Complete(ctx, resumeSystemPrompt, "Resume:\n\n"+text)
	if err != nil {
		return nil, &UpstreamError{Op: "parse resume", Err: err}
	}

	var profile model.ResumeProfile
	if err := utils.ExtractJSONTo(raw, &profile); err != nil {
		s.logger.Warn("Model returned unparseable resume profile", zap.Int("response_len", len(raw)), zap.Error(err))
		return nil, fmt.Errorf("failed to decode resume profile: %w", err)
	}

	normalizeProfile(&profile)
	return &profile, nil
}

func normalizeProfile(p *model.ResumeProfile) {
	p.FullName = strings.TrimSpace(p.FullName)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))

	skills := make([]string, 0, len(p.Skills))
	seen := make(map[string]bool, len(p.Skills))
	for _, skill := range p.Skills {
		skill = strings.TrimSpace(skill)
		key := strings.ToLower(skill)
		if skill == "" || seen[key] {
			continue
		}
		seen[key] = true
		skills = append(skills, skill)
	}
	p.Skills = skills

	if p.Experience == nil {
		p.Experience = []model.ResumeExperience{}
	}
	if p.Education == nil {
		p.Education = []model.ResumeEducation{}
	}
}
