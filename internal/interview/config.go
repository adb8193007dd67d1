package interview

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Config describes the candidate and the interview being scheduled.
// The json names are also the placeholder names of the system prompt.
type Config struct {
	CandidateName              string `json:"candidateName" mapstructure:"candidate-name"`
	Role                       string `json:"role" mapstructure:"role"`
	NatureOfRole               string `json:"natureOfRole" mapstructure:"nature-of-role"`
	EducationalQualification   string `json:"educationalQualification" mapstructure:"educational-qualification"`
	PastYearsExperience        string `json:"pastYearsExperience" mapstructure:"past-years-experience"`
	PastYearsExperienceField   string `json:"pastYearsExperienceField" mapstructure:"past-years-experience-field"`
	CurrentYearExperience      string `json:"currentYearExperience" mapstructure:"current-year-experience"`
	CurrentYearExperienceField string `json:"currentYearExperienceField" mapstructure:"current-year-experience-field"`
	CoreSkillSet               string `json:"coreSkillSet" mapstructure:"core-skill-set"`
	TypeOfCompany              string `json:"typeOfCompany" mapstructure:"type-of-company"`
	InterviewType              string `json:"interviewType" mapstructure:"interview-type"`
	Level                      string `json:"level" mapstructure:"level"`
	// Duration is the planned length in minutes.
	Duration int `json:"duration" mapstructure:"duration"`

	ScheduledInterviewID string `json:"scheduledInterviewId" mapstructure:"scheduled-interview-id"`
	CredentialID         string `json:"credentialId" mapstructure:"credential-id"`
}

// Validate checks the fields the interview cannot start without.
func (c *Config) Validate() error {
	if c == nil || strings.TrimSpace(c.Role) == "" {
		return &ValidationError{Field: "role"}
	}
	if c.Duration < 0 {
		return &ValidationError{Field: "duration", Reason: "must not be negative"}
	}
	return nil
}

// Params returns the system prompt placeholder values keyed by their json names.
func (c *Config) Params() (map[string]any, error) {
	params := map[string]any{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &params,
		TagName: "json",
	})
	if err != nil {
		return nil, fmt.Errorf("create params decoder: %w", err)
	}
	if err := decoder.Decode(c); err != nil {
		return nil, fmt.Errorf("decode interview params: %w", err)
	}
	return params, nil
}

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "is required"
	}
	return fmt.Sprintf("%s %s", e.Field, reason)
}
