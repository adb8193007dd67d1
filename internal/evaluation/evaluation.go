package evaluation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spigell/hh-interviewer/internal/session"
)

// ErrParse is returned when the summary reply is not a usable evaluation document.
var ErrParse = errors.New("parse evaluation")

// Rating is the fixed scale used for communication and technical depth.
type Rating string

const (
	Poor      Rating = "Poor"
	Average   Rating = "Average"
	Good      Rating = "Good"
	Excellent Rating = "Excellent"
)

const (
	MinScore = 0
	MaxScore = 100

	missingSessionError = "Session not found"
)

// Evaluation is the final result of an interview. Its JSON form always carries
// every field so callers can persist it unconditionally.
type Evaluation struct {
	Score          int              `json:"score" bson:"score"`
	Strengths      []string         `json:"strengths" bson:"strengths"`
	Improvements   []string         `json:"improvements" bson:"improvements"`
	Communication  Rating           `json:"communication" bson:"communication"`
	TechnicalDepth Rating           `json:"technical_depth" bson:"technical_depth"`
	QAPairs        []session.QAPair `json:"qa_pairs" bson:"qa_pairs"`
	RawResult      *string          `json:"raw_result" bson:"raw_result"`
	Error          string           `json:"error,omitempty" bson:"error,omitempty"`
}

// Default is substituted whenever the summary reply cannot be used.
func Default() *Evaluation {
	return &Evaluation{
		Score: 75,
		Strengths: []string{
			"Good communication",
			"Relevant answers",
			"Professional tone",
		},
		Improvements: []string{
			"Add real-world examples",
			"Improve structure",
			"Be more concise",
		},
		Communication:  Good,
		TechnicalDepth: Average,
		QAPairs:        []session.QAPair{},
	}
}

// Missing is returned when the session no longer exists.
func Missing() *Evaluation {
	return &Evaluation{
		Score:          0,
		Strengths:      []string{"No valid session found"},
		Improvements:   []string{"Please restart the interview"},
		Communication:  Average,
		TechnicalDepth: Average,
		QAPairs:        []session.QAPair{},
		RawResult:      nil,
		Error:          missingSessionError,
	}
}

// WithTranscript attaches the interview transcript and the untouched model output.
func (e *Evaluation) WithTranscript(pairs []session.QAPair, raw *string) *Evaluation {
	e.QAPairs = session.CloneQAPairs(pairs)
	if e.QAPairs == nil {
		e.QAPairs = []session.QAPair{}
	}
	e.RawResult = raw
	return e
}

// StripCodeFence removes a leading ``` or ```json line and a trailing ``` line.
func StripCodeFence(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}

	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```JSON")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)
	if idx := strings.LastIndex(cleaned, "```"); idx != -1 {
		cleaned = cleaned[:idx]
	}

	return strings.TrimSpace(cleaned)
}

// Parse decodes a summary reply. The document must be a JSON object with a numeric score.
func Parse(raw string) (*Evaluation, error) {
	cleaned := StripCodeFence(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty document", ErrParse)
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: document is not an object", ErrParse)
	}

	score := coerceFloat(data["score"])
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return nil, fmt.Errorf("%w: score is missing or not numeric", ErrParse)
	}

	return &Evaluation{
		Score:          clampScore(score),
		Strengths:      coerceStrings(data["strengths"]),
		Improvements:   coerceStrings(data["improvements"]),
		Communication:  ParseRating(coerceString(data["communication"])),
		TechnicalDepth: ParseRating(coerceString(data["technical_depth"])),
		QAPairs:        []session.QAPair{},
	}, nil
}

// ParseRating maps free text onto the rating scale, defaulting to Average.
func ParseRating(v string) Rating {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "poor":
		return Poor
	case "average":
		return Average
	case "good":
		return Good
	case "excellent":
		return Excellent
	default:
		return Average
	}
}

// clampScore bounds the float before converting, out of range floats do not
// survive an int conversion.
func clampScore(score float64) int {
	rounded := math.Round(score)
	if rounded < MinScore {
		return MinScore
	}
	if rounded > MaxScore {
		return MaxScore
	}
	return int(rounded)
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}

func coerceStrings(v any) []string {
	out := []string{}
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			if s := coerceString(item); s != "" {
				out = append(out, s)
			}
		}
	case string:
		if s := strings.TrimSpace(val); s != "" {
			out = append(out, s)
		}
	}
	return out
}
