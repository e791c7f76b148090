package scoring

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"example/resume-api/app/models"
)

var (
	emailRegex   = regexp.MustCompile(`(?i)[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`)
	phoneRegex   = regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`)
	metricRegex  = regexp.MustCompile(`(?i)(\d+(\.\d+)?\s*(%|percent|k\b|m\b|x\b))|([$€£]\s?\d)|(\b\d{2,}\b)`)
	linkRegex    = regexp.MustCompile(`(?i)\b(linkedin\.com|github\.com)\b`)
	bulletRegex  = regexp.MustCompile(`(?m)^\s*([-*•]|\d+\.)\s+`)
	sectionRegex = map[string]*regexp.Regexp{
		"experience": regexp.MustCompile(`(?im)^\s*(work\s+|professional\s+)?experience\b|^\s*employment(\s+history)?\b`),
		"education":  regexp.MustCompile(`(?im)^\s*education\b`),
		"skills":     regexp.MustCompile(`(?im)^\s*(technical\s+)?skills\b`),
		"summary":    regexp.MustCompile(`(?im)^\s*(summary|profile|objective)\b`),
		"projects":   regexp.MustCompile(`(?im)^\s*(projects|certifications|achievements)\b`),
	}
	sectionOrder = []string{"summary", "experience", "education", "skills", "projects"}
)

// actionVerbs and atsTerms are what a detailed report looks for when no job
// description is involved.
var (
	actionVerbs = []string{"achieved", "built", "delivered", "designed", "improved", "increased", "launched",
		"led", "managed", "optimized", "reduced", "implemented", "developed", "automated", "mentored"}
	atsTerms = []string{"agile", "analysis", "communication", "collaboration", "leadership", "stakeholders",
		"strategy", "budget", "customer", "project", "process", "quality", "reporting", "testing"}
)

var ErrEmptyText = errors.New("no text to score")

// Heuristic scores with regular expressions and keyword sets.
type Heuristic struct{}

func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

type facts struct {
	words    int
	sections map[string]bool
	email    bool
	phone    bool
	links    bool
	metrics  int
	bullets  int
}

func inspect(text string) facts {
	f := facts{
		words:    len(strings.Fields(text)),
		sections: make(map[string]bool),
		email:    emailRegex.MatchString(text),
		phone:    phoneRegex.MatchString(text),
		links:    linkRegex.MatchString(text),
		metrics:  len(metricRegex.FindAllString(text, -1)),
		bullets:  len(bulletRegex.FindAllString(text, -1)),
	}
	for name, re := range sectionRegex {
		f.sections[name] = re.MatchString(text)
	}
	return f
}

func (h *Heuristic) ScoreBasic(_ context.Context, text string) (models.BasicResult, error) {
	if strings.TrimSpace(text) == "" {
		return models.BasicResult{}, ErrEmptyText
	}
	f := inspect(text)
	score, fb := basicScore(f)
	return models.BasicResult{Score: score, Feedback: fb}, nil
}

func basicScore(f facts) (int, []models.Feedback) {
	var fb []models.Feedback
	score := 30

	for _, name := range sectionOrder {
		if f.sections[name] {
			score += 8
		} else {
			fb = append(fb, warn("Add a clearly titled %s section.", name))
		}
	}
	found := 0
	for _, ok := range f.sections {
		if ok {
			found++
		}
	}
	if found >= 4 {
		fb = append(fb, positive("Standard section headings make the resume easy to parse."))
	}

	if f.email && f.phone {
		score += 10
		fb = append(fb, positive("Contact details are present."))
	} else {
		fb = append(fb, warn("Include both an email address and a phone number."))
		if f.email || f.phone {
			score += 5
		}
	}

	switch {
	case f.words < 150:
		score -= 15
		fb = append(fb, warn("The resume is very short (%d words).", f.words))
	case f.words > 1200:
		score -= 10
		fb = append(fb, warn("The resume is long (%d words); aim for one or two pages.", f.words))
	default:
		score += 10
	}

	if f.bullets >= 5 {
		score += 5
	} else {
		fb = append(fb, warn("Use bullet points to list responsibilities and results."))
	}
	return models.ClampScore(score), fb
}

func (h *Heuristic) ScoreDetailed(_ context.Context, text string) (models.DetailedResult, error) {
	if strings.TrimSpace(text) == "" {
		return models.DetailedResult{}, ErrEmptyText
	}
	f := inspect(text)
	base, fb := basicScore(f)

	have := tokenSet(text)
	var matched, missing []string
	for _, term := range append(append([]string{}, actionVerbs...), atsTerms...) {
		if _, ok := have[term]; ok {
			matched = append(matched, term)
		} else {
			missing = append(missing, term)
		}
	}
	total := len(actionVerbs) + len(atsTerms)
	coverage := len(matched) * 100 / total

	score := base*6/10 + coverage*3/10
	if f.metrics >= 3 {
		score += 10
		fb = append(fb, positive("Results are backed by numbers."))
	} else {
		fb = append(fb, warn("Quantify achievements (percentages, amounts, counts)."))
	}
	if f.links {
		fb = append(fb, positive("Professional profile links are included."))
	}
	if coverage < 30 {
		fb = append(fb, warn("Few action verbs and common ATS terms were found."))
	}

	return models.DetailedResult{
		Score:           models.ClampScore(score),
		KeywordAnalysis: models.NewKeywordAnalysis(matched, missing),
		Feedback:        fb,
	}, nil
}

// Optimize measures how much of the job description's vocabulary the resume
// already uses and suggests the missing terms.
func (h *Heuristic) Optimize(_ context.Context, text, jobDescription string) (models.OptimizationResult, error) {
	if strings.TrimSpace(text) == "" {
		return models.OptimizationResult{}, ErrEmptyText
	}
	keywords := jobKeywords(jobDescription, 25)
	if len(keywords) == 0 {
		return models.OptimizationResult{}, errors.New("job description has no usable keywords")
	}

	have := tokenSet(text)
	var matched, missing []string
	for _, kw := range keywords {
		if _, ok := have[kw]; ok {
			matched = append(matched, kw)
		} else {
			missing = append(missing, kw)
		}
	}
	score := len(matched) * 100 / len(keywords)

	var suggestions []string
	for i, kw := range missing {
		if i == 8 {
			break
		}
		suggestions = append(suggestions, fmt.Sprintf("Mention %q where it reflects your experience.", kw))
	}
	if inspect(text).metrics < 3 {
		suggestions = append(suggestions, "Add measurable results to the experience most relevant to this role.")
	}
	if len(missing) == 0 {
		suggestions = append(suggestions, "Keywords already match; tailor the summary to the role title.")
	}

	return models.OptimizationResult{
		Score:           models.ClampScore(score),
		KeywordAnalysis: models.NewKeywordAnalysis(matched, missing),
		Suggestions:     suggestions,
	}, nil
}

func warn(format string, args ...any) models.Feedback {
	return models.Feedback{Kind: models.FeedbackWarning, Message: fmt.Sprintf(format, args...)}
}

func positive(msg string) models.Feedback {
	return models.Feedback{Kind: models.FeedbackPositive, Message: msg}
}
