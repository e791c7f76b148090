package models

// BasicResult is what the inline upload scoring returns.
type BasicResult struct {
	Score    int        `json:"score"`
	Feedback []Feedback `json:"feedback"`
}

type DetailedResult struct {
	Score           int             `json:"score"`
	KeywordAnalysis KeywordAnalysis `json:"keywordAnalysis"`
	Feedback        []Feedback      `json:"feedback"`
}

type OptimizationResult struct {
	Score           int             `json:"score"`
	KeywordAnalysis KeywordAnalysis `json:"keywordAnalysis"`
	Suggestions     []string        `json:"suggestions"`
}

// ClampScore keeps a score inside 0..100.
func ClampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
