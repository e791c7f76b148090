package models

import (
	"sort"
	"time"
)

type SubmissionStatus string

const (
	StatusUploaded            SubmissionStatus = "uploaded"
	StatusBasicATSComplete    SubmissionStatus = "basic_ats_complete"
	StatusDetailedATSComplete SubmissionStatus = "detailed_ats_complete"
	StatusJobOptComplete      SubmissionStatus = "job_opt_complete"
	StatusPendingReview       SubmissionStatus = "pending_review"
	StatusReviewComplete      SubmissionStatus = "review_complete"
)

// submissionTransitions lists every allowed move. Anything absent is rejected.
// pending_review can fall back to the status it was entered from when the
// open review is cancelled.
var submissionTransitions = map[SubmissionStatus][]SubmissionStatus{
	StatusUploaded: {
		StatusBasicATSComplete,
		StatusPendingReview,
	},
	StatusBasicATSComplete: {
		StatusDetailedATSComplete,
		StatusJobOptComplete,
		StatusPendingReview,
	},
	StatusDetailedATSComplete: {
		StatusDetailedATSComplete,
		StatusJobOptComplete,
		StatusPendingReview,
	},
	StatusJobOptComplete: {
		StatusDetailedATSComplete,
		StatusJobOptComplete,
		StatusPendingReview,
	},
	StatusPendingReview: {
		StatusReviewComplete,
		StatusUploaded,
		StatusBasicATSComplete,
		StatusDetailedATSComplete,
		StatusJobOptComplete,
	},
	StatusReviewComplete: {
		StatusDetailedATSComplete,
		StatusJobOptComplete,
		StatusPendingReview,
	},
}

func (s SubmissionStatus) Valid() bool {
	_, ok := submissionTransitions[s]
	return ok
}

func (s SubmissionStatus) CanTransitionTo(next SubmissionStatus) bool {
	for _, allowed := range submissionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AnalysisKind is a user-triggered, metered analysis.
type AnalysisKind string

const (
	AnalysisDetailedATS     AnalysisKind = "detailed_ats"
	AnalysisJobOptimization AnalysisKind = "job_optimization"
)

func (k AnalysisKind) Valid() bool {
	return k == AnalysisDetailedATS || k == AnalysisJobOptimization
}

// Pool is the credit pool a non-subscriber pays from.
func (k AnalysisKind) Pool() CreditPool {
	if k == AnalysisJobOptimization {
		return PoolOptimization
	}
	return PoolATS
}

// Status is the submission status reached when the analysis completes.
func (k AnalysisKind) Status() SubmissionStatus {
	if k == AnalysisJobOptimization {
		return StatusJobOptComplete
	}
	return StatusDetailedATSComplete
}

type FeedbackKind string

const (
	FeedbackPositive FeedbackKind = "positive"
	FeedbackWarning  FeedbackKind = "warning"
)

type Feedback struct {
	Kind    FeedbackKind `json:"kind"`
	Message string       `json:"message"`
}

// KeywordAnalysis holds two keyword sets, kept sorted and de-duplicated.
type KeywordAnalysis struct {
	Matched []string `json:"matched"`
	Missing []string `json:"missing"`
}

// NewKeywordAnalysis normalizes both slices into sorted sets.
func NewKeywordAnalysis(matched, missing []string) KeywordAnalysis {
	return KeywordAnalysis{Matched: stringSet(matched), Missing: stringSet(missing)}
}

func stringSet(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Submission is one uploaded resume and everything computed from it.
type Submission struct {
	ID                   string           `json:"id"`
	OwnerID              string           `json:"ownerId"`
	Status               SubmissionStatus `json:"status"`
	StatusBeforeReview   SubmissionStatus `json:"-"`
	FileName             string           `json:"fileName"`
	OriginalArtifact     string           `json:"-"`
	OptimizedArtifact    string           `json:"-"`
	DocumentText         string           `json:"-"`
	ATSScore             *int             `json:"atsScore,omitempty"`
	OptimizationScore    *int             `json:"optimizationScore,omitempty"`
	JobDescription       string           `json:"jobDescription,omitempty"`
	KeywordAnalysis      *KeywordAnalysis `json:"keywordAnalysis,omitempty"`
	Feedback             []Feedback       `json:"feedback"`
	Suggestions          []string         `json:"suggestions,omitempty"`
	EditedText           string           `json:"editedText,omitempty"`
	HasOptimizedArtifact bool             `json:"hasOptimizedArtifact"`
	SubmittedAt          time.Time        `json:"submittedAt"`
	CompletedAt          *time.Time       `json:"completedAt,omitempty"`
	Version              int              `json:"version"`
}

// Clone returns a deep copy so callers never share slices with a store.
func (s Submission) Clone() Submission {
	out := s
	out.ATSScore = cloneInt(s.ATSScore)
	out.OptimizationScore = cloneInt(s.OptimizationScore)
	if s.KeywordAnalysis != nil {
		ka := KeywordAnalysis{
			Matched: append([]string(nil), s.KeywordAnalysis.Matched...),
			Missing: append([]string(nil), s.KeywordAnalysis.Missing...),
		}
		out.KeywordAnalysis = &ka
	}
	out.Feedback = append([]Feedback(nil), s.Feedback...)
	out.Suggestions = append([]string(nil), s.Suggestions...)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// AnalysisText is the text analyses run against: the edited snapshot when
// one exists, the extracted upload text otherwise.
func (s Submission) AnalysisText() string {
	if s.EditedText != "" {
		return s.EditedText
	}
	return s.DocumentText
}

// Advance moves to next when the table allows it and reports whether it did.
func (s *Submission) Advance(next SubmissionStatus) bool {
	if !s.Status.CanTransitionTo(next) {
		return false
	}
	s.Status = next
	return true
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// IntPtr is a small helper for optional scores.
func IntPtr(v int) *int { return &v }
