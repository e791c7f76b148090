package models

// Stats summarizes the engine for the operator dashboard.
type Stats struct {
	SubmissionsByStatus map[SubmissionStatus]int `json:"submissionsByStatus"`
	OpenReviews         int                      `json:"openReviews"`
	AppliedSessions     int                      `json:"appliedSessions"`
	RevenueCents        int64                    `json:"revenueCents"`
}
