package scoring

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"example/resume-api/app/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const strongResume = `Jane Doe
jane@example.com | +1 (555) 123-4567 | linkedin.com/in/janedoe

Summary
Backend engineer who designed and delivered payment systems.

Experience
- Led a team of 5 engineers and reduced checkout latency by 40%
- Built a Go service handling 12000 requests per second
- Automated reporting and improved data quality for stakeholders
- Implemented testing strategy across 30 services
- Mentored junior developers and managed the project budget

Education
BSc Computer Science, 2015

Skills
Go, PostgreSQL, Kubernetes, AWS, Docker, gRPC, agile, communication, leadership

Projects
Open source contributor, github.com/janedoe
`

func longEnough(s string) string {
	return s + strings.Repeat("Delivered reliable backend features with collaboration across teams. ", 20)
}

func TestHeuristicBasicRanksStrongerResumeHigher(t *testing.T) {
	h := NewHeuristic()
	ctx := context.Background()

	strong, err := h.ScoreBasic(ctx, longEnough(strongResume))
	require.NoError(t, err)
	weak, err := h.ScoreBasic(ctx, "I want a job. I am good with computers.")
	require.NoError(t, err)

	assert.Greater(t, strong.Score, weak.Score)
	assert.LessOrEqual(t, strong.Score, 100)
	assert.GreaterOrEqual(t, weak.Score, 0)
	assert.NotEmpty(t, weak.Feedback)
	for _, fb := range weak.Feedback {
		assert.Contains(t, []models.FeedbackKind{models.FeedbackPositive, models.FeedbackWarning}, fb.Kind)
	}
}

func TestHeuristicEmptyText(t *testing.T) {
	_, err := NewHeuristic().ScoreBasic(context.Background(), "  \n")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestHeuristicDetailedKeywords(t *testing.T) {
	res, err := NewHeuristic().ScoreDetailed(context.Background(), longEnough(strongResume))
	require.NoError(t, err)

	assert.Contains(t, res.KeywordAnalysis.Matched, "led")
	assert.Contains(t, res.KeywordAnalysis.Matched, "leadership")
	assert.Contains(t, res.KeywordAnalysis.Missing, "launched")
	assert.True(t, res.Score > 0 && res.Score <= 100)
}

func TestHeuristicOptimizeAgainstJobDescription(t *testing.T) {
	jd := "We need a Go engineer. Go, Kubernetes and Terraform daily. Terraform modules, Kubernetes operators."
	res, err := NewHeuristic().Optimize(context.Background(), strongResume, jd)
	require.NoError(t, err)

	assert.Contains(t, res.KeywordAnalysis.Matched, "go")
	assert.Contains(t, res.KeywordAnalysis.Matched, "kubernetes")
	assert.Contains(t, res.KeywordAnalysis.Missing, "terraform")
	assert.NotEmpty(t, res.Suggestions)
	assert.True(t, res.Score > 0 && res.Score < 100)
}

func TestHeuristicOptimizeNeedsKeywords(t *testing.T) {
	_, err := NewHeuristic().Optimize(context.Background(), strongResume, "the and of")
	assert.Error(t, err)
}

func TestJobKeywordsOrder(t *testing.T) {
	got := jobKeywords("Python python PYTHON and SQL sql, docker", 2)
	assert.Equal(t, []string{"python", "sql"}, got)
}

func TestNormalizeStripsAccents(t *testing.T) {
	assert.Equal(t, "resume cafe", normalize("Résumé Café"))
	assert.Equal(t, []string{"c++", "node.js", "go"}, tokens("C++, Node.js; Go."))
}

func TestDecodeText(t *testing.T) {
	tests := []struct {
		name    string
		in      []byte
		want    string
		wantErr error
	}{
		{name: "utf8", in: []byte("hello"), want: "hello"},
		{name: "utf8 bom", in: []byte("\xef\xbb\xbfhello"), want: "hello"},
		{name: "utf16le bom", in: []byte{0xff, 0xfe, 'h', 0, 'i', 0}, want: "hi"},
		{name: "pdf", in: []byte("%PDF-1.7 binary"), wantErr: ErrNotText},
		{name: "empty", in: nil, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeText(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractTextReadsPDF(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "resume.pdf"))
	require.NoError(t, err)

	text, err := ExtractText(data)
	require.NoError(t, err)
	assert.Contains(t, text, "Jane Doe")
	assert.Contains(t, text, "Led migration of billing to Go")
	assert.Contains(t, text, "Computer Science")

	got, err := NewHeuristic().ScoreBasic(context.Background(), text)
	require.NoError(t, err)
	assert.Positive(t, got.Score)
}

func TestExtractTextRejectsUnreadableDocuments(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{name: "truncated pdf", in: []byte("%PDF-1.4\n1 0 obj\n<<")},
		{name: "docx", in: []byte("PK\x03\x04\x14\x00")},
		{name: "binary", in: []byte{0x00, 0x01, 0x02, 0xff, 0x00, 0xfe}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractText(tt.in)
			assert.ErrorIs(t, err, ErrNotText)
		})
	}
}

func TestExtractTextPassesPlainText(t *testing.T) {
	text, err := ExtractText([]byte(strongResume))
	require.NoError(t, err)
	assert.Equal(t, strongResume, text)
}

func fakeGemini(reply string, err error) *Gemini {
	return &Gemini{generate: func(context.Context, string) (string, error) { return reply, err }}
}

func TestGeminiParsesDetailed(t *testing.T) {
	g := fakeGemini("```json\n"+`{"score": 140, "keywordAnalysis": {"matched": ["Go", "SQL", "go"], "missing": ["Kafka"]},
		"feedback": [{"kind": "positive", "message": "clear"}, {"kind": "odd", "message": "fix dates"}, {"message": ""}]}`+"\n```", nil)

	res, err := g.ScoreDetailed(context.Background(), "resume")
	require.NoError(t, err)
	assert.Equal(t, 100, res.Score)
	assert.Equal(t, []string{"go", "sql"}, res.KeywordAnalysis.Matched)
	assert.Equal(t, []string{"kafka"}, res.KeywordAnalysis.Missing)
	assert.Equal(t, []models.Feedback{
		{Kind: models.FeedbackPositive, Message: "clear"},
		{Kind: models.FeedbackWarning, Message: "fix dates"},
	}, res.Feedback)
}

func TestGeminiFailures(t *testing.T) {
	ctx := context.Background()

	_, err := fakeGemini("", errors.New("quota")).ScoreBasic(ctx, "x")
	assert.EqualError(t, err, "quota")

	_, err = fakeGemini("not json", nil).Optimize(ctx, "x", "jd")
	assert.ErrorContains(t, err, "decode model response")

	_, err = fakeGemini(`{"feedback": []}`, nil).ScoreBasic(ctx, "x")
	assert.ErrorContains(t, err, "no score")
}
