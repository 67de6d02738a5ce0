package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"

	"coa-docket/models"
)

const defaultGeminiModel = "gemini-1.5-pro"

const issueSystemInstruction = `You are an experienced Texas criminal appellate attorney reviewing briefs filed in the courts of appeals.`

const issuePromptTemplate = `Analyze this appellate brief%s and extract the legal issues it raises.

Respond with JSON only, in this shape:
{"issues": [{"category": "<short category such as Ineffective Assistance, Sufficiency of Evidence, Suppression>", "description": "<one or two sentences describing the issue as argued>"}]}

List each distinct issue once. Do not include procedural history.`

// GeminiAnalyzer extracts issues from briefs with a Gemini model
type GeminiAnalyzer struct {
	client *genai.Client
	model  string
}

// NewGeminiAnalyzer creates an analyzer. An empty API key means the analysis
// service is not configured.
func NewGeminiAnalyzer(ctx context.Context, apiKey, model string) (*GeminiAnalyzer, error) {
	if apiKey == "" {
		return nil, errors.Wrap(models.ErrAnalysisUnavailable, "GEMINI_API_KEY not set")
	}
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to create Gemini client"), models.ErrAnalysisUnavailable)
	}
	return &GeminiAnalyzer{client: client, model: model}, nil
}

// Close releases the underlying client
func (a *GeminiAnalyzer) Close() error {
	return a.client.Close()
}

// AnalyzeDocument sends the brief as inline PDF data and parses the issues from the reply
func (a *GeminiAnalyzer) AnalyzeDocument(ctx context.Context, req AnalysisRequest) ([]models.Issue, error) {
	model := a.client.GenerativeModel(a.model)
	model.SetTemperature(0.2)
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = genai.NewUserContent(genai.Text(issueSystemInstruction))

	mimeType := req.MIMEType
	if mimeType == "" {
		mimeType = "application/pdf"
	}

	resp, err := model.GenerateContent(ctx,
		genai.Blob{MIMEType: mimeType, Data: req.Document},
		genai.Text(issuePrompt(req)),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "analysis canceled")
		}
		return nil, classifyGeminiError(err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return nil, errors.Newf("analysis blocked: %v", resp.PromptFeedback.BlockReason)
	}

	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}
	return ParseIssues(b.String())
}

func issuePrompt(req AnalysisRequest) string {
	subject := ""
	if req.CaseID != "" {
		subject = fmt.Sprintf(" from case %s", req.CaseID)
	}
	if len(req.Parties) > 0 {
		subject += fmt.Sprintf(" (parties: %s)", strings.Join(req.Parties, "; "))
	}
	return fmt.Sprintf(issuePromptTemplate, subject)
}

// classifyGeminiError maps API failures onto the error taxonomy. Rejected
// credentials make the service unavailable for the rest of the run.
func classifyGeminiError(err error) error {
	wrapped := errors.Wrap(err, "gemini request failed")

	apiErr, ok := apierror.FromError(err)
	if !ok {
		return models.MarkTransient(wrapped)
	}
	if apiErr.Reason() == "API_KEY_INVALID" {
		return errors.Mark(wrapped, models.ErrAnalysisUnavailable)
	}

	if code := apiErr.HTTPCode(); code > 0 {
		switch code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return errors.Mark(wrapped, models.ErrAnalysisUnavailable)
		}
		if models.IsTransient(models.ClassifyHTTPStatus(code)) {
			return models.MarkTransient(wrapped)
		}
		return wrapped
	}

	switch apiErr.GRPCStatus().Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return errors.Mark(wrapped, models.ErrAnalysisUnavailable)
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Internal, codes.Aborted:
		return models.MarkTransient(wrapped)
	default:
		return wrapped
	}
}
