package recording

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/teamlinkhq/teamlink/internal/message"
)

// Summarizer turns a captured message window into a digest.
type Summarizer interface {
	Summarize(ctx context.Context, areaID string, msgs []message.Message) (string, error)
}

type summaryRequest struct {
	AreaID   string         `json:"area_id"`
	Messages []summaryEntry `json:"messages"`
}

type summaryEntry struct {
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type summaryResponse struct {
	Summary string `json:"summary"`
}

// HTTPSummarizer calls the external summarization service.
type HTTPSummarizer struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPSummarizer(baseURL string, timeout time.Duration) *HTTPSummarizer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSummarizer{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSummarizer) Summarize(ctx context.Context, areaID string, msgs []message.Message) (string, error) {
	req := summaryRequest{AreaID: areaID, Messages: make([]summaryEntry, 0, len(msgs))}
	for _, m := range msgs {
		author := m.AuthorID
		if m.ExternalAuthor != nil {
			author = m.ExternalAuthor.DisplayName
		}
		req.Messages = append(req.Messages, summaryEntry{
			Author:    author,
			Body:      m.Body,
			CreatedAt: m.CreatedAt,
		})
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode summary request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/v1/summaries", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build summary request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("call summarizer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("summarizer returned %d: %s", resp.StatusCode, payload)
	}
	var out summaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode summary response: %w", err)
	}
	return out.Summary, nil
}
