package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/calvete/audex/internal/index"
)

const (
	azureAPIVersion  = "2024-11-30"
	azureLayoutModel = "prebuilt-layout"
)

// AzureAnalyzer runs documents through the Azure Document Intelligence
// layout model. Analysis is asynchronous on the service side: one submit
// call, then polling the returned operation until it settles.
type AzureAnalyzer struct {
	endpoint     string
	key          string
	httpClient   *http.Client
	pollInterval time.Duration
}

// NewAzureAnalyzer creates an analyzer for the given service endpoint and
// API key.
func NewAzureAnalyzer(endpoint, key string) *AzureAnalyzer {
	return &AzureAnalyzer{
		endpoint:     strings.TrimRight(endpoint, "/"),
		key:          key,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		pollInterval: 2 * time.Second,
	}
}

type analyzeRequest struct {
	Base64Source string `json:"base64Source"`
}

type analyzeOperation struct {
	Status        string         `json:"status"`
	AnalyzeResult *analyzeResult `json:"analyzeResult"`
	Error         *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type analyzeResult struct {
	Paragraphs []struct {
		Content string `json:"content"`
	} `json:"paragraphs"`
	Tables []struct {
		RowCount    int `json:"rowCount"`
		ColumnCount int `json:"columnCount"`
		Cells       []struct {
			RowIndex    int    `json:"rowIndex"`
			ColumnIndex int    `json:"columnIndex"`
			Content     string `json:"content"`
		} `json:"cells"`
	} `json:"tables"`
}

// Analyze submits the document and polls the operation until the service
// reports a terminal status or ctx is cancelled.
func (a *AzureAnalyzer) Analyze(ctx context.Context, content []byte) (Layout, error) {
	opURL, err := a.submit(ctx, content)
	if err != nil {
		return Layout{}, fmt.Errorf("%w: %v", ErrAnalysis, err)
	}

	for {
		op, err := a.poll(ctx, opURL)
		if err != nil {
			return Layout{}, fmt.Errorf("%w: %v", ErrAnalysis, err)
		}

		switch op.Status {
		case "succeeded":
			if op.AnalyzeResult == nil {
				return Layout{}, fmt.Errorf("%w: succeeded without a result", ErrAnalysis)
			}
			return toLayout(op.AnalyzeResult), nil
		case "failed":
			msg := "unknown error"
			if op.Error != nil {
				msg = fmt.Sprintf("%s: %s", op.Error.Code, op.Error.Message)
			}
			return Layout{}, fmt.Errorf("%w: %s", ErrAnalysis, msg)
		}

		select {
		case <-ctx.Done():
			return Layout{}, fmt.Errorf("%w: %v", ErrAnalysis, ctx.Err())
		case <-time.After(a.pollInterval):
		}
	}
}

// submit starts the analysis and returns the operation URL to poll.
func (a *AzureAnalyzer) submit(ctx context.Context, content []byte) (string, error) {
	url := fmt.Sprintf("%s/documentintelligence/documentModels/%s:analyze?api-version=%s",
		a.endpoint, azureLayoutModel, azureAPIVersion)

	body, err := json.Marshal(analyzeRequest{Base64Source: base64.StdEncoding.EncodeToString(content)})
	if err != nil {
		return "", fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", a.key)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submitting document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("unexpected submit status %d", resp.StatusCode)
	}

	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return "", fmt.Errorf("missing Operation-Location header")
	}
	return opURL, nil
}

func (a *AzureAnalyzer) poll(ctx context.Context, opURL string) (analyzeOperation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opURL, nil)
	if err != nil {
		return analyzeOperation{}, fmt.Errorf("creating poll request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", a.key)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return analyzeOperation{}, fmt.Errorf("polling operation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return analyzeOperation{}, fmt.Errorf("unexpected poll status %d", resp.StatusCode)
	}

	var op analyzeOperation
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return analyzeOperation{}, fmt.Errorf("decoding operation: %w", err)
	}
	return op, nil
}

func toLayout(res *analyzeResult) Layout {
	layout := Layout{}
	for _, p := range res.Paragraphs {
		layout.Paragraphs = append(layout.Paragraphs, p.Content)
	}
	for i, t := range res.Tables {
		table := index.Table{
			Index:       i,
			RowCount:    t.RowCount,
			ColumnCount: t.ColumnCount,
		}
		for _, c := range t.Cells {
			table.Cells = append(table.Cells, index.Cell{
				Row:     c.RowIndex,
				Column:  c.ColumnIndex,
				Content: c.Content,
			})
		}
		layout.Tables = append(layout.Tables, table)
	}
	return layout
}
