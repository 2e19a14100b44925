package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Ingest a document into the corpus",
	Long: `Ingest a document into the corpus.

The file is analyzed for layout, split into overlapping text fragments,
and its tables are linearized; everything is embedded and indexed.

Examples:
  audex ingest ./q1-report.pdf
  audex ingest ./minutes.txt --name "Board minutes 2026-03" --collection legal`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		name, _ := cmd.Flags().GetString("name")
		collection, _ := cmd.Flags().GetString("collection")

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}
		if name == "" {
			name = filepath.Base(path)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{
			"display_name": name,
			"content":      base64.StdEncoding.EncodeToString(data),
		}
		if collection != "" {
			req["collection"] = collection
		}

		resp, err := client.post(cmd.Context(), "/ingest", req)
		if err != nil {
			return err
		}

		var result struct {
			DocumentID string `json:"document_id"`
			Fragments  int    `json:"fragments_created"`
			Tables     int    `json:"tables_created"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Ingested %s as %s (%d fragments, %d tables)", name, result.DocumentID, result.Fragments, result.Tables)
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("name", "", "display name for the document (default: file name)")
	ingestCmd.Flags().String("collection", "", "target collection for text fragments")
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question against the corpus",
	Long: `Ask a question against the corpus.

The answer is synthesized from the single best-matching fragment or
table record across all collections. Use --save to write the source
document referenced by the answer to a local file.

Examples:
  audex ask "what was total revenue in Q1?"
  audex ask --save ./source.pdf "which contract covers maintenance?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		savePath, _ := cmd.Flags().GetString("save")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/ask", map[string]any{"question": question})
		if err != nil {
			return err
		}

		var result struct {
			Found  bool `json:"found"`
			Answer *struct {
				Text       string  `json:"answer"`
				SourceID   string  `json:"source_id"`
				SourceName string  `json:"source_name"`
				Collection string  `json:"collection"`
				Score      float32 `json:"score"`
				Download   *struct {
					FileName string `json:"file_name"`
					MimeType string `json:"mime_type"`
					DataURI  string `json:"data_uri"`
				} `json:"download,omitempty"`
			} `json:"result"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if !result.Found {
			printWarning("No relevant fragments found.")
			return nil
		}

		fmt.Fprintln(os.Stdout, result.Answer.Text)
		printStatus("Source", "%s (%s, score %.2f)", result.Answer.SourceName, result.Answer.Collection, result.Answer.Score)

		if savePath != "" {
			if result.Answer.Download == nil {
				printWarning("No download available for the source document.")
				return nil
			}
			data, err := decodeDataURI(result.Answer.Download.DataURI)
			if err != nil {
				return fmt.Errorf("decoding download: %w", err)
			}
			if err := os.WriteFile(savePath, data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", savePath, err)
			}
			printSuccess("Source document saved to %s", savePath)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().String("save", "", "write the answer's source document to this path")
}

// decodeDataURI extracts the payload of a data:<mime>;base64,<data> URI.
func decodeDataURI(uri string) ([]byte, error) {
	_, encoded, ok := strings.Cut(uri, ";base64,")
	if !ok {
		return nil, fmt.Errorf("not a base64 data URI")
	}
	return base64.StdEncoding.DecodeString(encoded)
}

// --- documents ---

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Manage ingested documents",
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/documents?limit=%d", limit))
		if err != nil {
			return err
		}

		var result struct {
			Documents []struct {
				ID          string `json:"id"`
				DisplayName string `json:"display_name"`
				MimeType    string `json:"mime_type"`
				SizeBytes   int64  `json:"size_bytes"`
				Fragments   int    `json:"fragments"`
				Tables      int    `json:"tables"`
				IngestedAt  string `json:"ingested_at"`
			} `json:"documents"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Documents) == 0 {
			fmt.Fprintln(os.Stdout, "no documents")
			return nil
		}
		for _, d := range result.Documents {
			fmt.Fprintf(os.Stdout, "%s  %s  %s  %dB  %d fragments, %d tables  %s\n",
				d.ID, d.DisplayName, d.MimeType, d.SizeBytes, d.Fragments, d.Tables, d.IngestedAt)
		}
		return nil
	},
}

var documentsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document and all records derived from it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/documents/"+args[0])
		if err != nil {
			return err
		}

		var result struct {
			Deleted        string `json:"deleted"`
			RecordsRemoved int64  `json:"records_removed"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted %s and %d derived records", result.Deleted, result.RecordsRemoved)
		return nil
	},
}

func init() {
	documentsListCmd.Flags().Int("limit", 100, "maximum number of documents to list")
	documentsCmd.AddCommand(documentsListCmd)
	documentsCmd.AddCommand(documentsDeleteCmd)
}
