package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/supplierd/internal/dedup"
	httpapi "github.com/fyrsmithlabs/supplierd/internal/http"
	"github.com/fyrsmithlabs/supplierd/internal/pipeline"
)

func newExtractCmd(cli *client) *cobra.Command {
	var maxResults int

	cmd := &cobra.Command{
		Use:   "extract <company>",
		Short: "Extract deduplicated suppliers for a company",
		Long: `Search the web for a company's suppliers and print the deduplicated list.
Fresh cached results are returned without searching.

Examples:
  supplierctl extract Tesco
  supplierctl extract "Marks & Spencer" --max-results 20 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res pipeline.Result
			raw, err := cli.do(cmd.Context(), http.MethodPost, "/api/v1/suppliers/extract",
				pipeline.Request{CompanyName: args[0], MaxResults: maxResults}, &res)
			if err != nil {
				return err
			}
			if cli.jsonOutput {
				return printJSON(cmd.OutOrStdout(), raw)
			}

			out := cmd.OutOrStdout()
			cached := ""
			if res.Cached {
				cached = " (cached)"
			}
			fmt.Fprintf(out, "%s: %d supplier(s) in %.2fs%s\n", res.CompanyName, res.TotalSuppliers, res.ProcessingTime, cached)
			return printRecords(out, res.Suppliers)
		},
	}
	cmd.Flags().IntVar(&maxResults, "max-results", pipeline.DefaultMaxResults, "search results to analyze (max 20)")
	return cmd
}

func newDedupeCmd(cli *client) *cobra.Command {
	return &cobra.Command{
		Use:   "dedupe [file]",
		Short: "Deduplicate supplier mentions from a file or stdin",
		Long: `Deduplicate a JSON array of supplier mentions. Each mention has a name,
a confidence between 0 and 1, and optional source_url and context.

Examples:
  supplierctl dedupe mentions.json
  cat mentions.json | supplierctl dedupe -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			var mentions []dedup.Mention
			if err := json.Unmarshal(content, &mentions); err != nil {
				return fmt.Errorf("failed to parse mentions: %w", err)
			}

			var res httpapi.DeduplicateResponse
			raw, err := cli.do(cmd.Context(), http.MethodPost, "/api/v1/suppliers/deduplicate",
				httpapi.DeduplicateRequest{Mentions: mentions}, &res)
			if err != nil {
				return err
			}
			if cli.jsonOutput {
				return printJSON(cmd.OutOrStdout(), raw)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d mention(s) -> %d supplier(s)\n", len(mentions), res.TotalSuppliers)
			return printRecords(cmd.OutOrStdout(), res.Suppliers)
		},
	}
}

func newHistoryCmd(cli *client) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <company>",
		Short: "Show recorded extractions for a company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/history/" + url.PathEscape(args[0])
			if limit > 0 {
				path += "?limit=" + strconv.Itoa(limit)
			}

			var res httpapi.HistoryResponse
			raw, err := cli.do(cmd.Context(), http.MethodGet, path, nil, &res)
			if err != nil {
				return err
			}
			if cli.jsonOutput {
				return printJSON(cmd.OutOrStdout(), raw)
			}

			out := cmd.OutOrStdout()
			if len(res.History) == 0 {
				fmt.Fprintf(out, "No extractions recorded for %s\n", res.CompanyName)
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIMESTAMP\tSUPPLIERS\tSEARCH RESULTS\tSECONDS\tID")
			for _, e := range res.History {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t%s\n",
					e.CreatedAt.Format("2006-01-02 15:04:05"), e.TotalSuppliers, e.SearchResultsCount, e.ProcessingTime, e.ID)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum entries (server default 10)")
	return cmd
}

func newStatsCmd(cli *client) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show extraction statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var res pipeline.Statistics
			raw, err := cli.do(cmd.Context(), http.MethodGet, "/api/v1/statistics", nil, &res)
			if err != nil {
				return err
			}
			if cli.jsonOutput {
				return printJSON(cmd.OutOrStdout(), raw)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Total extractions:      %d\n", res.TotalExtractions)
			fmt.Fprintf(cmd.OutOrStdout(), "Cached companies:       %d\n", res.TotalCachedCompanies)
			return nil
		},
	}
}

func newIgnoreCmd(cli *client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ignore",
		Short: "Manage the supplier ignore list",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print the ignore list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var res httpapi.IgnoreListResponse
			raw, err := cli.do(cmd.Context(), http.MethodGet, "/api/v1/ignore-list", nil, &res)
			if err != nil {
				return err
			}
			if cli.jsonOutput {
				return printJSON(cmd.OutOrStdout(), raw)
			}
			for _, name := range res.IgnoreList {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d ignored supplier(s)\n", res.Count)
			return nil
		},
	})

	action := func(use, short, method string) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <supplier>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return cli.ignoreAction(cmd, method, "/api/v1/ignore-list", httpapi.IgnoreListActionRequest{SupplierName: args[0]})
			},
		}
	}
	cmd.AddCommand(
		action("add", "Add a supplier to the ignore list", http.MethodPost),
		action("remove", "Remove a supplier from the ignore list", http.MethodDelete),
		&cobra.Command{
			Use:   "reload",
			Short: "Reload the ignore list file on the server",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return cli.ignoreAction(cmd, http.MethodPost, "/api/v1/ignore-list/reload", nil)
			},
		},
	)
	return cmd
}

func (c *client) ignoreAction(cmd *cobra.Command, method, path string, body any) error {
	var res httpapi.IgnoreListActionResponse
	raw, err := c.do(cmd.Context(), method, path, body, &res)
	if err != nil {
		return err
	}
	if c.jsonOutput {
		return printJSON(cmd.OutOrStdout(), raw)
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Message)
	return nil
}

func newCacheCmd(cli *client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the extraction cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear [company]",
		Short: "Clear cached results for one company, or all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/cache"
			if len(args) == 1 {
				path += "/" + url.PathEscape(args[0])
			}

			var res httpapi.CacheClearResponse
			raw, err := cli.do(cmd.Context(), http.MethodDelete, path, nil, &res)
			if err != nil {
				return err
			}
			if cli.jsonOutput {
				return printJSON(cmd.OutOrStdout(), raw)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d cache entr%s\n", res.Cleared, plural(res.Cleared, "y", "ies"))
			return nil
		},
	})
	return cmd
}

func newHealthCmd(cli *client) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check supplierd server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var res httpapi.HealthResponse
			if _, err := cli.do(cmd.Context(), http.MethodGet, "/health", nil, &res); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server Status: %s\n", res.Status)
			fmt.Fprintf(cmd.OutOrStdout(), "Server URL: %s\n", cli.serverURL)
			return nil
		},
	}
}

// readInput reads the file named by args[0], or stdin for "-" or no args.
func readInput(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		content, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
		return content, nil
	}
	content, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", args[0], err)
	}
	return content, nil
}

func printRecords(w io.Writer, records []dedup.Record) error {
	if len(records) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCONFIDENCE\tSOURCE")
	for _, r := range records {
		source := ""
		if r.SourceURL != nil {
			source = *r.SourceURL
		}
		fmt.Fprintf(tw, "%s\t%.2f\t%s\n", r.Name, r.Confidence, source)
	}
	return tw.Flush()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
