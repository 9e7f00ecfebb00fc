package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/exposurehub/exposure-search/internal/models"
)

var (
	searchType   string
	searchMode   string
	searchSource string
	searchSize   int
	searchPage   int
	searchSortBy string
	searchAsc    bool
	searchPlan   string
	searchJSON   bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Run one aggregated search and print the results",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchType, "type", "t", "AUTO", "search type (EMAIL, USERNAME, DOMAIN, URL, PASSWORD, ADVANCED, AUTO, IP, PHONE)")
	searchCmd.Flags().StringVarP(&searchMode, "mode", "m", "EXACT", "match mode (EXACT or FUZZY)")
	searchCmd.Flags().StringVarP(&searchSource, "source", "s", "", "query only this source")
	searchCmd.Flags().IntVarP(&searchSize, "size", "n", models.DefaultPageSize, "page size")
	searchCmd.Flags().IntVar(&searchPage, "page", 0, "page number, starting at 0")
	searchCmd.Flags().StringVar(&searchSortBy, "sort-by", models.SortByTimestamp, "sort field ("+strings.Join(models.SortFields, ", ")+")")
	searchCmd.Flags().BoolVar(&searchAsc, "asc", false, "sort ascending")
	searchCmd.Flags().StringVar(&searchPlan, "plan", "", "caller plan used for field masking")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	req := models.SearchRequest{
		Query:  args[0],
		Type:   models.SearchType(strings.ToUpper(searchType)),
		Mode:   models.SearchMode(strings.ToUpper(searchMode)),
		Page:   searchPage,
		Size:   searchSize,
		SortBy: searchSortBy,
	}
	if searchAsc {
		req.SortDirection = models.SortAsc
	}
	caller := models.Caller{Plan: searchPlan}
	if searchPlan != "" {
		caller.UserID = "cli"
	}

	var resp models.SearchResponse
	if searchSource != "" {
		resp, err = a.service.SearchSource(cmd.Context(), searchSource, req, caller)
	} else {
		resp, err = a.service.Search(cmd.Context(), req, caller)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	renderSearch(cmd.OutOrStdout(), resp)
	return nil
}
