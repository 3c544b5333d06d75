package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kinobot/kinobot/internal/config"
	"github.com/kinobot/kinobot/internal/storage"
)

// movieWire mirrors the server's movie JSON shape.
type movieWire struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	ReleaseYear int    `json:"release_year"`
	Director    string `json:"director,omitempty"`
	Genre       string `json:"genre"`
	Actors      string `json:"actors,omitempty"`
	Runtime     int    `json:"runtime,omitempty"`
	Rating      int    `json:"rating"`
	Review      string `json:"review,omitempty"`
	IsTMDB      bool   `json:"is_tmdb"`
	Indexed     *bool  `json:"indexed,omitempty"`
}

var movieCmd = &cobra.Command{
	Use:   "movie",
	Short: "Manage the movie catalog",
}

var (
	addYear     int
	addGenre    string
	addDirector string
	addActors   string
	addRuntime  int
	addRating   int
	addReview   string
)

var movieAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a movie to the catalog and index it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if addYear == 0 {
			return fmt.Errorf("--year is required")
		}
		if addGenre == "" {
			return fmt.Errorf("--genre is required (one of: %s)", strings.Join(storage.Genres, ", "))
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Adding %q...", args[0])
		resp, err := client.post("/movies", movieWire{
			Title:       args[0],
			ReleaseYear: addYear,
			Genre:       addGenre,
			Director:    addDirector,
			Actors:      addActors,
			Runtime:     addRuntime,
			Rating:      addRating,
			Review:      addReview,
		})
		if err != nil {
			printError("add failed: %v", err)
			return err
		}

		var saved movieWire
		if err := decodeJSON(resp, &saved); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}

		if saved.Indexed != nil && !*saved.Indexed {
			printWarning("Saved movie %d (%s) but indexing failed; run 'kinobot index' later", saved.ID, saved.Title)
			return nil
		}
		printSuccess("Saved and indexed movie %d (%s)", saved.ID, saved.Title)
		return nil
	},
}

var (
	listSearch string
	listFilter string
	listSort   string
	listLimit  int
)

var movieListCmd = &cobra.Command{
	Use:   "list",
	Short: "List movies in the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		if listSearch != "" {
			q.Set("search", listSearch)
		}
		if listFilter != "" {
			q.Set("filter", listFilter)
		}
		if listSort != "" {
			q.Set("sort", listSort)
		}
		if listLimit > 0 {
			q.Set("limit", strconv.Itoa(listLimit))
		}
		path := "/movies"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		resp, err := client.get(path)
		if err != nil {
			printError("list failed: %v", err)
			return err
		}

		var movies []movieWire
		if err := decodeJSON(resp, &movies); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}

		if len(movies) == 0 {
			fmt.Println("No movies in the catalog.")
			return nil
		}
		for _, m := range movies {
			source := "user"
			if m.IsTMDB {
				source = "tmdb"
			}
			fmt.Printf("%4d  %-40s  %d  %-12s  %d/5  [%s]\n",
				m.ID, truncate(m.Title, 40), m.ReleaseYear, m.Genre, m.Rating, source)
		}
		return nil
	},
}

var movieRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove a movie from the catalog and its index entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid movie id %q", args[0])
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete("/movies/" + strconv.FormatInt(id, 10))
		if err != nil {
			printError("remove failed: %v", err)
			return err
		}
		resp.Body.Close()

		printSuccess("Removed movie %d", id)
		return nil
	},
}

var movieSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Import popular movies from TMDB",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Syncing popular movies from TMDB...")
		resp, err := client.post("/movies/sync", nil)
		if err != nil {
			printError("sync failed: %v", err)
			return err
		}

		var result struct {
			Synced int `json:"synced"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}

		printSuccess("Synced %d movies from TMDB", result.Synced)
		return nil
	},
}

var askTopK int

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question grounded in the movie catalog",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/chat", map[string]any{
			"message": question,
			"top_k":   askTopK,
		})
		if err != nil {
			printError("ask failed: %v", err)
			return err
		}

		var result struct {
			Answer string `json:"answer"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}

		fmt.Println(result.Answer)
		return nil
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Re-embed and reindex every movie in the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Reindexing catalog...")
		resp, err := client.post("/reindex", nil)
		if err != nil {
			printError("reindex failed: %v", err)
			return err
		}

		var result struct {
			Indexed int `json:"indexed"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}

		printSuccess("Reindexed %d movies", result.Indexed)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change kinobot configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadUnchecked()
		for _, info := range config.ShowAll(cfg) {
			printStatus(info.Key, "%s (env %s)", info.Value, info.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetKey(args[0], args[1]); err != nil {
			printError("%v", err)
			fmt.Printf("Valid keys: %s\n", strings.Join(config.ValidKeys(), ", "))
			return err
		}
		printSuccess("Set %s = %s", args[0], args[1])
		return nil
	},
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func init() {
	movieAddCmd.Flags().IntVar(&addYear, "year", 0, "release year (required)")
	movieAddCmd.Flags().StringVar(&addGenre, "genre", "", "genre label (required)")
	movieAddCmd.Flags().StringVar(&addDirector, "director", "", "director name")
	movieAddCmd.Flags().StringVar(&addActors, "actors", "", "lead actors")
	movieAddCmd.Flags().IntVar(&addRuntime, "runtime", 0, "runtime in minutes")
	movieAddCmd.Flags().IntVar(&addRating, "rating", 3, "rating from 1 to 5")
	movieAddCmd.Flags().StringVar(&addReview, "review", "", "review text")

	movieListCmd.Flags().StringVar(&listSearch, "search", "", "filter by title, director, or actors")
	movieListCmd.Flags().StringVar(&listFilter, "filter", "", "source filter: all, tmdb, or user")
	movieListCmd.Flags().StringVar(&listSort, "sort", "", "sort order: latest, title, rating, or year")
	movieListCmd.Flags().IntVar(&listLimit, "limit", 0, "maximum number of results")

	askCmd.Flags().IntVar(&askTopK, "top-k", 0, "how many matches to ground the answer on")

	movieCmd.AddCommand(movieAddCmd)
	movieCmd.AddCommand(movieListCmd)
	movieCmd.AddCommand(movieRmCmd)
	movieCmd.AddCommand(movieSyncCmd)

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
