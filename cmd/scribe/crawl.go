package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alvmarrod/site-scribe/internal/app"
	"github.com/alvmarrod/site-scribe/internal/crawler"
	"github.com/alvmarrod/site-scribe/internal/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newCrawlCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [seed-url]",
		Short: "Crawl a site and save the text of every page",
		Long: `Crawl fetches the seed URL, then every linked page on the same domain,
breadth-first, and writes the visible text of each page to the output file.
The output file is truncated at the start of every crawl.

Examples:
  # Crawl with the defaults (1 request per second, scraped_content.txt)
  scribe crawl https://example.com/

  # Faster crawl with a page cap and a SQLite index of the pages
  scribe crawl --rate-limit 0.2 --max-pages 200 --index pages.db https://example.com/`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawlCmd(cmd, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringP("output", "o", "scraped_content.txt", "text output file")
	flags.Float64P("rate-limit", "r", 1, "minimum seconds between two fetches")
	flags.Float64P("timeout", "t", 10, "per-request timeout in seconds")
	flags.Int("max-body", 10<<20, "maximum bytes read per page; longer pages are cut (0 = unlimited)")
	flags.IntP("max-pages", "p", 1000, "maximum fetch attempts (0 = unlimited)")
	flags.Int("max-queue", 100000, "maximum pending URLs (0 = unlimited)")
	flags.IntP("workers", "w", 1, "concurrent fetch workers")
	flags.Bool("strict-domain", false, "only follow links whose host is the seed host or a subdomain of it")
	flags.String("user-agent", version.UserAgent(), "User-Agent header")
	flags.String("index", "", "SQLite page index path (disabled when empty)")
	flags.String("metrics", "", "JSON metrics export path (disabled when empty)")

	return cmd
}

// crawlFlags maps config keys to crawl flags
var crawlFlags = map[string]string{
	"output_path":           "output",
	"rate_limit_seconds":    "rate-limit",
	"fetch_timeout_seconds": "timeout",
	"max_body_bytes":        "max-body",
	"max_pages":             "max-pages",
	"max_queue":             "max-queue",
	"workers":               "workers",
	"strict_domain":         "strict-domain",
	"user_agent":            "user-agent",
	"index_path":            "index",
	"metrics_path":          "metrics",
}

func runCrawlCmd(cmd *cobra.Command, opts *options, args []string) error {
	bindFlags(opts.v, cmd.Flags(), crawlFlags)
	cfg, err := opts.setup()
	if err != nil {
		return err
	}

	seed := cfg.SeedURL
	if len(args) == 1 {
		seed = args[0]
	}
	seed = strings.TrimSpace(seed)
	// Checked up front so an invalid seed leaves no output behind
	if !crawler.IsValidURL(seed) {
		return fmt.Errorf("%w: %q. Please try again", crawler.ErrInvalidURL, seed)
	}

	logrus.Infof("site-scribe v%s starting...", version.Version)
	logrus.Infof("Configuration loaded: seed=%s, rate_limit=%s, workers=%d, output=%s",
		seed, cfg.RateLimit(), cfg.Workers, cfg.OutputPath)

	scraper, err := app.New(cfg, nil)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := scraper.Close(); cerr != nil {
			logrus.Warnf("Failed to close index: %v", cerr)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := scraper.Crawl(ctx, seed)
	if errors.Is(err, context.Canceled) && res != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Scraping interrupted. Partial content saved to %s\n", res.OutputPath)
		return err
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Scraping completed. Content saved to %s\n", res.OutputPath)
	return nil
}
