package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/storefront/internal/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/productlist"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

type browseOptions struct {
	baseURL  string
	pageSize int
	pages    int
	all      bool
	local    bool
	asJSON   bool
	timeout  time.Duration
	verbose  bool
}

func newRootCmd() *cobra.Command {
	opts := browseOptions{}

	root := &cobra.Command{
		Use:   "catalog-browse",
		Short: "Page through the storefront product listing",
		Long: `catalog-browse loads the first page of the product listing and then keeps
loading more pages the way the storefront "load more" button does.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.verbose {
				log.SetLevel(log.DebugLevel)
			}
			source, err := opts.source()
			if err != nil {
				return err
			}
			return browse(cmd.Context(), source, opts, cmd.OutOrStdout())
		},
	}

	flags := root.Flags()
	flags.StringVar(&opts.baseURL, "base-url", "http://localhost:8080", "storefront base URL")
	flags.IntVar(&opts.pageSize, "page-size", domain.DefaultPageSize, "products per page")
	flags.IntVar(&opts.pages, "pages", 1, "number of pages to show")
	flags.BoolVar(&opts.all, "all", false, "keep loading until the listing is exhausted")
	flags.BoolVar(&opts.local, "local", false, "browse the built-in seed catalog instead of a server")
	flags.BoolVar(&opts.asJSON, "json", false, "print products as JSON")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "per-request timeout")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version of catalog-browse",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "catalog-browse %s\n", version.Current())
		},
	})

	return root
}

// source возвращает HTTP-клиент листинга или локальный каталог из seed.
func (o browseOptions) source() (productlist.Fetcher, error) {
	if o.pageSize < 1 || o.pageSize > domain.MaxPageSize {
		return nil, fmt.Errorf("--page-size must be between 1 and %d", domain.MaxPageSize)
	}
	if !o.all && o.pages < 1 {
		return nil, errors.New("--pages must be at least 1")
	}

	if o.local {
		repo := memory.NewProductRepository()
		if _, err := catalog.Seed(context.Background(), repo); err != nil {
			return nil, err
		}
		return catalog.NewService(repo, log.WithField("component", "catalog")), nil
	}

	return catalog.NewClient(o.baseURL, catalog.WithHTTPClient(&http.Client{Timeout: o.timeout})), nil
}

func browse(ctx context.Context, source productlist.Fetcher, opts browseOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	first, err := source.FetchPage(ctx, 1, opts.pageSize)
	if err != nil {
		return fmt.Errorf("load first page: %w", err)
	}

	list := productlist.New(first.Products, first.HasMore, source,
		productlist.WithPageSize(opts.pageSize),
		productlist.WithLogger(log.WithField("component", "catalog-browse")),
	)

	for shown := 1; list.HasMore() && (opts.all || shown < opts.pages); shown++ {
		if err := list.LoadMore(ctx); err != nil {
			return err
		}
	}

	return render(out, list.Products(), list.HasMore(), opts.asJSON)
}

func render(out io.Writer, products []domain.ProductSummary, hasMore, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(domain.ProductPage{Products: products, HasMore: hasMore})
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE\tCATEGORY\tSLUG")
	for _, p := range products {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Price.StringFixed(2), p.Category, p.Slug)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	more := "no more products"
	if hasMore {
		more = "more products available"
	}
	_, err := fmt.Fprintf(out, "\n%d products, %s\n", len(products), more)
	return err
}
