package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/asaidimu/go-docstore/core/persistence"
	"github.com/asaidimu/go-docstore/core/query"
	"github.com/asaidimu/go-docstore/nosql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type storeFlags struct {
	endpoint string
	table    string
	catalog  string
	timeout  time.Duration
}

// session is one connected Persistence plus what must be released with it.
type session struct {
	persistence *persistence.Persistence
	registry    *prometheus.Registry
	closers     []func() error
}

func (s *session) Close() {
	if err := s.persistence.Close(); err != nil {
		logger.Warn("Failed to close persistence", zap.Error(err))
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Warn("Failed to release resource", zap.Error(err))
		}
	}
	s.logMetrics()
}

func (s *session) logMetrics() {
	families, err := s.registry.Gather()
	if err != nil {
		logger.Debug("Failed to gather metrics", zap.Error(err))
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				logger.Debug("Metric", zap.String("name", mf.GetName()), zap.Float64("value", m.GetCounter().GetValue()))
			case m.GetHistogram() != nil:
				logger.Debug("Metric", zap.String("name", mf.GetName()),
					zap.Uint64("count", m.GetHistogram().GetSampleCount()),
					zap.Float64("sum", m.GetHistogram().GetSampleSum()))
			}
		}
	}
}

func openSession(ctx context.Context, f *storeFlags) (*session, error) {
	if f.endpoint == "" {
		return nil, fmt.Errorf("--endpoint or DOCSTORE_ENDPOINT is required")
	}
	opts, err := loadOptions()
	if err != nil {
		return nil, err
	}

	store, client, err := nosql.Connect(f.endpoint, nosql.Options{
		Timeout:         f.timeout,
		DDLPollInterval: opts.DDLPollInterval,
	}, logger.Named("nosql"))
	if err != nil {
		return nil, err
	}
	s := &session{
		registry: prometheus.NewRegistry(),
		closers:  []func() error{client.Close},
	}

	options := []persistence.PersistenceOption{
		persistence.WithMetrics(persistence.NewMetrics(s.registry)),
	}
	if f.catalog != "" {
		catalog, closeCatalog, err := openCatalog(ctx, f.catalog)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		s.closers = append(s.closers, closeCatalog)
		options = append(options, persistence.WithCatalog(catalog))
	}

	p, err := persistence.NewPersistence(store, opts, logger.Named("persistence"), options...)
	if err != nil {
		for _, c := range s.closers {
			_ = c()
		}
		return nil, err
	}
	s.persistence = p
	return s, nil
}

// withCollection opens a session, resolves the table and runs fn.
func withCollection(cmd *cobra.Command, f *storeFlags, fn func(ctx context.Context, c *persistence.Collection) error) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, f)
	if err != nil {
		return err
	}
	defer s.Close()

	c, err := s.persistence.Collection(ctx, f.table)
	if err != nil {
		return err
	}
	return fn(ctx, c)
}

func init() {
	var (
		filter     string
		projection string
		sort       string
		update     string
		document   string
		file       string
		limit      int64
		skip       int64
		many       bool
		upsert     bool
	)
	f := &storeFlags{}

	findCmd := &cobra.Command{
		Use:   "find",
		Short: "Print the documents matching a filter, one JSON document per line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCollection(cmd, f, func(ctx context.Context, c *persistence.Collection) error {
				flt, err := parseFilter(filter)
				if err != nil {
					return err
				}
				proj, err := parseFlagJSON("projection", projection)
				if err != nil {
					return err
				}
				srt, err := parseFlagJSON("sort", sort)
				if err != nil {
					return err
				}
				cursor, err := c.Find(ctx, flt, &query.FindOptions{Projection: proj, Sort: srt, Limit: limit, Skip: skip})
				if err != nil {
					return err
				}
				defer cursor.Close()

				out := cmd.OutOrStdout()
				for {
					ok, err := cursor.HasNext(ctx)
					if err != nil {
						return err
					}
					if !ok {
						return nil
					}
					doc, err := cursor.Next(ctx)
					if err != nil {
						return err
					}
					if err := writeJSON(out, doc); err != nil {
						return err
					}
				}
			})
		},
	}
	findCmd.Flags().StringVar(&projection, "projection", "", "Projection document")
	findCmd.Flags().StringVar(&sort, "sort", "", "Sort document, field to 1 or -1")
	findCmd.Flags().Int64Var(&limit, "limit", 0, "Maximum documents returned")
	findCmd.Flags().Int64Var(&skip, "skip", 0, "Documents skipped")

	countCmd := &cobra.Command{
		Use:   "count",
		Short: "Count the documents matching a filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCollection(cmd, f, func(ctx context.Context, c *persistence.Collection) error {
				flt, err := parseFilter(filter)
				if err != nil {
					return err
				}
				n, err := c.Count(ctx, flt)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]int64{"count": n})
			})
		},
	}

	insertCmd := &cobra.Command{
		Use:   "insert",
		Short: "Insert a document, or an array of documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data := []byte(document)
			if file != "" {
				var err error
				if data, err = os.ReadFile(file); err != nil {
					return fmt.Errorf("failed to read %s: %w", file, err)
				}
			}
			if len(data) == 0 {
				return fmt.Errorf("--document or --file is required")
			}
			input, err := parseFlagJSON("document", string(data))
			if err != nil {
				return err
			}
			return withCollection(cmd, f, func(ctx context.Context, c *persistence.Collection) error {
				if docs, ok := input.([]any); ok {
					res, err := c.InsertMany(ctx, docs)
					if err != nil {
						return err
					}
					return writeJSON(cmd.OutOrStdout(), res)
				}
				res, err := c.InsertOne(ctx, input)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	insertCmd.Flags().StringVar(&document, "document", "", "Document JSON")
	insertCmd.Flags().StringVar(&file, "file", "", "File holding a document or an array of documents")

	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Apply an update document to matching documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCollection(cmd, f, func(ctx context.Context, c *persistence.Collection) error {
				flt, err := parseFilter(filter)
				if err != nil {
					return err
				}
				upd, err := parseFlagJSON("update", update)
				if err != nil {
					return err
				}
				if upd == nil {
					return fmt.Errorf("--update is required")
				}
				opts := &query.UpdateOptions{Upsert: upsert}
				var res *persistence.UpdateResult
				if many {
					res, err = c.UpdateMany(ctx, flt, upd, opts)
				} else {
					res, err = c.UpdateOne(ctx, flt, upd, opts)
				}
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	updateCmd.Flags().StringVar(&update, "update", "", "Update document")
	updateCmd.Flags().BoolVar(&upsert, "upsert", false, "Insert a document when nothing matches")

	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete matching documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCollection(cmd, f, func(ctx context.Context, c *persistence.Collection) error {
				flt, err := parseFilter(filter)
				if err != nil {
					return err
				}
				var res *persistence.DeleteResult
				if many {
					res, err = c.DeleteMany(ctx, flt)
				} else {
					res, err = c.DeleteOne(ctx, flt)
				}
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}

	for _, c := range []*cobra.Command{updateCmd, deleteCmd} {
		c.Flags().BoolVar(&many, "many", false, "Apply to every match instead of the first")
	}
	for _, c := range []*cobra.Command{findCmd, countCmd, insertCmd, updateCmd, deleteCmd} {
		c.Flags().StringVar(&f.endpoint, "endpoint", os.Getenv("DOCSTORE_ENDPOINT"), "Store endpoint (env DOCSTORE_ENDPOINT)")
		c.Flags().StringVar(&f.table, "table", "", "Table name")
		c.Flags().StringVar(&f.catalog, "catalog", "", "SQLite schema catalog")
		c.Flags().DurationVar(&f.timeout, "timeout", 0, "Per-request timeout (0 uses the SDK default)")
		if c != insertCmd {
			c.Flags().StringVar(&filter, "filter", "", "Filter document (default {})")
		}
		_ = c.MarkFlagRequired("table")
		rootCmd.AddCommand(c)
	}
}

func init() {
	var (
		keys string
		name string
	)
	f := &storeFlags{}

	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Manage secondary indexes of a table",
	}
	indexCmd.PersistentFlags().StringVar(&f.endpoint, "endpoint", os.Getenv("DOCSTORE_ENDPOINT"), "Store endpoint (env DOCSTORE_ENDPOINT)")
	indexCmd.PersistentFlags().StringVar(&f.table, "table", "", "Table name")
	_ = indexCmd.MarkPersistentFlagRequired("table")

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an index from a key document such as {\"age\":1}",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := parseFlagJSON("keys", keys)
			if err != nil {
				return err
			}
			if spec == nil {
				return fmt.Errorf("--keys is required")
			}
			return withCollection(cmd, f, func(ctx context.Context, c *persistence.Collection) error {
				created, err := c.CreateIndex(ctx, spec, &query.IndexOptions{Name: name})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), created)
				return nil
			})
		},
	}
	createCmd.Flags().StringVar(&keys, "keys", "", "Key document")
	createCmd.Flags().StringVar(&name, "name", "", "Index name (default derived from the keys)")

	dropCmd := &cobra.Command{
		Use:   "drop NAME",
		Short: "Drop an index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCollection(cmd, f, func(ctx context.Context, c *persistence.Collection) error {
				return c.DropIndex(ctx, args[0])
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the indexes of a table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCollection(cmd, f, func(ctx context.Context, c *persistence.Collection) error {
				indexes, err := c.ListIndexes(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), indexes)
			})
		},
	}

	indexCmd.AddCommand(createCmd, dropCmd, listCmd)
	rootCmd.AddCommand(indexCmd)
}
