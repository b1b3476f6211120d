package dbcli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"blockidx/btree"
	"blockidx/cache"
	"blockidx/database"
	"blockidx/server"
	"blockidx/snapshot"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrUsage marks malformed command lines. It is returned before any file is
// touched.
var ErrUsage = errors.New("usage error")

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	keyColor  = color.New(color.FgCyan)
)

type rootOptions struct {
	verbose     bool
	cacheSize   int
	cachePolicy string
	logger      *zap.Logger
}

func (o *rootOptions) buildLogger(w io.Writer) {
	level := zapcore.InfoLevel
	if o.verbose {
		level = zapcore.DebugLevel
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), level)
	o.logger = zap.New(core)
}

func (o *rootOptions) database(path string) (*database.Database, error) {
	policy, err := cache.ParsePolicy(o.cachePolicy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if o.cacheSize < 1 {
		return nil, fmt.Errorf("%w: --cache-size must be at least 1", ErrUsage)
	}
	return database.New(path, database.Config{
		CacheCapacity: o.cacheSize,
		CachePolicy:   policy,
		Logger:        o.logger,
	}), nil
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("%w: %s expects %d argument(s), got %d\nusage: %s",
				ErrUsage, cmd.Name(), n, len(args), cmd.UseLine())
		}
		return nil
	}
}

func parseUint(name, arg string) (uint64, error) {
	v, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not an unsigned 64-bit integer", ErrUsage, name, arg)
	}
	return v, nil
}

// NewRootCmd builds the full command tree. Every invocation gets its own tree
// so flags never leak between runs.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "blockidx",
		Short: "Persistent B-tree index of u64 keys and values",
		Long: "blockidx manages a single-file B-tree index of unsigned 64-bit keys and values.\n" +
			"The index is stored in 512-byte blocks; block 0 is the header.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.buildLogger(cmd.ErrOrStderr())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = opts.logger.Sync()
		},
	}
	// "-1" as a value parses as a shorthand flag; report it like any other bad argument.
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	})
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log engine activity at debug level")
	rootCmd.PersistentFlags().IntVar(&opts.cacheSize, "cache-size", cache.DefaultCapacity, "Number of nodes kept in memory")
	rootCmd.PersistentFlags().StringVar(&opts.cachePolicy, "cache-policy", cache.FIFO.String(), "Node cache eviction policy (fifo|lru)")

	rootCmd.AddCommand(
		newCreateCmd(opts),
		newInsertCmd(opts),
		newSearchCmd(opts),
		newLoadCmd(opts),
		newPrintCmd(opts),
		newExtractCmd(opts),
		newVerifyCmd(opts),
		newSeedCmd(opts),
		newSnapshotCmd(opts),
		newSnapshotsCmd(opts),
		newRestoreCmd(opts),
		newServeCmd(opts),
		newShellCmd(opts),
	)
	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newCreateCmd(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "create <file>",
		Short: "Create a new empty index",
		Long:  "Create a new index file holding only the header block. An existing file is kept unless --force is given.",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.database(args[0])
			if err != nil {
				return err
			}
			if err := db.Create(force); err != nil {
				if errors.Is(err, btree.ErrExists) {
					return fmt.Errorf("%w (use --force to overwrite)", err)
				}
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "Created index %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

func newInsertCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "insert <file> <key> <value>",
		Short: "Insert a key/value pair, replacing the value of an existing key",
		Args:  exactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseUint("key", args[1])
			if err != nil {
				return err
			}
			value, err := parseUint("value", args[2])
			if err != nil {
				return err
			}
			db, err := opts.database(args[0])
			if err != nil {
				return err
			}
			if err := db.Insert(key, value); err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "Inserted %d -> %d\n", key, value)
			return nil
		},
	}
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search <file> <key>",
		Short: "Look up the value stored for a key",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseUint("key", args[1])
			if err != nil {
				return err
			}
			db, err := opts.database(args[0])
			if err != nil {
				return err
			}
			value, found, err := db.Search(key)
			if err != nil {
				return err
			}
			printSearch(cmd.OutOrStdout(), key, value, found)
			return nil
		},
	}
}

func printSearch(w io.Writer, key, value uint64, found bool) {
	if !found {
		warnColor.Fprintln(w, "Key not found.")
		return
	}
	okColor.Fprintf(w, "Found: %d -> %d\n", key, value)
}

func newLoadCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "load <file> <csv>",
		Short: "Insert every key,value line of a text file",
		Long:  "Insert every key,value line of a text file. Loading stops at the first malformed line; pairs before it stay inserted.",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.database(args[0])
			if err != nil {
				return err
			}
			n, err := db.Load(args[1])
			if err != nil {
				if n > 0 {
					warnColor.Fprintf(cmd.ErrOrStderr(), "%d pairs were inserted before the failure\n", n)
				}
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "Loaded %d pairs from %s\n", n, args[1])
			return nil
		},
	}
}

func newPrintCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "print <file>",
		Short: "Print all pairs in ascending key order",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.database(args[0])
			if err != nil {
				return err
			}
			return printPairs(cmd.OutOrStdout(), db.Traverse)
		},
	}
}

func printPairs(w io.Writer, traverse func(btree.Visitor) error) error {
	n := 0
	err := traverse(func(key, value uint64) error {
		n++
		keyColor.Fprintf(w, "%d", key)
		_, err := fmt.Fprintf(w, " -> %d\n", value)
		return err
	})
	if err != nil {
		return err
	}
	if n == 0 {
		warnColor.Fprintln(w, "Index is empty.")
	}
	return nil
}

func newExtractCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <file> <csv>",
		Short: "Write all pairs to a text file in ascending key order",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.database(args[0])
			if err != nil {
				return err
			}
			n, err := db.Extract(args[1])
			if err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "Extracted %d pairs to %s\n", n, args[1])
			return nil
		},
	}
}

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Check the structural invariants of the index",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.database(args[0])
			if err != nil {
				return err
			}
			h, stats, err := db.Info()
			if err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "OK: root %d, next block %d, height %d, nodes %d, leaves %d, keys %d\n",
				h.RootID, h.NextID, stats.Height, stats.Nodes, stats.Leaves, stats.Keys)
			return nil
		},
	}
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	var records int
	cmd := &cobra.Command{
		Use:   "seed <file>",
		Short: "Insert randomly generated pairs",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if records < 0 {
				return fmt.Errorf("%w: --records must not be negative", ErrUsage)
			}
			db, err := opts.database(args[0])
			if err != nil {
				return err
			}
			n, err := db.Seed(records)
			if err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "Seeded %d pairs\n", n)
			return nil
		},
	}
	cmd.Flags().IntVarP(&records, "records", "n", 100, "Number of pairs to generate")
	return cmd
}

func newSnapshotCmd(opts *rootOptions) *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "snapshot <file>",
		Short: "Store a compressed copy of the index",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := snapshot.Take(args[0], message)
			if err != nil {
				return err
			}
			opts.logger.Info("snapshot taken", zap.String("id", snap.ID), zap.Int64("size", snap.Size))
			okColor.Fprintf(cmd.OutOrStdout(), "Snapshot %s taken\n", snap.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "Snapshot message")
	return cmd
}

func newSnapshotsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshots <file>",
		Short: "List the snapshots of an index, oldest first",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := snapshot.List(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				warnColor.Fprintln(out, "No snapshots.")
				return nil
			}
			for _, s := range list {
				keyColor.Fprint(out, s.ID)
				fmt.Fprintf(out, " | %s | %d bytes | %s\n", s.Timestamp, s.Size, s.Message)
			}
			return nil
		},
	}
}

func newRestoreCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <file> <snapshot-id>",
		Short: "Replace the index with a stored snapshot",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := snapshot.Restore(args[0], args[1])
			if err != nil {
				return err
			}
			opts.logger.Info("snapshot restored", zap.String("id", snap.ID), zap.String("index", args[0]))
			okColor.Fprintf(cmd.OutOrStdout(), "Restored %s to snapshot %s (%s)\n", args[0], snap.ID, snap.Timestamp)
			return nil
		},
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve <file>",
		Short: "Serve the index over HTTP",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.database(args[0])
			if err != nil {
				return err
			}
			return server.Serve(cmd.Context(), db, addr, opts.logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", server.DefaultAddr, "Listen address")
	return cmd
}

func newShellCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shell <file>",
		Short: "Run an interactive session against an open index",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			db, err := opts.database(args[0])
			if err != nil {
				return err
			}
			bt, err := db.Open(false)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := bt.Close(); cerr != nil && err == nil {
					err = cerr
				}
			}()
			return NewShell(cmd.InOrStdin(), cmd.OutOrStdout(), bt).Start()
		},
	}
}
