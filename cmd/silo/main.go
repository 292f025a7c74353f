// cmd/silo/main.go
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"silo/internal/attr"
	"silo/internal/config"
	"silo/internal/filter"
	"silo/internal/logging"
	"silo/internal/stage"
	"silo/internal/store"
	"silo/shared/utils"
)

var logger, _ = zap.NewDevelopment()

var rootCmd = &cobra.Command{
	Use:   "silo",
	Short: "Silo is a content-addressable storage engine",
	Long: `Silo stores file content by hash and normalizes line endings on the
write path. Per-path attributes and the repository autocrlf mode decide
whether content is converted before it is hashed.`,
}

// engine bundles everything an open repository needs.
type engine struct {
	root   string
	cfg    *config.Config
	db     *badger.DB
	store  *store.Store
	attrs  *attr.Store
	stager *stage.Stager
	logger *zap.Logger
}

func (e *engine) close() {
	if e.store != nil {
		e.store.Close()
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			logger.Error("closing database", zap.Error(err))
		}
	}
}

func openEngine() (*engine, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting current directory: %w", err)
	}

	root, err := stage.FindRoot(cwd)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(filepath.Join(root, ".silo", "config.json"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	opts := badger.DefaultOptions(filepath.Join(root, ".silo", "db"))
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	objects, err := store.New(db, store.Options{
		Root:        filepath.Join(root, ".silo", cfg.Store.Root),
		CacheSize:   cfg.Store.CacheSize,
		CompressMin: cfg.Store.CompressMin,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening object store: %w", err)
	}

	attrStore := attr.NewStore(db)
	rules, err := attrStore.Load()
	if err != nil {
		objects.Close()
		db.Close()
		return nil, fmt.Errorf("loading attribute rules: %w", err)
	}

	stager, err := stage.New(root, db, objects, rules, cfg.AutoCRLF, logging.ForComponent(log, "stage"))
	if err != nil {
		objects.Close()
		db.Close()
		return nil, fmt.Errorf("initializing stager: %w", err)
	}

	return &engine{
		root:   root,
		cfg:    cfg,
		db:     db,
		store:  objects,
		attrs:  attrStore,
		stager: stager,
		logger: log,
	}, nil
}

func init() {
	var initCmd = &cobra.Command{
		Use:   "init",
		Short: "Initialize a new Silo repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}

			siloDir := filepath.Join(dir, ".silo")
			if _, err := os.Stat(siloDir); err == nil {
				return fmt.Errorf("repository already initialized in %s", dir)
			}
			if err := os.MkdirAll(siloDir, 0755); err != nil {
				return fmt.Errorf("creating repository directory: %w", err)
			}

			if err := config.Default().Save(filepath.Join(siloDir, "config.json")); err != nil {
				return fmt.Errorf("writing default config: %w", err)
			}

			fmt.Println("Initialized empty Silo repository in", dir)
			return nil
		},
	}

	var stageCmd = &cobra.Command{
		Use:   "stage [paths...]",
		Short: "Stage files into the object store",
		Long:  `Reads the given files, runs them through the write-path filter chain and stores the result. Use '.' to stage everything.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.close()

			if err := eng.stager.Stage(args); err != nil {
				return fmt.Errorf("staging files: %w", err)
			}

			fmt.Println("Files staged successfully")
			return nil
		},
	}

	var unstageCmd = &cobra.Command{
		Use:   "unstage [paths...]",
		Short: "Remove files from the staged set",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.close()

			if err := eng.stager.Unstage(args); err != nil {
				return fmt.Errorf("unstaging files: %w", err)
			}

			fmt.Println("Files unstaged successfully")
			return nil
		},
	}

	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "List staged files",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.close()

			entries := eng.stager.Entries()
			if len(entries) == 0 {
				fmt.Println("Nothing staged")
				return nil
			}

			green := color.New(color.FgGreen).SprintFunc()
			yellow := color.New(color.FgYellow).SprintFunc()
			for _, e := range entries {
				marker := ""
				if e.Normalized {
					marker = yellow(" (normalized)")
				}
				fmt.Printf("%s  %s%s\n", green(utils.ShortHash(e.Hash)), e.Path, marker)
			}
			return nil
		},
	}

	var catCmd = &cobra.Command{
		Use:   "cat <hash>",
		Short: "Print a stored object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.close()

			content, err := eng.store.Get(args[0])
			if err != nil {
				return fmt.Errorf("reading object: %w", err)
			}

			_, err = os.Stdout.Write(content)
			return err
		},
	}

	var checkCmd = &cobra.Command{
		Use:   "check <path>",
		Short: "Show the resolved line-ending policy for a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.close()

			rules, err := eng.attrs.Load()
			if err != nil {
				return fmt.Errorf("loading attribute rules: %w", err)
			}

			policy, err := filter.ResolvePolicy(rules, filepath.ToSlash(args[0]))
			if err != nil {
				return fmt.Errorf("resolving policy: %w", err)
			}

			fmt.Printf("action: %s\n", policy.Action)
			fmt.Printf("eol: %s\n", policy.EOL)
			fmt.Printf("effective: %s\n", policy.Effective())
			return nil
		},
	}

	var attrCmd = &cobra.Command{
		Use:   "attr",
		Short: "Manage path attribute rules",
	}

	var attrSetCmd = &cobra.Command{
		Use:   "set <pattern> <name>=<value>...",
		Short: "Set attributes for a path pattern",
		Long:  `Binds attribute values to a glob pattern, e.g. silo attr set '*.txt' text=true eol=lf.`,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.close()

			attrs := make(map[string]attr.Value)
			for _, pair := range args[1:] {
				name, value, ok := strings.Cut(pair, "=")
				if !ok || name == "" {
					return fmt.Errorf("invalid attribute %q, expected name=value", pair)
				}
				attrs[name] = attr.Parse(value)
			}

			if err := eng.attrs.Put(args[0], attrs); err != nil {
				return fmt.Errorf("storing rule: %w", err)
			}

			fmt.Println("Rule stored")
			return nil
		},
	}

	var attrListCmd = &cobra.Command{
		Use:   "list",
		Short: "List attribute rules in precedence order",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.close()

			rules, err := eng.attrs.List()
			if err != nil {
				return fmt.Errorf("listing rules: %w", err)
			}
			if len(rules) == 0 {
				fmt.Println("No attribute rules")
				return nil
			}

			cyan := color.New(color.FgCyan).SprintFunc()
			for _, r := range rules {
				parts := make([]string, 0, len(r.Attrs))
				for name, value := range r.Attrs {
					parts = append(parts, fmt.Sprintf("%s=%s", name, value))
				}
				fmt.Printf("%s  %s\n", cyan(r.Pattern), strings.Join(parts, " "))
			}
			return nil
		},
	}

	var attrRmCmd = &cobra.Command{
		Use:   "rm <pattern>",
		Short: "Remove the rule for a pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.close()

			if err := eng.attrs.Delete(args[0]); err != nil {
				return fmt.Errorf("removing rule: %w", err)
			}

			fmt.Println("Rule removed")
			return nil
		},
	}

	var watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Restage files automatically as they change",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.close()

			watcher, err := stage.NewWatcher(eng.stager, logging.ForComponent(eng.logger, "watch"))
			if err != nil {
				return fmt.Errorf("starting watcher: %w", err)
			}
			defer watcher.Close()

			fmt.Println("Watching for changes, press Ctrl-C to stop")
			select {}
		},
	}

	attrCmd.AddCommand(attrSetCmd, attrListCmd, attrRmCmd)
	rootCmd.AddCommand(initCmd, stageCmd, unstageCmd, statusCmd, catCmd, checkCmd, attrCmd, watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}
