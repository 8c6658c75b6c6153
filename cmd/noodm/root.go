package main

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// cli wires the cobra command tree to a viper instance. Each cli owns its
// own viper so tests can run several side by side.
type cli struct {
	v        *viper.Viper
	root     *cobra.Command
	out      io.Writer
	errOut   io.Writer
	cfg      cliConfig
	logger   *zap.Logger
	closeLog func()
}

func newCLI(out, errOut io.Writer) *cli {
	c := &cli{
		v:        viper.New(),
		out:      out,
		errOut:   errOut,
		logger:   zap.NewNop(),
		closeLog: func() {},
	}
	c.createRootCommand()
	c.addCommands()
	return c
}

// setupViperConfig configures config file discovery and NOODM_* variables
func (c *cli) setupViperConfig() error {
	if configFile := os.Getenv("NOODM_CONFIG"); configFile != "" {
		c.v.SetConfigFile(configFile)
	} else {
		c.v.SetConfigName("noodm")
		c.v.SetConfigType("yaml")
		c.v.AddConfigPath(".")
		c.v.AddConfigPath("$HOME/.noodm")
	}

	c.v.SetEnvPrefix("NOODM")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return NewConfigError("read configuration", err.Error(), CommonSuggestions.CheckConfig)
		}
	}
	return nil
}

func (c *cli) createRootCommand() {
	c.root = &cobra.Command{
		Use:   "noodm",
		Short: "noodm - embedded document store",
		Long: `noodm manages collections of schemaless documents kept in a single
database file (JSON or BSON), a SQLite database or a DynamoDB table.

Configuration sources (in order of precedence):
1. Command line flags
2. Environment variables (NOODM_*)
3. Configuration file (NOODM_CONFIG, ./noodm.yaml or ~/.noodm/noodm.yaml)

Examples:
  # Insert documents
  noodm --db app.json insert users '{"email": "ada@example.com", "name": "Ada"}'

  # Query with conditions
  noodm --db app.json find tasks --where owner=u-ada --where 'due<2024-04-01T00:00:00Z'

  # Declare fields, indexes and rules from a schema file
  noodm --db app.json --schema schema.yaml insert users '{"email": "grace@example.com"}'`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := c.setupViperConfig(); err != nil {
				return err
			}
			if err := c.v.Unmarshal(&c.cfg); err != nil {
				return NewConfigError("read configuration", err.Error(), CommonSuggestions.CheckConfig)
			}
			if err := c.cfg.validate(); err != nil {
				return err
			}
			logger, closeLog, err := newLogger(c.cfg.LogLevel, c.cfg.LogConsole, c.errOut)
			if err != nil {
				return err
			}
			c.logger, c.closeLog = logger, closeLog
			c.logger.Debug("command started",
				zap.String("command", cmd.Name()),
				zap.String("db", c.cfg.DB),
				zap.String("backend", c.cfg.backend()))
			return nil
		},
	}
	c.root.SetOut(c.out)
	c.root.SetErr(c.errOut)

	flags := c.root.PersistentFlags()
	flags.StringP("db", "d", "", "Database path, or database name with the dynamodb backend")
	flags.StringP("backend", "b", "", "Storage backend: json|bson|sqlite|dynamodb (default: from the --db extension)")
	flags.StringP("schema", "s", "", "YAML file declaring collection fields")
	flags.StringP("format", "f", "json", "Output format: json|yaml|table|plaintext|markdown")
	flags.String("log-level", "warn", "Log level: debug|info|warn|error")
	flags.Bool("log-console", false, "Also write log lines to stderr")
	flags.Bool("strict-unique", false, "Hold the collection lock across uniqueness checks and writes")
	flags.String("dynamo-table", "", "DynamoDB table for the dynamodb backend")
	_ = c.v.BindPFlags(flags)
}

// execute runs the command line args and releases the logger
func (c *cli) execute(ctx context.Context, args []string) error {
	defer func() { c.closeLog() }()
	c.root.SetArgs(args)
	return c.root.ExecuteContext(ctx)
}
