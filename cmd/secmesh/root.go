package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/secmesh/config"
	"github.com/hupe1980/secmesh/logging"
)

// cli holds state shared by all subcommands.
type cli struct {
	v       *viper.Viper
	cfgFile string
	envFile string
	cfg     *config.Config
	logger  *logging.SecMeshLogger
}

func newRootCmd() *cobra.Command {
	c := &cli{v: config.New()}

	root := &cobra.Command{
		Use:   "secmesh",
		Short: "Security knowledge-graph analyst",
		Long: `secmesh answers natural-language questions about vulnerability scan
findings stored in a Neo4j knowledge graph, either with a single analyst
agent or with a four-stage specialist pipeline.

Examples:
  # Serve the HTTP API
  secmesh serve --addr :5000

  # Ask one question
  secmesh ask "Which assets have critical findings?"

  # Stream the pipeline steps as JSON lines
  secmesh stream --multi "Assess our exposure"`,
		SilenceUsage:      true,
		PersistentPreRunE: c.load,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "YAML config file")
	flags.StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (json, text)")

	bind(c.v, root, "log.level", "log-level")
	bind(c.v, root, "log.format", "log-format")

	root.AddCommand(
		newServeCmd(c),
		newAskCmd(c),
		newStreamCmd(c),
		newEnrichCmd(c),
		newMCPCmd(c),
		newConfigCmd(c),
	)

	return root
}

// bind ties a flag to a config key. Panics on a misspelled flag name.
func bind(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	f := cmd.PersistentFlags().Lookup(flag)
	if f == nil {
		f = cmd.Flags().Lookup(flag)
	}
	if err := v.BindPFlag(key, f); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

func (c *cli) load(cmd *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(c.envFile); err != nil {
		return err
	}

	cfg, err := config.Load(c.v, c.cfgFile)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	c.cfg = cfg
	c.logger = logging.NewLogger(&logging.LoggerConfig{
		Level:     logging.ParseLevel(cfg.Log.Level),
		Format:    cfg.Log.Format,
		Output:    os.Stderr,
		Component: "secmesh",
	})

	return nil
}
