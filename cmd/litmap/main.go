package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
)

var version = "dev"

// CLI is the top-level command structure for litmap.
type CLI struct {
	Debug   bool   `env:"LITMAP_DEBUG" help:"Enable debug logging."`
	Config  string `env:"LITMAP_CONFIG" type:"path" help:"Config file (default ~/.config/litmap/config)."`
	Project string `short:"P" env:"LITMAP_PROJECT" help:"Project whose graph to use (default session.project)."`

	Classify ClassifyCmd `cmd:"" help:"Classify papers into a new taxonomy tree beside the existing graph."`
	Search   SearchCmd   `cmd:"" help:"Search for papers without classifying them."`
	Show     ShowCmd     `cmd:"" help:"Print the project graph."`
	Chat     ChatCmd     `cmd:"" help:"Chat about a node; replies may rename it or add children."`
	Edit     EditCmd     `cmd:"" help:"Edit the graph directly."`
	Serve    ServeCmd    `cmd:"" help:"Run the daemon (MCP server, JSON API and dashboard)."`
	Logs     LogsCmd     `cmd:"" help:"Print the daemon's recent logs."`
	Version  VersionCmd  `cmd:"" help:"Print the version."`
}

type VersionCmd struct{}

func (cmd *VersionCmd) Run() error {
	fmt.Println("litmap", version)
	return nil
}

func main() {
	cli := CLI{}
	parser, err := kong.New(&cli,
		kong.Name("litmap"),
		kong.Description("Turn a set of papers into an editable knowledge graph."),
		kong.UsageOnError(),
		kong.Exit(func(code int) {
			os.Exit(code)
		}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "litmap: %v\n", err)
		os.Exit(1)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	setupLogger(cli.Debug)

	cfg, err := loadUserConfig(cli.Config)
	ctx.FatalIfErrorf(err)
	ctx.Bind(&App{Config: cfg, Project: cli.Project, Debug: cli.Debug})

	err = ctx.Run()
	ctx.FatalIfErrorf(err)
}
