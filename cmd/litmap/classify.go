package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lthms/litmap/internal/search"
	"github.com/lthms/litmap/internal/session"
)

// ClassifyCmd builds a taxonomy of papers and merges it into the project
// graph. Interrupting it leaves the graph untouched.
type ClassifyCmd struct {
	Query    string `arg:"" optional:"" help:"Search query for the papers to classify."`
	File     string `short:"f" type:"existingfile" help:"Classify the papers in a YAML or JSON file instead."`
	Count    int    `short:"n" default:"25" help:"Number of papers to retrieve."`
	Offset   int    `help:"Skip this many search results."`
	From     int    `help:"Earliest publication year."`
	To       int    `help:"Latest publication year."`
	Criteria string `short:"c" help:"How to organise the papers (default classify.criteria)."`
}

func (cmd *ClassifyCmd) Run(app *App) error {
	if cmd.Query == "" && cmd.File == "" {
		return errors.New("give a query or --file")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rt, err := app.open(ctx, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	criteria := cmd.Criteria
	if criteria == "" {
		criteria = app.Config.Classify.Criteria
	}

	var st session.Status
	if cmd.File != "" {
		src, err := search.LoadFile(cmd.File)
		if err != nil {
			return err
		}
		st, err = rt.session.Classify(ctx, src.All(), criteria)
		if err != nil {
			return err
		}
	} else {
		q := cmd.query()
		if err := q.Validate(); err != nil {
			return err
		}
		st, err = rt.session.SearchAndClassify(ctx, q, criteria)
		if err != nil {
			return err
		}
	}
	printStatus(os.Stdout, st)
	return nil
}

func (cmd *ClassifyCmd) query() search.Query {
	return search.Query{Text: cmd.Query, Count: cmd.Count, Offset: cmd.Offset, YearFrom: cmd.From, YearTo: cmd.To}
}

func printStatus(w io.Writer, st session.Status) {
	fmt.Fprintf(w, "%s %s\n", okStyle.Render("merged"), idStyle.Render(st.RootID))
	fmt.Fprintf(w, "  %d categories, %d of %d papers placed\n", st.Categories, st.Placed, st.Documents)
	if len(st.Queries) > 1 {
		fmt.Fprintf(w, "  searched: %s\n", faintStyle.Render(strings.Join(st.Queries, " | ")))
	}
	if st.Fallback {
		fmt.Fprintln(w, warnStyle.Render("  taxonomy generation failed; used the default categories"))
	}
	if st.FailedChunks > 0 {
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("  %d assignment chunks failed; their papers were left out", st.FailedChunks)))
	}
}

// SearchCmd lists papers from the configured source.
type SearchCmd struct {
	Query  string `arg:"" help:"Search query (\"*\" lists a document file)."`
	Count  int    `short:"n" default:"25" help:"Number of papers to retrieve."`
	Offset int    `help:"Skip this many results."`
	From   int    `help:"Earliest publication year."`
	To     int    `help:"Latest publication year."`
	Format string `default:"text" enum:"text,yaml,json" help:"Output format (text, yaml, json)."`
}

func (cmd *SearchCmd) Run(app *App) error {
	searcher, err := newSearcher(app.Config.Search)
	if err != nil {
		return err
	}
	if searcher == nil {
		return errors.New("no document source: set search.key or search.file")
	}
	q := search.Query{Text: cmd.Query, Count: cmd.Count, Offset: cmd.Offset, YearFrom: cmd.From, YearTo: cmd.To}
	if err := q.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	docs, err := searcher.Search(ctx, q)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	return writeDocuments(os.Stdout, docs, cmd.Format)
}

func writeDocuments(w io.Writer, docs []search.Document, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(docs)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	}
	if len(docs) == 0 {
		fmt.Fprintln(w, faintStyle.Render("no papers found"))
		return nil
	}
	for i, d := range docs {
		fmt.Fprintf(w, "%3d. %s\n", i+1, titleStyle.Render(d.Title))
		meta := d.Authors
		if d.Year != "" {
			meta += " (" + d.Year + ")"
		}
		if d.DOI != "" {
			meta += " doi:" + d.DOI
		}
		if meta != "" {
			fmt.Fprintf(w, "     %s\n", faintStyle.Render(meta))
		}
	}
	return nil
}
