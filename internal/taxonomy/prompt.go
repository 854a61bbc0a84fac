package taxonomy

import (
	"fmt"
	"strings"

	"github.com/lthms/litmap/internal/search"
)

func inducePrompt(docs []search.Document, criteria string, budget int) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = "Title: " + d.Title + "\nAbstract: " + d.Abstract
	}
	corpus := truncateRunes(strings.Join(parts, "\n---\n"), budget)

	return fmt.Sprintf(`Analyze these %d research papers and identify their %s.
Structure them into a hierarchical taxonomy (mind map).

Input papers:
%s

OUTPUT FORMAT:
Return a strictly valid JSON object representing the tree.
Each node must have "id" (unique string), "label", and an optional "children" array.
Example:
{
  "id": "root", "label": "Category Overview", "children": [
    {"id": "cat1", "label": "Category 1", "children": []},
    {"id": "cat2", "label": "Category 2", "children": []}
  ]
}

Rules:
1. The root id must be "root".
2. Ids are short and descriptive.
3. Use 2-3 levels of depth at most.
4. Cover all papers.`, len(docs), criteria, corpus)
}

func assignPrompt(docs []search.Document, offset int, cats []Category, criteria string, snippet int) string {
	var nodes strings.Builder
	for _, c := range cats {
		fmt.Fprintf(&nodes, "%s: %s\n", c.ID, c.Label)
	}
	var papers strings.Builder
	for i, d := range docs {
		fmt.Fprintf(&papers, "[ID:%d] %s (%s...)\n", offset+i, d.Title, truncateRunes(d.Abstract, snippet))
	}

	return fmt.Sprintf(`Classify these %d papers into the provided taxonomy based on "%s".

Taxonomy nodes (ID: Label):
%s
Papers:
%s
Task:
For each paper, find the MOST SPECIFIC node id in the taxonomy to attach it to.

Return JSON: [{"id": 0, "targetNodeId": "cat1"}, ...] using the paper ID provided.
If unsure, use "root".`, len(docs), criteria, nodes.String(), papers.String())
}

func truncateRunes(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
