package rag

import (
	"fmt"
	"regexp"
	"strings"

	"klee-ai/internal/llm"
)

const textQATemplate = "Context information is below.\n" +
	"---------------------\n" +
	"%s\n" +
	"---------------------\n" +
	"Given the context information and not prior knowledge, answer the query.\n" +
	"If the quoted content is empty or unrelated to the question, there is no need to answer based on it, just use your maximum ability to answer.\n" +
	"Query: %s\n" +
	"Answer: "

const refineTemplate = "The original query is as follows: %s\n" +
	"We have provided an existing answer: %s\n" +
	"We have the opportunity to refine the existing answer (only if needed) with some more context below.\n" +
	"------------\n" +
	"%s\n" +
	"------------\n" +
	"Given the new context, refine the original answer to better answer the query. " +
	"If the context isn't useful, return the original answer.\n" +
	"Refined Answer: "

const ownKnowledgeTemplate = "If no corresponding text is found, use your maximum ability to answer.\n" +
	"Query: %s\n" +
	"Answer: "

const queryGenTemplate = "You are a helpful assistant that generates multiple search queries based on a " +
	"single input query. Generate %d search queries, one on each line, " +
	"related to the following input query:\n" +
	"Query: %s\n" +
	"Queries:\n"

func textQAPrompt(context, query string) string {
	return fmt.Sprintf(textQATemplate, context, query)
}

func refinePrompt(query, existing, context string) string {
	return fmt.Sprintf(refineTemplate, query, existing, context)
}

func ownKnowledgePrompt(query string) string {
	return fmt.Sprintf(ownKnowledgeTemplate, query)
}

func queryGenPrompt(n int, query string) string {
	return fmt.Sprintf(queryGenTemplate, n, query)
}

var listMarker = regexp.MustCompile(`^(?:\d+[.)]|[-*•])\s*`)

// parseQueries reads one query per line from a model reply, dropping list
// markers, blanks, repeats and the original question, and keeps at most n.
func parseQueries(reply, original string, n int) []string {
	seen := map[string]bool{strings.ToLower(strings.TrimSpace(original)): true}
	var out []string
	for _, line := range strings.Split(llm.StripThinking(reply), "\n") {
		q := strings.TrimSpace(listMarker.ReplaceAllString(strings.TrimSpace(line), ""))
		q = strings.Trim(q, `"`)
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
		if len(out) == n {
			break
		}
	}
	return out
}
