package search

import "fmt"

const selectPrompt = `You are navigating the outline of a document to answer a question. The outline is JSON: each node has a node_id, a title, a page range (start_index, end_index), a summary and its children.

Select between 1 and %d nodes whose text is most likely to contain the answer. Prefer the deepest, most specific nodes over broad parents when they cover the question.

Question: %s

Document: %s
Description: %s

Outline:
%s

Respond in JSON format:
{
  "node_ids": ["0003", "0007"],
  "reasoning": "<why these sections>",
  "confidence": "<high, medium or low>"
}`

const answerPrompt = `Answer the question using only the document sections below. The search notes record how each document was searched or why it was left out. Cite the document and section title for each claim. If the sections do not contain the answer, say so.

Question: %s

Search notes:
%s

Sections:
%s

Write the answer in markdown. On the final line write your confidence that the answer is correct and complete as "CONFIDENCE: NN" where NN is a number from 0 to 100.`

func buildSelectPrompt(maxNodes int, query, docName, description, outline string) string {
	return fmt.Sprintf(selectPrompt, maxNodes, query, docName, description, outline)
}

func buildAnswerPrompt(query, reasoning, sections string) string {
	return fmt.Sprintf(answerPrompt, query, reasoning, sections)
}
