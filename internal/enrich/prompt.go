package enrich

import "fmt"

const summaryPrompt = `You are given a section of a document. Write a summary of 2 to 4 sentences describing what the section covers. Mention the key facts, figures or conclusions a reader would search for. Respond with the summary text only.

Section title: %s

Section text:
%s`

const descriptionPrompt = `You are given the outline of a document as JSON. Each node has a title, a page range and a summary. Write a one-paragraph description of the whole document: what it is, who it is for and the main topics it covers. Respond with the description only.

Document: %s

Outline:
%s`

func buildSummaryPrompt(title, text string) string {
	return fmt.Sprintf(summaryPrompt, title, text)
}

func buildDescriptionPrompt(docName, outline string) string {
	return fmt.Sprintf(descriptionPrompt, docName, outline)
}
