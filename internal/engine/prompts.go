package engine

import (
	"fmt"
	"strings"
)

// Prompt text for every generation call the engine makes. Builders return the
// final string so callers never touch format verbs directly.

const topicExtractionPrompt = `<Context>
You are a strategic research planner. Break down research questions into %s major topics that would be important to investigate.

These should be topics that can be answered by web search results and articles. Do not be too general in your topics. Make sure that the topics are varied from each other.
</Context>

<Question>
%s
</Question>

Respond with a JSON object: {"topics": ["topic one", "topic two"]}`

const subquestionPrompt = `Given the topic "%s", write %s insightful and specific subquestions related to this broader research question:
"%s"

Generate subquestions that will help thoroughly investigate this topic.

Respond with a JSON object: {"subquestions": ["question one", "question two"]}`

const followUpPrompt = `Based on this article content, what are 2 meaningful follow-up research questions that could deepen understanding of the original topic: '%s'?

Article Content:
%s

Original Question: %s

Generate 2 follow-up questions that:
1. Build upon the information in this article
2. Explore deeper aspects of the topic
3. Are specific and researchable
4. Haven't been asked before

Return only the follow-up questions, one per line, with no numbering or bullets:`

const topicFollowUpPrompt = `You are a research analyst. Analyze this synthesized content about a SPECIFIC TOPIC and identify areas that need more research.

<Specific topic to focus on>
%s
</Specific topic to focus on>

<Content>
%s
</Content>

Generate 2-3 specific follow-up research questions that would help expand understanding of THIS SPECIFIC TOPIC ONLY.
- Questions must be directly related to "%s" and nothing else
- Focus only on gaps, details, or aspects missing from the current content
- Questions should be specific and researchable
- Avoid questions that are already answered in the content

Return only the questions, one per line, with no numbering or bullets:`

const integrateArticlePrompt = `You are a research analyst tasked with intelligently integrating new information into existing content about a SPECIFIC TOPIC.

<SPECIFIC TOPIC TO FOCUS ON>
%s
</SPECIFIC TOPIC TO FOCUS ON>

<Current Content>
%s
</Current Content>

<New Article to Integrate>
Title: %s
URL: %s
Content: %s
Source Number: %d
</New Article to Integrate>

Integrate the new information from the article into the current content, but ONLY if it is directly relevant to the topic. If the article contains little or no information about the topic, return the current content unchanged.

CITATION REQUIREMENTS:
- Every single piece of information taken from the new article must be cited with [%d], placed immediately after the relevant information
- Do not invent other source numbers; existing citations in the current content must be preserved exactly
- Weave new information into existing paragraphs rather than appending it
- Do not add section headers, reference lists, or academic structure
- Keep a professional, flowing narrative

Return the integrated content:`

const cleanFormattingPrompt = `Clean the following content of academic formatting and return a natural, flowing narrative.

<Content>
%s
</Content>

Requirements:
- Remove "Abstract:", "Introduction:", "Conclusion:", "References:" sections, bold titles, and numbered section headers
- Keep all the information, presented as continuous prose
- Preserve ALL in-text citations like [1], [2], [3] exactly where they are; do not change citation numbers or format
- Remove any reference list at the end, but keep every in-text citation

Return the cleaned content:`

func buildTopicExtractionPrompt(query string, detail DetailLevel) string {
	return fmt.Sprintf(topicExtractionPrompt, topicRange(detail), query)
}

func buildSubquestionPrompt(topic, query string, detail DetailLevel) string {
	return fmt.Sprintf(subquestionPrompt, topic, subquestionRange(detail), query)
}

func buildFollowUpPrompt(mainQuery, articleContent, question string) string {
	return fmt.Sprintf(followUpPrompt, mainQuery, articleContent, question)
}

func buildTopicFollowUpPrompt(topic, content string) string {
	return fmt.Sprintf(topicFollowUpPrompt, topic, excerpt(content, expansionContentExcerpt), topic)
}

func buildIntegrationPrompt(topic, content string, a Article, sourceID int) string {
	return fmt.Sprintf(integrateArticlePrompt,
		topic, content, a.Title, a.URL, excerpt(a.Text, foldInExcerpt), sourceID, sourceID)
}

func buildCleanPrompt(content string) string {
	return fmt.Sprintf(cleanFormattingPrompt, content)
}

// topicRange maps a detail level to the topic count range given to the LLM.
func topicRange(d DetailLevel) string {
	switch d {
	case DetailLow:
		return "1-2"
	case DetailHigh:
		return "3-4"
	default:
		return "2-3"
	}
}

// subquestionRange maps a detail level to the per-topic subquestion range.
func subquestionRange(d DetailLevel) string {
	switch d {
	case DetailLow:
		return "1-2"
	case DetailHigh:
		return "3-5"
	default:
		return "2-3"
	}
}

// excerpt truncates s to at most n bytes on a rune boundary.
func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
