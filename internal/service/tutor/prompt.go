package tutor

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/simulation"
)

// specialActionMarker starts the line carrying the directive in model output.
const specialActionMarker = "SPECIAL_ACTION:"

var markerPattern = regexp.MustCompile(`(?i)special_action:`)

const tutorPersona = `You are Dhyan, a patient tutor for school and college learners.
Explain step by step, check understanding with a short question, and prefer
intuition before formulas. Use Markdown for structure and LaTeX-free notation.`

const titlePrompt = `You name tutoring conversations. Read the transcript and reply with a
title of at most six words that states the topic. Reply with the title only,
without quotes or punctuation at the end.`

// buildTutorSystemPrompt describes the tutor role and the directive protocol.
func buildTutorSystemPrompt(sims []simulation.Simulation) string {
	var lines []string
	for _, sim := range sims {
		lines = append(lines, fmt.Sprintf("- %s: %s", sim.ID, sim.Title))
	}

	return fmt.Sprintf(`%s

When an interactive simulation would help the learner, offer one from this list:
%s

Always end your answer with one final line of the form
%s {'id': 1, 'data': '<simulation id>'}
or, when no simulation fits,
%s null`,
		tutorPersona,
		strings.Join(lines, "\n"),
		specialActionMarker,
		specialActionMarker,
	)
}

// buildAskQuery folds the trimmed transcript, options and latest message into one user turn.
func buildAskQuery(options map[string]any, latestMessage, conversationContext string) string {
	var builder strings.Builder
	if len(options) > 0 {
		keys := make([]string, 0, len(options))
		for k := range options {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		builder.WriteString("Learner preferences:\n")
		for _, k := range keys {
			builder.WriteString(fmt.Sprintf("- %s: %v\n", k, options[k]))
		}
		builder.WriteString("\n")
	}
	if strings.TrimSpace(conversationContext) != "" {
		builder.WriteString("Conversation so far:\n")
		builder.WriteString(conversationContext)
		builder.WriteString("\n")
	}
	builder.WriteString("Latest message:\n")
	builder.WriteString(latestMessage)
	return builder.String()
}

// splitSpecialAction separates the reply text from the trailing directive line.
// Output without a directive yields "null".
func splitSpecialAction(content string) (reply, action string) {
	matches := markerPattern.FindAllStringIndex(content, -1)
	if len(matches) == 0 {
		return strings.TrimSpace(content), "null"
	}
	last := matches[len(matches)-1]
	reply = strings.TrimSpace(content[:last[0]])
	action = strings.TrimSpace(content[last[1]:])
	if action == "" {
		action = "null"
	}
	return reply, action
}

// cleanTitle strips quoting and trailing punctuation models tend to add.
func cleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	title = strings.Trim(title, "\"'`*# ")
	title = strings.TrimRight(title, ".!")
	return strings.TrimSpace(title)
}
