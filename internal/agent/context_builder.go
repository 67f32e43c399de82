package agent

import (
	"strings"

	"github.com/DrayChou/personal-ai-assistant/pkg/models"
)

// estimateTokens approximates token count the way working-memory budget
// checks only need to be roughly right: ~4 characters per token, the
// common rule of thumb for English-dominant text.
func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + 3) / 4
}

func messageTokens(msgs []models.Message) int {
	total := 0
	for _, m := range msgs {
		total += estimateTokens(m.Content)
	}
	return total
}

// buildContext composes the messages list per spec.md §4.5 step 1:
// [systemPrompt] + retrievedMemoryContext + recentSessionMessages +
// {role:user, content:userInput}, enforcing maxTokens with priority
// system > working memory (the most recent turns) > relevant long-term
// memories > oldest conversation turns (dropped first).
//
// recalledMemory is the already-recalled "[Relevant memory] ..." text,
// or empty if recall produced nothing. history is the session's prior
// messages, oldest first.
func buildContext(systemPrompt, recalledMemory string, history []models.Message, userInput string, maxTokens int) []models.Message {
	system := models.Message{Role: models.RoleSystem, Content: systemPrompt}
	user := models.Message{Role: models.RoleUser, Content: userInput}

	var memoryMsg *models.Message
	if strings.TrimSpace(recalledMemory) != "" {
		memoryMsg = &models.Message{Role: models.RoleSystem, Content: "[Relevant memory] " + recalledMemory}
	}

	budget := maxTokens - estimateTokens(system.Content) - estimateTokens(user.Content)
	if memoryMsg != nil {
		budget -= estimateTokens(memoryMsg.Content)
	}

	kept := trimHistoryToBudget(history, budget)
	// Recent turns outrank recalled long-term memory: if keeping the
	// memory block forced turns out of the compressed history, drop the
	// block and give its share of the budget back to the history.
	if memoryMsg != nil && len(kept) < len(compressHistory(history)) {
		budget += estimateTokens(memoryMsg.Content)
		memoryMsg = nil
		kept = trimHistoryToBudget(history, budget)
	}

	out := make([]models.Message, 0, len(kept)+3)
	out = append(out, system)
	if memoryMsg != nil {
		out = append(out, *memoryMsg)
	}
	out = append(out, kept...)
	out = append(out, user)
	return out
}

// trimHistoryToBudget keeps as many of the most recent history messages
// as fit in budget tokens. History that fits is returned unchanged;
// otherwise the compression rule (keep system + 5 most recent
// non-system + one summary) is applied, and if that is still over
// budget the oldest remaining messages are dropped one at a time until
// it fits. A non-positive budget returns the compressed set as is.
func trimHistoryToBudget(history []models.Message, budget int) []models.Message {
	if budget <= 0 {
		return compressHistory(history)
	}
	if messageTokens(history) <= budget {
		return history
	}

	compressed := compressHistory(history)
	if messageTokens(compressed) <= budget {
		return compressed
	}

	// Still over budget: drop oldest messages one at a time.
	kept := compressed
	for len(kept) > 0 && messageTokens(kept) > budget {
		kept = kept[1:]
	}
	return kept
}

// compressHistory implements the Tier-0 working-memory compression rule
// from spec.md §4.6: keep system messages, keep the 5 most recent
// non-system messages, replace the rest with one summary message
// synthesized from topic tokens extracted from the replaced messages.
func compressHistory(history []models.Message) []models.Message {
	const keepRecent = 5

	var systemMsgs, nonSystem []models.Message
	for _, m := range history {
		if m.Role == models.RoleSystem {
			systemMsgs = append(systemMsgs, m)
		} else {
			nonSystem = append(nonSystem, m)
		}
	}

	if len(nonSystem) <= keepRecent {
		out := make([]models.Message, 0, len(systemMsgs)+len(nonSystem))
		out = append(out, systemMsgs...)
		out = append(out, nonSystem...)
		return out
	}

	cut := len(nonSystem) - keepRecent
	replaced := nonSystem[:cut]
	recent := nonSystem[cut:]

	summary := models.Message{
		Role:    models.RoleSystem,
		Content: "[Summary] " + summarizeTopics(replaced),
	}

	out := make([]models.Message, 0, len(systemMsgs)+1+len(recent))
	out = append(out, systemMsgs...)
	out = append(out, summary)
	out = append(out, recent...)
	return out
}

// summarizeTopics extracts a rough set of topic tokens (longer words,
// deduplicated, in order of first appearance) from the messages being
// dropped, as a cheap stand-in for an LLM-generated summary when the
// working-memory budget must be enforced synchronously, off the LLM
// call path.
func summarizeTopics(msgs []models.Message) string {
	seen := make(map[string]struct{})
	var tokens []string
	for _, m := range msgs {
		for _, word := range strings.Fields(m.Content) {
			w := strings.ToLower(strings.Trim(word, ".,!?;:\"'()[]{}"))
			if len(w) < 5 {
				continue
			}
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			tokens = append(tokens, w)
			if len(tokens) >= 12 {
				break
			}
		}
		if len(tokens) >= 12 {
			break
		}
	}
	if len(tokens) == 0 {
		return "earlier conversation (no distinguishing topics extracted)"
	}
	return strings.Join(tokens, ", ")
}
