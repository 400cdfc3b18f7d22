package conversation

// DefaultTokenBudget is the history budget used when none is configured.
const DefaultTokenBudget = 6000

// EstimateTokens approximates the token count of s as one token per four bytes.
func EstimateTokens(s string) int {
	return len(s) / 4
}

// Trim bounds history to maxTokens.
//
// The first message is always kept. The rest are taken newest first while
// they fit; the walk stops at the first message that would overflow, so
// everything older than it is dropped. Histories of two or fewer messages
// are returned unchanged. The result is a new slice in chronological order.
func Trim(history []Message, maxTokens int) []Message {
	if len(history) <= 2 {
		out := make([]Message, len(history))
		copy(out, history)
		return out
	}

	first := history[0]
	used := EstimateTokens(first.Content)

	start := len(history)
	for i := len(history) - 1; i >= 1; i-- {
		cost := EstimateTokens(history[i].Content)
		if used+cost > maxTokens {
			break
		}
		used += cost
		start = i
	}

	out := make([]Message, 0, 1+len(history)-start)
	out = append(out, first)
	out = append(out, history[start:]...)
	return out
}

// Tokens sums the estimated tokens of every message.
func Tokens(history []Message) int {
	total := 0
	for _, m := range history {
		total += EstimateTokens(m.Content)
	}
	return total
}
