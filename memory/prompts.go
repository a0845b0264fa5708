package memory

import (
	"fmt"
	"strings"

	"github.com/pagesense-ai/pagesense/store"
)

const profileSystemPrompt = `You analyze a reader's conversation history and produce a concise profile of their interests, reading level and preferences. Respond with a JSON object: {"interests": [...], "reading_level": "...", "preferences": [...], "summary": "..."}`

const summarySystemPrompt = `You summarize a conversation between a reader and their reading assistant. Keep it short and factual.`

const compressionSystemPrompt = `You compress a completed assistant session into durable memory. Respond with a JSON object: {"summary": "...", "key_points": ["...", ...]}. Each key point must be a standalone fact worth remembering about the user or the material.`

func profilePrompt(messages []*store.Message) string {
	var b strings.Builder
	b.WriteString("Conversation history:\n")
	writeTranscript(&b, messages)
	b.WriteString("\nProduce the reader profile now.")
	return b.String()
}

func summaryPrompt(messages []*store.Message) string {
	var b strings.Builder
	b.WriteString("Summarize this conversation in two or three sentences:\n")
	writeTranscript(&b, messages)
	return b.String()
}

func compressionPrompt(history []string) string {
	var b strings.Builder
	b.WriteString("Session transcript:\n")
	for _, entry := range history {
		b.WriteString(entry)
		b.WriteString("\n")
	}
	b.WriteString("\nCompress the session now.")
	return b.String()
}

func writeTranscript(b *strings.Builder, messages []*store.Message) {
	for _, msg := range messages {
		fmt.Fprintf(b, "[%s] %s\n", msg.Role, msg.Content)
	}
}
