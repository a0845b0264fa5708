// Package memory implements the layered memory model behind a session:
// working memory (ephemeral key/value), a per-session cache of derived
// context, and long-term memory items persisted through the store.
//
// The Manager is the single entry point. It assembles the context bundle
// a reasoning turn needs (user profile, session summary, relevant long-term
// items, working memory) and compresses completed turns back into long-term
// memory. Retrieval failures degrade to empty fields; they never abort a
// turn.
package memory
