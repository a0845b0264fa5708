// Package tools provides the built-in tool set for the reading assistant:
// concept search, vocabulary lookup and note taking. The composition root
// registers these at startup; nothing registers itself at load time.
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/pagesense-ai/pagesense/memory"
	"github.com/pagesense-ai/pagesense/store"
	"github.com/pagesense-ai/pagesense/tool"
)

// RegisterBuiltins adds the standard tool set to the registry. The memory
// manager may be nil; save_note then skips the working-memory mirror.
func RegisterBuiltins(reg *tool.Registry, s store.Store, mem *memory.Manager) {
	reg.Register(NewSearchConcepts(s))
	reg.Register(NewLookupVocabulary(s))
	reg.Register(NewSaveNote(s, mem))
}

// NewSearchConcepts searches the user's stored knowledge memories.
func NewSearchConcepts(s store.Store) *tool.FunctionTool {
	spec := &tool.ParameterSpec{
		Properties: map[string]tool.Property{
			"query": {
				Type:          "string",
				Description:   "Concept or topic to search for",
				DescriptionZh: "要搜索的概念或主题",
			},
			"limit": {
				Type:        "integer",
				Description: "Maximum number of results (default 5)",
			},
		},
		Required: []string{"query"},
	}
	return tool.NewFunctionTool("search_concepts", "knowledge", spec,
		func(ctx context.Context, args map[string]any) *tool.Result {
			query, _ := args["query"].(string)
			userID, _ := args["user_id"].(string)
			limit := intArg(args, "limit", 5)

			items, err := s.QueryMemories(ctx, userID, store.MemoryFilter{
				Type:      store.MemoryKnowledge,
				Contains:  query,
				Unexpired: true,
				Order:     store.OrderByRelevance,
				Limit:     limit,
			})
			if err != nil {
				return tool.Fail(tool.CodeToolError).
					WithMessages("搜索概念失败", fmt.Sprintf("concept search failed: %v", err))
			}

			results := make([]map[string]any, 0, len(items))
			for _, item := range items {
				results = append(results, map[string]any{
					"content":         item.Content,
					"related_concept": item.RelatedConcept,
					"importance":      item.Importance,
				})
			}
			return tool.Ok(results).WithMessages(
				fmt.Sprintf("找到 %d 条结果", len(results)),
				fmt.Sprintf("found %d results", len(results)),
			)
		},
		tool.WithDescriptions("Search the reader's stored concepts and notes", "搜索读者已存的概念和笔记"),
		tool.WithUserIDInjection(),
	)
}

// NewLookupVocabulary looks a word up in the user's saved vocabulary.
func NewLookupVocabulary(s store.Store) *tool.FunctionTool {
	spec := &tool.ParameterSpec{
		Properties: map[string]tool.Property{
			"word": {
				Type:          "string",
				Description:   "Word or phrase to look up",
				DescriptionZh: "要查询的单词或短语",
			},
		},
		Required: []string{"word"},
	}
	return tool.NewFunctionTool("lookup_vocabulary", "knowledge", spec,
		func(ctx context.Context, args map[string]any) *tool.Result {
			word, _ := args["word"].(string)
			userID, _ := args["user_id"].(string)

			items, err := s.QueryMemories(ctx, userID, store.MemoryFilter{
				Type:      store.MemoryKnowledge,
				Contains:  word,
				Unexpired: true,
				Order:     store.OrderByRelevance,
				Limit:     3,
			})
			if err != nil {
				return tool.Fail(tool.CodeToolError).
					WithMessages("查询词汇失败", fmt.Sprintf("vocabulary lookup failed: %v", err))
			}
			if len(items) == 0 {
				return tool.Ok([]string{}).WithMessages(
					fmt.Sprintf("没有找到 %q 的记录", word),
					fmt.Sprintf("no saved entry for %q", word),
				)
			}

			entries := make([]string, 0, len(items))
			for _, item := range items {
				entries = append(entries, item.Content)
			}
			return tool.Ok(entries).WithMessages(
				fmt.Sprintf("找到 %d 条词汇记录", len(entries)),
				fmt.Sprintf("found %d vocabulary entries", len(entries)),
			)
		},
		tool.WithDescriptions("Look up a word in the reader's saved vocabulary", "在读者已存词汇中查询单词"),
		tool.WithUserIDInjection(),
	)
}

// NewSaveNote persists a note as a knowledge memory and mirrors it into
// working memory for the rest of the turn.
func NewSaveNote(s store.Store, mem *memory.Manager) *tool.FunctionTool {
	spec := &tool.ParameterSpec{
		Properties: map[string]tool.Property{
			"content": {
				Type:          "string",
				Description:   "Note text to save",
				DescriptionZh: "要保存的笔记内容",
			},
			"related_concept": {
				Type:        "string",
				Description: "Concept this note belongs to",
			},
			"document_id": {
				Type:        "string",
				Description: "Document the note refers to",
			},
		},
		Required: []string{"content"},
	}
	return tool.NewFunctionTool("save_note", "notes", spec,
		func(ctx context.Context, args map[string]any) *tool.Result {
			content, _ := args["content"].(string)
			if strings.TrimSpace(content) == "" {
				return tool.Fail(tool.CodeToolError).
					WithMessages("笔记内容为空", "note content is empty")
			}
			userID, _ := args["user_id"].(string)
			relatedConcept, _ := args["related_concept"].(string)
			documentID, _ := args["document_id"].(string)

			item := &store.MemoryItem{
				UserID:         userID,
				Type:           store.MemoryKnowledge,
				Content:        content,
				Importance:     memory.DefaultImportance,
				RelatedConcept: relatedConcept,
				DocumentID:     documentID,
			}
			if err := s.InsertMemory(ctx, item); err != nil {
				return tool.Fail(tool.CodeToolError).
					WithMessages("保存笔记失败", fmt.Sprintf("saving note failed: %v", err))
			}
			if mem != nil {
				mem.UpdateWorkingMemory("last_saved_note", content)
			}
			return tool.Ok(map[string]any{"memory_id": item.ID}).WithMessages(
				"笔记已保存",
				"note saved",
			)
		},
		tool.WithDescriptions("Save a note to the reader's long-term memory", "保存笔记到读者的长期记忆"),
		tool.WithUserIDInjection(),
		tool.WithBlocking(),
	)
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}
