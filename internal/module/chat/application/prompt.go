package application

import (
	"fmt"
	"strings"

	indexdomain "github.com/jinford/doc-chat/internal/module/index/domain"
	sessiondomain "github.com/jinford/doc-chat/internal/module/session/domain"
)

// BuildReformulatePrompt は会話履歴に依存しない独立した質問への
// 書き換えを指示するプロンプトを構築します
func BuildReformulatePrompt(history []sessiondomain.Message, input string) string {
	var sb strings.Builder

	sb.WriteString("Given a conversation history and the most recent user query, rewrite the query as a standalone question ")
	sb.WriteString("that makes sense without relying on the previous context. Do not provide an answer—only reformulate the ")
	sb.WriteString("question if necessary; otherwise, return it unchanged.\n\n")

	sb.WriteString("## Conversation history\n")
	writeHistory(&sb, history)

	sb.WriteString("\n## Latest user query\n")
	sb.WriteString(input)
	sb.WriteString("\n\n## Standalone question\n")

	return sb.String()
}

// BuildAnswerPrompt は検索済みコンテキストに基づく回答生成プロンプトを構築します
func BuildAnswerPrompt(docContext string, history []sessiondomain.Message, input string) string {
	var sb strings.Builder

	sb.WriteString("You are an assistant designed to answer questions using the provided context. Rely only on the retrieved ")
	sb.WriteString("information to form your response. If the answer is not found in the context, respond with 'I don't know.' ")
	sb.WriteString("Keep your answer concise and no longer than three sentences.\n\n")

	sb.WriteString("## Context\n")
	if docContext != "" {
		sb.WriteString(docContext)
		sb.WriteString("\n")
	} else {
		sb.WriteString("(no relevant context found)\n")
	}

	sb.WriteString("\n## Conversation history\n")
	writeHistory(&sb, history)

	sb.WriteString("\n## Question\n")
	sb.WriteString(input)
	sb.WriteString("\n\n## Answer\n")

	return sb.String()
}

// BuildDocumentContext は選択済みチャンク列をコンテキストテキストに整形します
func BuildDocumentContext(hits []indexdomain.SearchHit) string {
	var sb strings.Builder

	for i, h := range hits {
		if i > 0 {
			sb.WriteString("\n---\n\n")
		}
		sb.WriteString(fmt.Sprintf("### [Excerpt %d] (source: %s)\n", i+1, h.Entry.Chunk.SourceID))
		sb.WriteString(h.Entry.Chunk.Text)
		sb.WriteString("\n")
	}

	return sb.String()
}

// writeHistory は会話履歴を整形して書き込みます
func writeHistory(sb *strings.Builder, history []sessiondomain.Message) {
	if len(history) == 0 {
		sb.WriteString("(no previous conversation)\n")
		return
	}
	for _, msg := range history {
		switch msg.Role {
		case sessiondomain.RoleUser:
			sb.WriteString("User: ")
		case sessiondomain.RoleAssistant:
			sb.WriteString("Assistant: ")
		}
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
}
