package llm

import (
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"

	"github.com/ent0n29/ragchat/internal/chatstore"
)

func TestBuildSystemPromptUsesCompanyName(t *testing.T) {
	got := buildSystemPrompt("Acme Corp")
	if !strings.Contains(got, "Acme Corp") {
		t.Fatalf("system prompt missing company name: %q", got)
	}

	fallback := buildSystemPrompt("  ")
	if !strings.Contains(fallback, "our company") {
		t.Fatalf("system prompt missing fallback name: %q", fallback)
	}
}

func TestBuildEnhancedPrompt(t *testing.T) {
	withContext := buildEnhancedPrompt("chunk-a\n---\nchunk-b", "what is the policy?")
	if !strings.Contains(withContext, "RELEVANT CONTEXT") {
		t.Fatalf("prompt missing context header: %q", withContext)
	}
	if !strings.Contains(withContext, "chunk-a") || !strings.Contains(withContext, "what is the policy?") {
		t.Fatalf("prompt missing context or query: %q", withContext)
	}

	withoutContext := buildEnhancedPrompt("", "what is the policy?")
	if strings.Contains(withoutContext, "RELEVANT CONTEXT") {
		t.Fatalf("prompt should omit context header when context is empty: %q", withoutContext)
	}
	if !strings.Contains(withoutContext, "USER QUERY") {
		t.Fatalf("prompt missing query section: %q", withoutContext)
	}
}

func TestFormatMessagesRoleMapping(t *testing.T) {
	c := NewClient(Config{APIKey: "test", Model: "test-model", CompanyName: "Acme"})

	history := []chatstore.Message{
		{ID: 1, Role: chatstore.RoleUser, Content: "hi"},
		{ID: 2, Role: chatstore.RoleBot, Content: "hello"},
	}
	msgs := c.formatMessages(history, "ctx", "how are you?")

	if len(msgs) != 4 {
		t.Fatalf("messages = %d, want 4 (system + 2 history + query)", len(msgs))
	}
	if msgs[0].Role != openai.ChatMessageRoleSystem {
		t.Fatalf("first role = %q, want system", msgs[0].Role)
	}
	if msgs[1].Role != openai.ChatMessageRoleUser || msgs[1].Content != "hi" {
		t.Fatalf("history user turn = %+v", msgs[1])
	}
	if msgs[2].Role != openai.ChatMessageRoleAssistant || msgs[2].Content != "hello" {
		t.Fatalf("history bot turn = %+v", msgs[2])
	}
	if msgs[3].Role != openai.ChatMessageRoleUser {
		t.Fatalf("final role = %q, want user", msgs[3].Role)
	}
	if !strings.Contains(msgs[3].Content, "how are you?") {
		t.Fatalf("final message missing query: %q", msgs[3].Content)
	}
}
