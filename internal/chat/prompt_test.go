package chat

import (
	"testing"

	"github.com/htmlgxn/signal-bot-orx/internal/store"
)

func TestBuildMessages(t *testing.T) {
	history := []store.Turn{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
		{Role: "system", Content: "should be skipped"},
	}

	messages := BuildMessages("persona", history, "new question")
	if len(messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(messages))
	}
	if messages[0].Role != "system" || messages[0].Content != "persona" {
		t.Fatalf("unexpected system message: %+v", messages[0])
	}
	if messages[1].Content != "earlier question" || messages[2].Content != "earlier answer" {
		t.Fatalf("history out of order: %+v", messages[1:3])
	}
	if messages[3].Role != "user" || messages[3].Content != "new question" {
		t.Fatalf("unexpected final message: %+v", messages[3])
	}
}

func TestBuildMessagesEmptyHistory(t *testing.T) {
	messages := BuildMessages(DefaultSystemPrompt, nil, "hi")
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
}
