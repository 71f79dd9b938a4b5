package context

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/vaultline/vaultline/pkg/models"
)

func makeHistory(n int) []*models.Message {
	history := make([]*models.Message, 0, n)
	for i := 0; i < n; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		history = append(history, &models.Message{
			ID:      fmt.Sprintf("m%d", i),
			Role:    role,
			Content: fmt.Sprintf("message %d", i),
		})
	}
	return history
}

func TestBuildKeepsShortHistoryVerbatim(t *testing.T) {
	builder := NewBuilder(Config{RecentWindow: 20})

	messages := builder.Build(makeHistory(5))
	if len(messages) != 5 {
		t.Fatalf("len = %d", len(messages))
	}
	if messages[0].Content != "message 0" || messages[4].Content != "message 4" {
		t.Error("short history must pass through unchanged")
	}
	if messages[0].Role != "user" || messages[1].Role != "assistant" {
		t.Errorf("roles = %s, %s", messages[0].Role, messages[1].Role)
	}
}

func TestBuildEmptyHistory(t *testing.T) {
	builder := NewBuilder(Config{})
	if messages := builder.Build(nil); messages != nil {
		t.Errorf("messages = %v", messages)
	}
}

func TestBuildTruncatesOldActionPayloads(t *testing.T) {
	builder := NewBuilder(Config{RecentWindow: 2, MaxToolResultChars: 10})

	long := strings.Repeat("x", 100)
	history := []*models.Message{
		{Role: models.RoleAssistant, Content: long, Action: &models.ActionRecord{Intent: models.IntentBalance, Success: true}},
		{Role: models.RoleAssistant, Content: long},
		{Role: models.RoleUser, Content: "recent question"},
		{Role: models.RoleAssistant, Content: long, Action: &models.ActionRecord{Intent: models.IntentSend, Success: true}},
	}

	messages := builder.Build(history)
	if len(messages) != 4 {
		t.Fatalf("len = %d", len(messages))
	}
	if len(messages[0].Content) > 15 {
		t.Errorf("old action payload not truncated: %d chars", len(messages[0].Content))
	}
	if len(messages[1].Content) != 100 {
		t.Error("old plain text must not be truncated")
	}
	if len(messages[3].Content) != 100 {
		t.Error("recent action payload must stay verbatim")
	}
}

func TestBuildTruncationKeepsRunesIntact(t *testing.T) {
	// 3-byte runes; a 10-byte limit falls mid-rune and must back up.
	builder := NewBuilder(Config{RecentWindow: 1, MaxToolResultChars: 10})

	history := []*models.Message{
		{Role: models.RoleAssistant, Content: strings.Repeat("日", 20), Action: &models.ActionRecord{Intent: models.IntentBalance, Success: true}},
		{Role: models.RoleUser, Content: "recent question"},
	}

	messages := builder.Build(history)
	if len(messages) != 2 {
		t.Fatalf("len = %d", len(messages))
	}
	got := messages[0].Content
	if !utf8.ValidString(got) {
		t.Fatalf("truncated content is not valid UTF-8: %q", got)
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("truncated content = %q", got)
	}
	if want := strings.Repeat("日", 3) + "…"; got != want {
		t.Errorf("content = %q, want %q", got, want)
	}
}

func TestBuildSummarizesElidedTurns(t *testing.T) {
	builder := NewBuilder(Config{RecentWindow: 2, IncludeSummary: true})

	history := makeHistory(6)
	history[3].Action = &models.ActionRecord{Intent: models.IntentSwap, Success: false}

	messages := builder.Build(history)
	// One summary plus the two recent messages.
	if len(messages) != 3 {
		t.Fatalf("len = %d", len(messages))
	}
	summary := messages[0]
	if summary.Role != "user" {
		t.Errorf("summary role = %s", summary.Role)
	}
	if !strings.Contains(summary.Content, "2 user and 2 assistant") {
		t.Errorf("summary = %q", summary.Content)
	}
	if !strings.Contains(summary.Content, "swap failed") {
		t.Errorf("summary = %q", summary.Content)
	}
	if messages[1].Content != "message 4" || messages[2].Content != "message 5" {
		t.Error("recent window must follow the summary")
	}
}

func TestBuildFitsTokenBudget(t *testing.T) {
	// Each message estimates to ~26 tokens; a 100 token budget keeps only
	// the newest few.
	builder := NewBuilder(Config{RecentWindow: 50, MaxContextTokens: 100})

	history := make([]*models.Message, 10)
	for i := range history {
		history[i] = &models.Message{
			Role:    models.RoleUser,
			Content: strings.Repeat("a", 100) + fmt.Sprint(i),
		}
	}

	messages := builder.Build(history)
	if len(messages) >= 10 {
		t.Fatalf("budget not applied, len = %d", len(messages))
	}
	last := messages[len(messages)-1]
	if !strings.HasSuffix(last.Content, "9") {
		t.Error("newest message must survive the budget")
	}
}

func TestBuildNewestAlwaysSurvives(t *testing.T) {
	builder := NewBuilder(Config{RecentWindow: 5, MaxContextTokens: 1})

	messages := builder.Build(makeHistory(4))
	if len(messages) != 1 {
		t.Fatalf("len = %d", len(messages))
	}
	if messages[0].Content != "message 3" {
		t.Errorf("survivor = %q", messages[0].Content)
	}
}

func TestBuildDeterministic(t *testing.T) {
	builder := NewBuilder(Config{RecentWindow: 3, IncludeSummary: true})
	history := makeHistory(8)

	first := builder.Build(history)
	second := builder.Build(history)
	if len(first) != len(second) {
		t.Fatal("builds differ in length")
	}
	for i := range first {
		if first[i].Content != second[i].Content || first[i].Role != second[i].Role {
			t.Errorf("message %d differs between builds", i)
		}
	}
}
