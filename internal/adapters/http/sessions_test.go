package httpadapter

import (
	"testing"

	"github.com/gorsovet/urban-advisor/internal/core/domain"
)

func TestSessionStoreCopiesOnReadAndWrite(t *testing.T) {
	store := NewSessionStore()
	original := []domain.ConversationTurn{{Role: domain.RoleUser, Content: "вопрос"}}
	store.Save("u1", original)

	original[0].Content = "изменено снаружи"
	got := store.History("u1")
	if got[0].Content != "вопрос" {
		t.Fatalf("store must not alias the caller's slice: %+v", got)
	}

	got[0].Content = "изменено после чтения"
	again := store.History("u1")
	if again[0].Content != "вопрос" {
		t.Fatalf("readers must get independent copies: %+v", again)
	}
}

func TestSessionStoreUnknownSessionIsEmpty(t *testing.T) {
	store := NewSessionStore()
	if history := store.History("missing"); len(history) != 0 {
		t.Fatalf("unknown session must read as empty, got %+v", history)
	}
}

func TestSessionStoreClearIsScoped(t *testing.T) {
	store := NewSessionStore()
	store.Save("u1", []domain.ConversationTurn{{Role: domain.RoleUser, Content: "раз"}})
	store.Save("u2", []domain.ConversationTurn{{Role: domain.RoleUser, Content: "два"}})

	store.Clear("u1")
	if len(store.History("u1")) != 0 {
		t.Fatalf("cleared session must be empty")
	}
	if len(store.History("u2")) != 1 {
		t.Fatalf("other sessions must survive a clear")
	}
}
