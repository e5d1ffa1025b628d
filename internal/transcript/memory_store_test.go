package transcript

import "testing"

func TestMemoryStoreAppendListDelete(t *testing.T) {
	m := NewMemoryStore()

	if _, err := m.AppendConversation("a", nil); err != ErrEmptyConversation {
		t.Fatalf("want ErrEmptyConversation, got %v", err)
	}

	idx, err := m.AppendConversation("a", []Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
	})
	if err != nil || idx != 0 {
		t.Fatalf("append: idx=%d err=%v", idx, err)
	}
	if _, err := m.AppendConversation("b", []Message{{Role: "user", Content: "foo"}}); err != nil {
		t.Fatalf("append b: %v", err)
	}

	convsA, _ := m.ListConversations("a")
	convsB, _ := m.ListConversations("b")
	if len(convsA) != 1 || len(convsB) != 1 {
		t.Fatalf("unexpected lengths: a=%d b=%d", len(convsA), len(convsB))
	}
	if convsA[0][0].Role != "user" || convsA[0][0].Content != "hello" {
		t.Fatalf("unexpected a[0][0]: %+v", convsA[0][0])
	}

	// Ensure copy semantics (modifying returned slice does not affect internal state)
	convsA[0][0] = Message{Role: "user", Content: "mutated"}
	convsA2, _ := m.ListConversations("a")
	if convsA2[0][0].Content != "hello" {
		t.Fatalf("internal state mutated via returned slice")
	}

	existed, err := m.DeleteTranscript("a")
	if err != nil || !existed {
		t.Fatalf("delete: existed=%v err=%v", existed, err)
	}
	if convs, _ := m.ListConversations("a"); len(convs) != 0 {
		t.Fatalf("delete did not clear user a")
	}
	if convs, _ := m.ListConversations("b"); len(convs) != 1 {
		t.Fatalf("delete should not affect other users")
	}
}

func TestMemoryStoreFeedback(t *testing.T) {
	m := NewMemoryStore()
	if _, err := m.AppendConversation("a", []Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	ok, err := m.SetMessageFeedback("a", 0, 1, "good")
	if err != nil || !ok {
		t.Fatalf("feedback: ok=%v err=%v", ok, err)
	}
	convs, _ := m.ListConversations("a")
	if convs[0][1].Feedback != "good" {
		t.Fatalf("feedback not set: %+v", convs[0][1])
	}

	for _, c := range [][2]int{{1, 0}, {0, 5}, {-1, 0}} {
		if ok, err := m.SetMessageFeedback("a", c[0], c[1], "x"); err != nil || ok {
			t.Fatalf("out of range (%d,%d): ok=%v err=%v", c[0], c[1], ok, err)
		}
	}
	if ok, err := m.SetMessageFeedback("nobody", 0, 0, "x"); err != nil || ok {
		t.Fatalf("unknown user: ok=%v err=%v", ok, err)
	}
}
