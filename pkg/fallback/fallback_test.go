package fallback

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestInvoke(t *testing.T) {
	e := New()
	e.Register("analyze", func(input any) (json.RawMessage, error) {
		return json.RawMessage(`{"keywords":[]}`), nil
	})

	if !e.Has("analyze") {
		t.Error("expected fallback for analyze")
	}
	data, err := e.Invoke("analyze", "some text")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"keywords":[]}` {
		t.Errorf("unexpected data: %s", data)
	}
}

func TestInvokeNoFallback(t *testing.T) {
	e := New()
	if e.Has("chat") {
		t.Error("expected no fallback for chat")
	}
	_, err := e.Invoke("chat", nil)
	if !errors.Is(err, ErrNoFallback) {
		t.Errorf("expected ErrNoFallback, got %v", err)
	}
}

func TestRegisterReplaces(t *testing.T) {
	e := New()
	e.Register("suggest", func(any) (json.RawMessage, error) { return json.RawMessage(`1`), nil })
	e.Register("suggest", func(any) (json.RawMessage, error) { return json.RawMessage(`2`), nil })

	data, err := e.Invoke("suggest", nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `2` {
		t.Errorf("expected replacement fallback, got %s", data)
	}
}
