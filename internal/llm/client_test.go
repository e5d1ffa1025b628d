package llm

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestGatewayErrorMessage(t *testing.T) {
	e := &GatewayError{StatusCode: 429, Message: "rate limited"}
	if !strings.Contains(e.Error(), "429") || !strings.Contains(e.Error(), "rate limited") {
		t.Fatalf("unexpected message: %s", e.Error())
	}
	e = &GatewayError{Message: "connection refused"}
	if strings.Contains(e.Error(), "status") {
		t.Fatalf("status mentioned without code: %s", e.Error())
	}
}

func TestGatewayErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	e := &GatewayError{Message: "boom", Err: inner}
	if !errors.Is(e, inner) {
		t.Fatalf("unwrap broken")
	}
}

func TestSingleFragmentStream(t *testing.T) {
	s := &singleFragmentStream{content: "whole reply"}
	frag, err := s.Recv()
	if err != nil || frag != "whole reply" {
		t.Fatalf("first recv: %q %v", frag, err)
	}
	if _, err := s.Recv(); err != io.EOF {
		t.Fatalf("want io.EOF, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
