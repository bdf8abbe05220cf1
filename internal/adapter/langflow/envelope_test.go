package langflow

import (
	"errors"
	"testing"

	"flowrelay/internal/domain"
)

func TestExtractReply(t *testing.T) {
	body := []byte(`{
		"outputs": [
			{"outputs": [
				{"results": {"message": {"text": "hello from the flow"}}}
			]}
		]
	}`)
	got, err := ExtractReply(body)
	if err != nil {
		t.Fatalf("ExtractReply: %v", err)
	}
	if got != "hello from the flow" {
		t.Errorf("reply = %q", got)
	}
}

func TestExtractReplyEmptyStringIsValid(t *testing.T) {
	body := []byte(`{"outputs":[{"outputs":[{"results":{"message":{"text":""}}}]}]}`)
	got, err := ExtractReply(body)
	if err != nil {
		t.Fatalf("ExtractReply: %v", err)
	}
	if got != "" {
		t.Errorf("reply = %q, want empty", got)
	}
}

func TestExtractReplyPreservesFormatting(t *testing.T) {
	body := []byte(`{"outputs":[{"outputs":[{"results":{"message":{"text":"{\"nested\": true}\n  indented"}}}]}]}`)
	got, err := ExtractReply(body)
	if err != nil {
		t.Fatalf("ExtractReply: %v", err)
	}
	want := "{\"nested\": true}\n  indented"
	if got != want {
		t.Errorf("reply = %q, want %q", got, want)
	}
}

func TestExtractReplyMalformed(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", `<html>error</html>`},
		{"empty object", `{}`},
		{"empty outputs", `{"outputs":[]}`},
		{"empty inner outputs", `{"outputs":[{"outputs":[]}]}`},
		{"missing text", `{"outputs":[{"outputs":[{"results":{"message":{}}}]}]}`},
		{"missing message", `{"outputs":[{"outputs":[{"results":{}}]}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ExtractReply([]byte(tc.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, domain.ErrMalformedReply) {
				t.Errorf("error %v is not ErrMalformedReply", err)
			}
		})
	}
}

func TestExtractReplyUsesFirstOutput(t *testing.T) {
	body := []byte(`{"outputs":[
		{"outputs":[{"results":{"message":{"text":"first"}}}]},
		{"outputs":[{"results":{"message":{"text":"second"}}}]}
	]}`)
	got, err := ExtractReply(body)
	if err != nil {
		t.Fatalf("ExtractReply: %v", err)
	}
	if got != "first" {
		t.Errorf("reply = %q, want first output", got)
	}
}
