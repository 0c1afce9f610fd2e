package qstash

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPublishSendsAuthorizedJSONJob(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotJob ProcessMessageJob

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotJob); err != nil {
			t.Fatalf("decode job: %v", err)
		}
		fmt.Fprint(w, `{"messageId":"msg-1"}`)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		URL:               server.URL,
		Token:             "token-1",
		CurrentSigningKey: "sk-current",
		NextSigningKey:    "sk-next",
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	id, err := client.Publish(context.Background(), ProcessMessageJob{
		ConversationID: "conv-1",
		Message:        "my invoice looks wrong",
		CustomerEmail:  "jo@example.com",
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if id != "msg-1" {
		t.Fatalf("Publish() = %q, want msg-1", id)
	}
	if gotAuth != "Bearer token-1" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
	if gotJob.ConversationID != "conv-1" || gotJob.Message != "my invoice looks wrong" {
		t.Fatalf("unexpected job payload: %+v", gotJob)
	}
}

func TestPublishRejectsIncompleteJob(t *testing.T) {
	t.Parallel()

	client := MustNew(Config{
		URL:               "https://queue.example.com",
		Token:             "t",
		CurrentSigningKey: "a",
		NextSigningKey:    "b",
	})

	if _, err := client.Publish(context.Background(), ProcessMessageJob{Message: "hi"}); err == nil {
		t.Fatal("expected error for missing conversation id")
	}
	if _, err := client.Publish(context.Background(), ProcessMessageJob{ConversationID: "c1"}); err == nil {
		t.Fatal("expected error for missing message")
	}
}

func TestStatusReportsTaskState(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/msg-1" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"messageId":"msg-1","state":"success","result":"turn completed"}`)
	}))
	t.Cleanup(server.Close)

	client := MustNew(Config{
		URL:               server.URL,
		Token:             "t",
		CurrentSigningKey: "a",
		NextSigningKey:    "b",
	})

	status, err := client.Status(context.Background(), "msg-1")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.State != TaskSuccess {
		t.Fatalf("state = %s, want success", status.State)
	}
	if status.Result != "turn completed" {
		t.Fatalf("result = %q", status.Result)
	}
}

func TestStatusDefaultsUnknownStateToPending(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"state":"enqueued"}`)
	}))
	t.Cleanup(server.Close)

	client := MustNew(Config{
		URL:               server.URL,
		Token:             "t",
		CurrentSigningKey: "a",
		NextSigningKey:    "b",
	})

	status, err := client.Status(context.Background(), "msg-2")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.State != TaskPending {
		t.Fatalf("state = %s, want pending", status.State)
	}
	if status.MessageID != "msg-2" {
		t.Fatalf("message id = %q", status.MessageID)
	}
}

func TestPublishSurfacesUpstreamFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "queue full", http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	client := MustNew(Config{
		URL:               server.URL,
		Token:             "t",
		CurrentSigningKey: "a",
		NextSigningKey:    "b",
	})

	if _, err := client.Publish(context.Background(), ProcessMessageJob{
		ConversationID: "c1",
		Message:        "hello",
	}); err == nil {
		t.Fatal("expected error for 503 response")
	}
}
