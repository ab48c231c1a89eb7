package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
)

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestAPISignUpAndSignIn(t *testing.T) {
	env := newTestEnv(t)

	resp := postJSON(t, env.server.URL+"/auth/signup", map[string]string{
		"email": "learner@example.com", "password": "secret1", "username": "learner",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	resp = postJSON(t, env.server.URL+"/auth/signup", map[string]string{
		"email": "other@example.com", "password": "secret1", "username": "learner",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for taken username, got %d", resp.StatusCode)
	}

	resp = postJSON(t, env.server.URL+"/auth/signup", map[string]string{
		"email": "third@example.com", "password": "secret1", "username": "no",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid username, got %d", resp.StatusCode)
	}
	var msg errorPayload
	decodeBody(t, resp, &msg)
	if msg.Message != "Username must be at least 3 characters" {
		t.Fatalf("unexpected message %q", msg.Message)
	}

	resp = postJSON(t, env.server.URL+"/auth/signin", map[string]string{
		"email": "learner@example.com", "password": "wrong-one",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	resp = postJSON(t, env.server.URL+"/auth/signin", map[string]string{
		"email": "learner@example.com", "password": "secret1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var session struct {
		Token string `json:"token"`
	}
	decodeBody(t, resp, &session)
	if session.Token == "" {
		t.Fatalf("expected a token")
	}
}

func TestAPIUsernameAvailability(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.auth.SignUp(context.Background(), "a@example.com", "secret1", "taken_name"); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	for candidate, want := range map[string]bool{"taken_name": false, "free_name": true, "x": false} {
		resp, err := http.Get(env.server.URL + "/auth/username?candidate=" + candidate)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		var body usernameResponse
		decodeBody(t, resp, &body)
		resp.Body.Close()
		if body.Available != want {
			t.Fatalf("candidate %q: expected available=%v", candidate, want)
		}
	}
}

func TestAPILeaderboardIncludesSelf(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, err := env.auth.SignUp(ctx, "a@example.com", "secret1", "alice")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	_, _ = env.remote.UpsertModuleProgress(ctx, session.Identity.LearnerID, "phishing", 80)
	_, _ = env.remote.UpsertModuleProgress(ctx, "u2", "phishing", 100)

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/leaderboard", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get leaderboard: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var board struct {
		Entries []struct {
			LearnerID   string `json:"learnerId"`
			DisplayName string `json:"displayName"`
			Rank        int    `json:"rank"`
		} `json:"entries"`
	}
	decodeBody(t, resp, &board)
	if len(board.Entries) != 2 || board.Entries[0].LearnerID != "u2" || board.Entries[1].DisplayName != "alice" {
		t.Fatalf("unexpected board %+v", board.Entries)
	}
	if board.Entries[1].Rank != 2 {
		t.Fatalf("expected alice ranked 2, got %d", board.Entries[1].Rank)
	}

	req.Header.Set("Authorization", "Bearer not-a-token")
	bad, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get leaderboard: %v", err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", bad.StatusCode)
	}
}
