package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestCall(t *testing.T) {
	ctx := context.Background()

	t.Run("text", func(t *testing.T) {
		g := Func(func(ctx context.Context, req Request) (Response, error) {
			return Response{Text: "hi " + req.Instructions}, nil
		})
		got, err := Call(ctx, g, Request{Instructions: "there"})
		if err != nil || got != "hi there" {
			t.Errorf("Call = %q, %v", got, err)
		}
	})

	t.Run("error field", func(t *testing.T) {
		g := Func(func(ctx context.Context, req Request) (Response, error) {
			return Response{Error: "quota exceeded"}, nil
		})
		if _, err := Call(ctx, g, Request{}); !errors.Is(err, ErrGateway) {
			t.Errorf("got %v, want ErrGateway", err)
		}
	})

	t.Run("transport error", func(t *testing.T) {
		g := Func(func(ctx context.Context, req Request) (Response, error) {
			return Response{}, errors.New("connection refused")
		})
		if _, err := Call(ctx, g, Request{}); !errors.Is(err, ErrGateway) {
			t.Errorf("got %v, want ErrGateway", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		g := Func(func(ctx context.Context, req Request) (Response, error) {
			return Response{}, ctx.Err()
		})
		if _, err := Call(cctx, g, Request{}); !errors.Is(err, context.Canceled) {
			t.Errorf("got %v, want context.Canceled", err)
		}
	})
}

func TestOperation(t *testing.T) {
	if got := Operation(context.Background()); got != "generate" {
		t.Errorf("default = %q", got)
	}
	ctx := WithOperation(context.Background(), "classify.assign")
	if got := Operation(ctx); got != "classify.assign" {
		t.Errorf("got %q", got)
	}
}

func TestTranscript(t *testing.T) {
	got := Transcript(Request{
		Instructions: "Be brief.",
		PriorTurns: []Turn{
			{Role: RoleUser, Text: "Hi"},
			{Role: RoleModel, Text: "Hello"},
		},
	})
	want := "Be brief.\n\nUser: Hi\n\nAssistant: Hello"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestOllamaGenerate(t *testing.T) {
	var gotBody struct {
		Model    string          `json:"model"`
		Messages []ollamaMessage `json:"messages"`
		Stream   bool            `json:"stream"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"message":{"role":"assistant","content":"  answer \n"}}`))
	}))
	defer srv.Close()

	o := &Ollama{URL: srv.URL, Model: "llama3"}
	resp, err := o.Generate(context.Background(), Request{
		Instructions: "sys",
		PriorTurns:   []Turn{{Role: RoleUser, Text: "q"}, {Role: RoleModel, Text: "a"}, {Role: RoleUser, Text: "q2"}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text != "answer" {
		t.Errorf("Text = %q", resp.Text)
	}
	if gotBody.Model != "llama3" || gotBody.Stream {
		t.Errorf("body = %+v", gotBody)
	}
	roles := []string{"system", "user", "assistant", "user"}
	if len(gotBody.Messages) != len(roles) {
		t.Fatalf("messages = %+v", gotBody.Messages)
	}
	for i, r := range roles {
		if gotBody.Messages[i].Role != r {
			t.Errorf("message %d role = %q, want %q", i, gotBody.Messages[i].Role, r)
		}
	}
}

func TestOllamaInstructionsOnlyBecomeUserMessage(t *testing.T) {
	var roles []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []ollamaMessage `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		for _, m := range body.Messages {
			roles = append(roles, m.Role)
		}
		w.Write([]byte(`{"message":{"content":"ok"}}`))
	}))
	defer srv.Close()

	o := &Ollama{URL: srv.URL, Model: "m"}
	if _, err := o.Generate(context.Background(), Request{Instructions: "classify"}); err != nil {
		t.Fatal(err)
	}
	if len(roles) != 1 || roles[0] != "user" {
		t.Errorf("roles = %v", roles)
	}
}

func TestOllamaErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model 'x' not found"}`))
	}))
	defer srv.Close()

	o := &Ollama{URL: srv.URL, Model: "x"}
	_, err := Call(context.Background(), o, Request{Instructions: "hi"})
	if !errors.Is(err, ErrGateway) {
		t.Errorf("got %v, want ErrGateway", err)
	}
}

func TestOllamaEnsureModel(t *testing.T) {
	tests := []struct {
		name      string
		show      int
		pull      int
		wantPaths []string
		wantErr   bool
	}{
		{"present", http.StatusOK, 0, []string{"/api/show"}, false},
		{"pulled", http.StatusNotFound, http.StatusOK, []string{"/api/show", "/api/pull"}, false},
		{"pull fails", http.StatusNotFound, http.StatusInternalServerError, []string{"/api/show", "/api/pull"}, true},
		{"show fails", http.StatusInternalServerError, 0, []string{"/api/show"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mu sync.Mutex
			var paths []string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				paths = append(paths, r.URL.Path)
				mu.Unlock()
				var body map[string]any
				json.NewDecoder(r.Body).Decode(&body)
				if body["name"] != "llama3" {
					t.Errorf("name = %v", body["name"])
				}
				switch r.URL.Path {
				case "/api/show":
					w.WriteHeader(tt.show)
				case "/api/pull":
					if body["stream"] != false {
						t.Errorf("stream = %v, want false", body["stream"])
					}
					w.WriteHeader(tt.pull)
				}
			}))
			defer srv.Close()

			o := &Ollama{URL: srv.URL + "/", Model: "llama3"}
			err := o.EnsureModel(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("EnsureModel: %v, wantErr %v", err, tt.wantErr)
			}
			mu.Lock()
			defer mu.Unlock()
			if len(paths) != len(tt.wantPaths) {
				t.Fatalf("paths = %v, want %v", paths, tt.wantPaths)
			}
			for i := range paths {
				if paths[i] != tt.wantPaths[i] {
					t.Errorf("paths[%d] = %s, want %s", i, paths[i], tt.wantPaths[i])
				}
			}
		})
	}
}

func TestOpenAIGenerate(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model string `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		gotModel = body.Model
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"from openai"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	g := NewOpenAI("test-key", srv.URL, "gpt-test")
	resp, err := g.Generate(context.Background(), Request{Instructions: "hi"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text != "from openai" {
		t.Errorf("Text = %q", resp.Text)
	}
	if gotModel != "gpt-test" {
		t.Errorf("model = %q", gotModel)
	}
}

func TestLimitedThrottles(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	inner := Func(func(ctx context.Context, req Request) (Response, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return Response{Text: "ok"}, nil
	})

	l := NewLimited(inner, 20, 1)
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := l.Generate(context.Background(), Request{}); err != nil {
			t.Fatal(err)
		}
	}
	// Burst 1 at 20/s: the 2nd and 3rd calls wait ~50ms each.
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("3 calls took %v, expected throttling", elapsed)
	}
	if calls != 3 {
		t.Errorf("calls = %d", calls)
	}
}

func TestLimitedHonoursContext(t *testing.T) {
	inner := Func(func(ctx context.Context, req Request) (Response, error) {
		return Response{Text: "ok"}, nil
	})
	l := NewLimited(inner, 0.001, 1)
	l.Generate(context.Background(), Request{}) // drain the bucket

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Generate(ctx, Request{}); err == nil {
		t.Error("expected rate limit wait to fail")
	}
}

type recorded struct {
	model, op, outcome string
}

type fakeRecorder struct {
	mu   sync.Mutex
	rows []recorded
}

func (f *fakeRecorder) LogGatewayCall(model, operation, outcome string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, recorded{model, operation, outcome})
}

func TestObservedRecords(t *testing.T) {
	rec := &fakeRecorder{}
	fail := false
	inner := Func(func(ctx context.Context, req Request) (Response, error) {
		if fail {
			return Response{Error: "boom"}, nil
		}
		return Response{Text: "ok"}, nil
	})
	g := NewObserved(inner, "m1", rec)

	ctx := WithOperation(context.Background(), "chat")
	g.Generate(ctx, Request{})
	fail = true
	g.Generate(ctx, Request{})

	want := []recorded{{"m1", "chat", "ok"}, {"m1", "chat", "error"}}
	if len(rec.rows) != 2 || rec.rows[0] != want[0] || rec.rows[1] != want[1] {
		t.Errorf("rows = %+v, want %+v", rec.rows, want)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("empty model: expected error")
	}
	if _, err := New(Config{Model: "openai:gpt-4o"}); err == nil {
		t.Error("openai without key: expected error")
	}
	for _, m := range []string{"claude:haiku", "llama3", "openai:gpt-4o"} {
		if _, err := New(Config{Model: m, APIKey: "k", URL: "http://localhost:11434"}); err != nil {
			t.Errorf("New(%s): %v", m, err)
		}
	}
}
