package extract

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kalambet/voicecrm/internal/provider"
)

// mockChatter implements ChatCompleter for testing.
type mockChatter struct {
	response string
	err      error
	noChoice bool
	last     openai.ChatCompletionRequest
}

func (m *mockChatter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.last = req
	if m.err != nil {
		return openai.ChatCompletionResponse{}, m.err
	}
	if m.noChoice {
		return openai.ChatCompletionResponse{}, nil
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.response}},
		},
	}, nil
}

var fixedNow = time.Date(2025, 12, 5, 9, 30, 15, 123456000, time.UTC)

func newTestExtractor(m *mockChatter) *Extractor {
	e := NewExtractor(m, "")
	e.now = func() time.Time { return fixedNow }
	return e
}

func TestExtract_FullRecord(t *testing.T) {
	mock := &mockChatter{response: `{
		"customer": {"full_name":"Amit Verma","phone":"9988776655","address":"45 Park Street","city":"Kolkata","locality":"Salt Lake"},
		"interaction": {"summary":"Discussed the demo and next steps","created_at":"2025-12-01T10:00:00Z"}
	}`}
	e := newTestExtractor(mock)

	got, err := e.Extract(context.Background(), "I spoke with customer Amit Verma today.")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if name, _ := got.Field("customer", "full_name"); !got.HasName() || name != "Amit Verma" {
		t.Errorf("full_name = %q", name)
	}
	if loc, _ := got.Field("customer", "locality"); loc != "Salt Lake" {
		t.Errorf("locality = %q", loc)
	}
	if got.CreatedAt() != "2025-12-01T10:00:00Z" {
		t.Errorf("created_at = %q, want model value", got.CreatedAt())
	}
}

func TestExtract_RequestShape(t *testing.T) {
	mock := &mockChatter{response: `{}`}
	e := newTestExtractor(mock)

	if _, err := e.Extract(context.Background(), "transcript text"); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if mock.last.Model != DefaultModel {
		t.Errorf("Model = %q, want %q", mock.last.Model, DefaultModel)
	}
	if mock.last.ResponseFormat == nil || mock.last.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
		t.Errorf("ResponseFormat = %+v, want json_object", mock.last.ResponseFormat)
	}
	if len(mock.last.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(mock.last.Messages))
	}
	if mock.last.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Errorf("first role = %q, want system", mock.last.Messages[0].Role)
	}
	if mock.last.Messages[1].Content != "transcript text" {
		t.Errorf("user content = %q", mock.last.Messages[1].Content)
	}
}

func TestExtract_FillsCreatedAt(t *testing.T) {
	want := "2025-12-05T09:30:15.123456Z"
	tests := []struct {
		name  string
		reply string
	}{
		{"no interaction", `{"customer":{"full_name":"Ravi Teja"}}`},
		{"null interaction", `{"customer":{},"interaction":null}`},
		{"empty interaction", `{"interaction":{}}`},
		{"empty string interaction", `{"interaction":""}`},
		{"empty created_at", `{"interaction":{"summary":"s","created_at":""}}`},
		{"null created_at", `{"interaction":{"summary":"s","created_at":null}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExtractor(&mockChatter{response: tt.reply})
			got, err := e.Extract(context.Background(), "x")
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if got.CreatedAt() != want {
				t.Errorf("created_at = %q, want %q", got.CreatedAt(), want)
			}
		})
	}
}

func TestExtract_KeepsSummaryWhenFillingCreatedAt(t *testing.T) {
	e := newTestExtractor(&mockChatter{response: `{"interaction":{"summary":"s","next_steps":"call back"}}`})

	got, err := e.Extract(context.Background(), "x")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	b, _ := json.Marshal(got["interaction"])
	const want = `{"created_at":"2025-12-05T09:30:15.123456Z","next_steps":"call back","summary":"s"}`
	if string(b) != want {
		t.Errorf("interaction = %s, want %s", b, want)
	}
}

func TestExtract_NullFields(t *testing.T) {
	e := newTestExtractor(&mockChatter{response: `{"customer":{"full_name":null,"phone":"9000112233"},"interaction":{"summary":null}}`})

	got, err := e.Extract(context.Background(), "x")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.HasName() {
		t.Error("HasName() = true, want false")
	}
	if _, ok := got.Field("customer", "city"); ok {
		t.Error("city reported present, want missing")
	}

	b, err := json.Marshal(got["customer"])
	if err != nil {
		t.Fatal(err)
	}
	const wantJSON = `{"full_name":null,"phone":"9000112233"}`
	if string(b) != wantJSON {
		t.Errorf("marshalled customer = %s, want %s", b, wantJSON)
	}
}

func TestExtract_NumericPhone(t *testing.T) {
	e := newTestExtractor(&mockChatter{response: `{"customer":{"full_name":"Vikram Shah","phone":917923456789}}`})

	got, err := e.Extract(context.Background(), "x")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if phone, _ := got.Field("customer", "phone"); phone != "917923456789" {
		t.Errorf("phone = %q, want 917923456789", phone)
	}
	b, _ := json.Marshal(got["customer"])
	if !strings.Contains(string(b), `"phone":917923456789`) {
		t.Errorf("customer = %s, want the number unchanged", b)
	}
}

// TestExtract_PassesThroughExtraKeys checks that keys and value shapes the
// prompt did not ask for come back untouched.
func TestExtract_PassesThroughExtraKeys(t *testing.T) {
	reply := `{"customer":{"full_name":"A","email":"a@x.io","phone":["1","2"]},` +
		`"interaction":{"summary":"s","created_at":"2025-12-01T10:00:00Z","next_steps":"call"},` +
		`"confidence":0.9}`
	e := newTestExtractor(&mockChatter{response: reply})

	got, err := e.Extract(context.Background(), "x")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	b, err := json.Marshal(got)
	if err != nil {
		t.Fatal(err)
	}
	var gotAny, wantAny any
	json.Unmarshal(b, &gotAny)
	json.Unmarshal([]byte(reply), &wantAny)
	if !reflect.DeepEqual(gotAny, wantAny) {
		t.Errorf("result = %s\nwant     %s", b, reply)
	}
	if phone, _ := got.Field("customer", "phone"); phone != `["1","2"]` {
		t.Errorf("phone = %q, want compact JSON text", phone)
	}
}

func TestExtract_MalformedJSON(t *testing.T) {
	e := newTestExtractor(&mockChatter{response: `not valid json {{{`})

	if _, err := e.Extract(context.Background(), "x"); err == nil {
		t.Fatal("expected error for malformed reply")
	}
}

func TestExtract_WrongShape(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"array", `[1,2]`},
		{"string", `"hello"`},
		{"null", `null`},
		{"interaction string", `{"interaction":"yesterday"}`},
		{"interaction array", `{"interaction":["a"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExtractor(&mockChatter{response: tt.reply})
			_, err := e.Extract(context.Background(), "x")
			if !errors.Is(err, ErrMalformedReply) {
				t.Errorf("error = %v, want ErrMalformedReply", err)
			}
		})
	}
}

func TestExtract_OtherShapesPassThrough(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"customer array", `{"customer":["a"]}`},
		{"nested name", `{"customer":{"full_name":{"first":"A"}}}`},
		{"customer string", `{"customer":"Amit"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExtractor(&mockChatter{response: tt.reply})
			got, err := e.Extract(context.Background(), "x")
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if got["customer"] == nil {
				t.Error("customer dropped")
			}
		})
	}
}

func TestExtract_TrailingData(t *testing.T) {
	e := newTestExtractor(&mockChatter{response: `{"customer":{}} {"x":1}`})

	if _, err := e.Extract(context.Background(), "x"); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestExtract_NoChoices(t *testing.T) {
	e := newTestExtractor(&mockChatter{noChoice: true})

	_, err := e.Extract(context.Background(), "x")
	if !errors.Is(err, ErrMalformedReply) {
		t.Errorf("error = %v, want ErrMalformedReply", err)
	}
}

func TestExtract_MissingKey(t *testing.T) {
	e := newTestExtractor(&mockChatter{err: provider.ErrMissingAPIKey})

	_, err := e.Extract(context.Background(), "x")
	if !errors.Is(err, provider.ErrMissingAPIKey) {
		t.Fatalf("error = %v, want ErrMissingAPIKey", err)
	}
}
