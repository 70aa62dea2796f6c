package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/google/go-cmp/cmp"
	"github.com/ormasoftchile/cukewire/pkg/catalog"
	"github.com/ormasoftchile/cukewire/pkg/coerce"
	"github.com/ormasoftchile/cukewire/pkg/step"
	"github.com/ormasoftchile/cukewire/pkg/wire"
)

// fixture records what the step callables received.
type fixture struct {
	called   bool
	received []any
}

func (f *fixture) Method()            { f.called = true }
func (f *fixture) ThrowsError() error { return errors.New("inner test Exception") }
func (f *fixture) Panics()            { panic("step blew up") }

func (f *fixture) OneStringParameter(s string) { f.received = []any{s} }

func (f *fixture) MultipleStringParameters(first, second string) {
	f.received = []any{first, second}
}

func (f *fixture) OneIntParameter(n int)        { f.received = []any{n} }
func (f *fixture) OneDoubleParameter(d float64) { f.received = []any{d} }

func (f *fixture) IntDoubleAndString(i int, d float64, s string) {
	f.received = []any{i, d, s}
}

type steps struct {
	method, throws, panics                   *step.Definition
	oneString, twoStrings, oneInt, oneDouble *step.Definition
	mixed                                    *step.Definition
	all                                      []*step.Definition
}

func newSteps(t *testing.T, f *fixture) *steps {
	t.Helper()
	mk := func(pattern string, fn any) *step.Definition {
		d, err := step.FromFunc(pattern, fn)
		if err != nil {
			t.Fatalf("FromFunc(%q): %v", pattern, err)
		}
		return d
	}
	s := &steps{
		method:     mk("", f.Method),
		throws:     mk("^it throws$", f.ThrowsError),
		panics:     mk("^it panics$", f.Panics),
		oneString:  mk(`^The regex group '(.*)' should be captured$`, f.OneStringParameter),
		twoStrings: mk(`^The regex groups '(.*)' and '(.*)' should be captured$`, f.MultipleStringParameters),
		oneInt:     mk(`^The number ([+-]?\d+) is an int$`, f.OneIntParameter),
		oneDouble:  mk(`^The number ([+-]?\d+\.\d*) is a double$`, f.OneDoubleParameter),
		mixed:      mk(`^The values ([+-]?\d+), ([+-]?\d+\.\d*), and '(.*)' are an int, a double and a string$`, f.IntDoubleAndString),
	}
	s.all = []*step.Definition{s.method, s.throws, s.panics, s.oneString, s.twoStrings, s.oneInt, s.oneDouble, s.mixed}
	return s
}

func newProcessor(t *testing.T) (*Processor, *steps, *fixture) {
	t.Helper()
	f := &fixture{}
	s := newSteps(t, f)
	p, err := NewFromLoader(context.Background(), catalog.Static(s.all...))
	if err != nil {
		t.Fatalf("NewFromLoader: %v", err)
	}
	return p, s, f
}

func invokeRequest(id string, args ...string) string {
	payload := map[string]any{"id": id}
	if len(args) > 0 {
		payload["args"] = args
	}
	data, _ := json.Marshal(payload)
	return "invoke:" + string(data)
}

type failBody struct {
	Message   string  `json:"message"`
	Exception *string `json:"exception"`
	Backtrace *string `json:"backtrace"`
}

func decodeFail(t *testing.T, response string) failBody {
	t.Helper()
	if !strings.HasPrefix(response, "FAIL:") {
		t.Fatalf("response %q does not start with FAIL:", response)
	}
	var body failBody
	if err := json.Unmarshal([]byte(strings.TrimPrefix(response, "FAIL:")), &body); err != nil {
		t.Fatalf("fail payload is not a JSON object: %v (%s)", err, response)
	}
	return body
}

func assertFail(t *testing.T, response, message string) {
	t.Helper()
	body := decodeFail(t, response)
	if body.Message != message {
		t.Errorf("message = %q, want %q", body.Message, message)
	}
	if body.Exception != nil || body.Backtrace != nil {
		t.Errorf("unexpected exception fields in %s", response)
	}
}

func assertOK(t *testing.T, response string) {
	t.Helper()
	if response != "OK" {
		t.Fatalf("response = %s, want OK", response)
	}
}

func TestListStepDefinitionsReturnsFormattedList(t *testing.T) {
	p, s, _ := newProcessor(t)

	got := p.Process("list_step_definitions")
	if want := wire.Format(s.all); got != want {
		t.Errorf("list response =\n%s\nwant\n%s", got, want)
	}

	var entries []struct {
		Pattern string `json:"pattern"`
		ID      string `json:"id"`
	}
	if err := json.Unmarshal([]byte(got), &entries); err != nil {
		t.Fatalf("list response is not JSON: %v", err)
	}
	if len(entries) != len(s.all) {
		t.Fatalf("got %d entries, want %d", len(entries), len(s.all))
	}
	for i, e := range entries {
		if e.ID != s.all[i].ID() || e.Pattern != s.all[i].Pattern() {
			t.Errorf("entry %d = %+v, want %s", i, e, s.all[i])
		}
	}

	if again := p.Process("list_step_definitions"); again != got {
		t.Error("list response is not idempotent")
	}
}

func TestInvokeWithValidIDCallsStep(t *testing.T) {
	p, s, f := newProcessor(t)

	assertOK(t, p.Process(invokeRequest(s.method.ID())))
	if !f.called {
		t.Error("step was not called")
	}
}

func TestInvokeAcceptsSpacedPayload(t *testing.T) {
	p, s, f := newProcessor(t)

	assertOK(t, p.Process(`invoke:{ "id" : "`+s.method.ID()+`" }`))
	if !f.called {
		t.Error("step was not called")
	}
}

func TestInvokeAcceptsSingleQuotedPayload(t *testing.T) {
	p, s, _ := newProcessor(t)

	assertOK(t, p.Process(`invoke:{ 'id' : '`+s.oneInt.ID()+`', 'args' : ['42'] }`))
	assertFail(t, p.Process(`invoke:{ 'id' : '`+s.oneInt.ID()+`', 'args' : ['x'] }`),
		`cannot convert argument 0 "x" to int: strconv.Atoi: parsing "x": invalid syntax`)
}

func TestInvokeFailures(t *testing.T) {
	p, s, _ := newProcessor(t)

	tests := []struct {
		name    string
		request string
		kind    wire.Kind
		message string
	}{
		{"missing id", "invoke:{ }", wire.MissingField, "Missing 'id' in request"},
		{"malformed json", "invoke:{a}", wire.MalformedJSON,
			"Invalid json in request 'invoke:{a}': invalid character 'a' looking for beginning of object key string"},
		{"unknown id", invokeRequest("invalid_id"), wire.UnknownStep, "Could not find step with id 'invalid_id'"},
		{"unrecognized request", "invalid_request", wire.UnrecognizedRequest, "Invalid request 'invalid_request'"},
		{"unknown id before args shape", `invoke:{"id":"nope","args":"a"}`, wire.UnknownStep, "Could not find step with id 'nope'"},
		{"args not array", `invoke:{"id":"` + s.oneString.ID() + `","args":"a"}`, wire.MalformedJSON,
			`Invalid json in request 'invoke:{"id":"` + s.oneString.ID() + `","args":"a"}': 'args' must be an array`},
		{"no args for one param", invokeRequest(s.oneString.ID()), wire.ArityMismatch, "Expected 1 argument(s); got 0"},
		{"args for no params", invokeRequest(s.method.ID(), "first"), wire.ArityMismatch, "Expected 0 argument(s); got 1"},
		{"too many args", invokeRequest(s.oneString.ID(), "first", "second"), wire.ArityMismatch, "Expected 1 argument(s); got 2"},
		{"non-numeric int", invokeRequest(s.oneInt.ID(), "forty-two"), wire.CoercionError,
			`cannot convert argument 0 "forty-two" to int: strconv.Atoi: parsing "forty-two": invalid syntax`},
		{"non-numeric double", invokeRequest(s.oneDouble.ID(), "pi"), wire.CoercionError,
			`cannot convert argument 0 "pi" to float: strconv.ParseFloat: parsing "pi": invalid syntax`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := p.Handle(tt.request)
			f := resp.Failure()
			if f == nil {
				t.Fatalf("expected failure, got %s", resp)
			}
			if !errors.Is(f, tt.kind) {
				t.Errorf("kind = %v, want %v", f.Kind, tt.kind)
			}
			assertFail(t, resp.String(), tt.message)
		})
	}
}

func TestUnknownIDIsCheckedBeforeArity(t *testing.T) {
	p, _, _ := newProcessor(t)
	assertFail(t, p.Process(invokeRequest("nope", "a", "b")), "Could not find step with id 'nope'")
}

func TestCoercionFailureDoesNotInvoke(t *testing.T) {
	p, s, f := newProcessor(t)

	body := decodeFail(t, p.Process(invokeRequest(s.mixed.ID(), "42", "oops", "foo")))
	if !strings.Contains(body.Message, `"oops"`) {
		t.Errorf("message %q does not mention the bad value", body.Message)
	}
	if f.received != nil {
		t.Errorf("step was invoked with %v", f.received)
	}
}

func TestInvokeStepThatReturnsError(t *testing.T) {
	p, s, _ := newProcessor(t)

	body := decodeFail(t, p.Process(invokeRequest(s.throws.ID())))
	if body.Message != "inner test Exception" {
		t.Errorf("message = %q", body.Message)
	}
	if body.Exception == nil || *body.Exception != "*errors.errorString" {
		t.Errorf("exception = %v, want *errors.errorString", body.Exception)
	}
	if body.Backtrace == nil || strings.TrimSpace(*body.Backtrace) == "" {
		t.Error("backtrace is missing or empty")
	}
}

func TestInvokeStepThatPanics(t *testing.T) {
	p, s, _ := newProcessor(t)

	resp := p.Handle(invokeRequest(s.panics.ID()))
	if !errors.Is(resp.Failure(), wire.InvocationError) {
		t.Fatalf("response = %s, want invocation failure", resp)
	}
	body := decodeFail(t, resp.String())
	if body.Message != "step blew up" {
		t.Errorf("message = %q", body.Message)
	}
	if body.Exception == nil || *body.Exception != step.PanicCategory {
		t.Errorf("exception = %v, want %s", body.Exception, step.PanicCategory)
	}
	if body.Backtrace == nil || !strings.Contains(*body.Backtrace, "Panics") {
		t.Errorf("backtrace does not point at the panicking step: %v", body.Backtrace)
	}
}

func TestInvokePassesArguments(t *testing.T) {
	tests := []struct {
		name string
		pick func(*steps) *step.Definition
		args []string
		want []any
	}{
		{"one string", func(s *steps) *step.Definition { return s.oneString }, []string{"first"}, []any{"first"}},
		{"two strings", func(s *steps) *step.Definition { return s.twoStrings }, []string{"first", "second"}, []any{"first", "second"}},
		{"int", func(s *steps) *step.Definition { return s.oneInt }, []string{"42"}, []any{42}},
		{"double", func(s *steps) *step.Definition { return s.oneDouble }, []string{"3.14"}, []any{3.14}},
		{"int, double and string", func(s *steps) *step.Definition { return s.mixed }, []string{"42", "3.14", "foo"}, []any{42, 3.14, "foo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, s, f := newProcessor(t)
			assertOK(t, p.Process(invokeRequest(tt.pick(s).ID(), tt.args...)))
			if diff := cmp.Diff(tt.want, f.received); diff != "" {
				t.Errorf("received mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInvokeAcceptsNumericJSONArguments(t *testing.T) {
	p, s, f := newProcessor(t)

	assertOK(t, p.Process(`invoke:{"id":"`+s.mixed.ID()+`","args":[42, 3.14, "foo"]}`))
	if diff := cmp.Diff([]any{42, 3.14, "foo"}, f.received); diff != "" {
		t.Errorf("received mismatch (-want +got):\n%s", diff)
	}
}

func TestWithCoercerAddsTypes(t *testing.T) {
	var got []any
	yes := step.Must(step.New("flag", `^flag (true|false)$`, []step.ParamType{"bool"}, func(args []any) error {
		got = args
		return nil
	}))
	cat, err := catalog.New(yes)
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}

	plain := New(cat)
	if resp := plain.Handle(invokeRequest(yes.ID(), "true")); !errors.Is(resp.Failure(), wire.CoercionError) {
		t.Errorf("default coercer: response = %s, want coercion failure", resp)
	}

	extended := New(cat, WithCoercer(coerce.New(coerce.WithType("bool", func(raw string) (any, error) {
		return raw == "true", nil
	}))))
	assertOK(t, extended.Process(invokeRequest(yes.ID(), "true")))
	if diff := cmp.Diff([]any{true}, got); diff != "" {
		t.Errorf("received mismatch (-want +got):\n%s", diff)
	}
}

func TestNewFromLoaderPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewFromLoader(context.Background(), catalog.LoaderFunc(func(context.Context) ([]*step.Definition, error) {
		return nil, boom
	}))
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
}

func TestLoggerReceivesFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})

	cat, err := catalog.New()
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	p := New(cat, WithLogger(logger))
	p.Process("bogus")

	if !strings.Contains(buf.String(), "request failed") || !strings.Contains(buf.String(), "UnrecognizedRequest") {
		t.Errorf("log output missing failure entry:\n%s", buf.String())
	}
}

func TestProcessConcurrently(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[int]bool)
	record := step.Must(step.New("record", `^record (\d+)$`, []step.ParamType{step.Int}, func(args []any) error {
		mu.Lock()
		defer mu.Unlock()
		seen[args[0].(int)] = true
		return nil
	}))
	cat, err := catalog.New(record)
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	p := New(cat)

	const n = 64
	var wg sync.WaitGroup
	errs := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if resp := p.Process(invokeRequest(record.ID(), fmt.Sprint(i))); resp != "OK" {
				errs <- resp
			}
			p.Process("list_step_definitions")
		}(i)
	}
	wg.Wait()
	close(errs)

	for resp := range errs {
		t.Errorf("unexpected response: %s", resp)
	}
	if len(seen) != n {
		t.Errorf("recorded %d invocations, want %d", len(seen), n)
	}
}
