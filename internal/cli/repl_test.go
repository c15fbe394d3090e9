package cli

import (
	"bufio"
	"context"
	"strings"
	"testing"
)

type fakeExec struct {
	calls []string
}

func (f *fakeExec) Collections(ctx context.Context) error {
	f.calls = append(f.calls, "collections")
	return nil
}
func (f *fakeExec) List(ctx context.Context, collection string) error {
	f.calls = append(f.calls, "list "+collection)
	return nil
}
func (f *fakeExec) Get(ctx context.Context, collection, id string) error {
	f.calls = append(f.calls, "get "+collection+" "+id)
	return nil
}
func (f *fakeExec) Delete(ctx context.Context, collection, id string) error {
	f.calls = append(f.calls, "del "+collection+" "+id)
	return nil
}
func (f *fakeExec) Status(ctx context.Context) error {
	f.calls = append(f.calls, "status")
	return nil
}

func TestRunREPL_DispatchesCommands(t *testing.T) {
	origPrint := printlnFn
	printlnFn = func(...any) (int, error) { return 0, nil }
	t.Cleanup(func() { printlnFn = origPrint })

	input := strings.NewReader(strings.Join([]string{
		"help",
		"collections",
		"list patients",
		"get patients 5",
		"del patients 5",
		"status",
		"foobar",
		"exit",
	}, "\n"))

	exec := &fakeExec{}
	sc := bufio.NewScanner(input)

	runREPL(context.Background(), exec, func() string { return "offline" }, sc)

	want := []string{"collections", "list patients", "get patients 5", "del patients 5", "status"}
	if len(exec.calls) != len(want) {
		t.Fatalf("calls mismatch: got %v, want %v", exec.calls, want)
	}
	for i, c := range exec.calls {
		if c != want[i] {
			t.Fatalf("call %d: got %q, want %q", i, c, want[i])
		}
	}
}

func TestRunREPL_UsageAndQuit(t *testing.T) {
	origPrint := printlnFn
	printlnFn = func(...any) (int, error) { return 0, nil }
	t.Cleanup(func() { printlnFn = origPrint })

	input := strings.NewReader("list\nget patients\ndel\nquit\n")
	exec := &fakeExec{}
	sc := bufio.NewScanner(input)

	runREPL(context.Background(), exec, func() string { return "online" }, sc)

	if len(exec.calls) != 0 {
		t.Fatalf("unexpected calls: %v", exec.calls)
	}
}

func TestRunREPL_StopsOnEOF(t *testing.T) {
	origPrint := printlnFn
	printlnFn = func(...any) (int, error) { return 0, nil }
	t.Cleanup(func() { printlnFn = origPrint })

	input := strings.NewReader("status\n")
	exec := &fakeExec{}
	sc := bufio.NewScanner(input)

	runREPL(context.Background(), exec, func() string { return "offline" }, sc)

	if len(exec.calls) != 1 || exec.calls[0] != "status" {
		t.Fatalf("unexpected calls: %v", exec.calls)
	}
}
