package xerrors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

var errSentinel = errors.New("sentinel")

func TestWrap(t *testing.T) {
	err := Wrap(errSentinel, "doing the thing")
	if err.Error() != "doing the thing: sentinel" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !errors.Is(err, errSentinel) {
		t.Fatal("Wrap broke errors.Is")
	}
	if Wrap(nil, "whatever") != nil {
		t.Fatal("Wrap(nil) != nil")
	}
}

func TestWrapf(t *testing.T) {
	err := Wrapf(errSentinel, "processing %s attempt %d", "contact", 3)
	if err.Error() != "processing contact attempt 3: sentinel" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !errors.Is(err, errSentinel) {
		t.Fatal("Wrapf broke errors.Is")
	}
	if Wrapf(nil, "x %d", 1) != nil {
		t.Fatal("Wrapf(nil) != nil")
	}
}

func TestWrap_PreservesAs(t *testing.T) {
	type myErr struct{ error }
	inner := &myErr{errors.New("inner")}
	err := Wrap(Wrap(inner, "mid"), "outer")

	var target *myErr
	if !errors.As(err, &target) || target != inner {
		t.Fatal("errors.As through nested wraps failed")
	}
}

func TestWrap_RecordsCallerPC(t *testing.T) {
	err := Wrap(errSentinel, "here")
	var w *wrap
	if !errors.As(err, &w) {
		t.Fatalf("unexpected type %T", err)
	}
	if w.PC() == 0 {
		t.Fatal("no caller PC recorded")
	}
}

func TestNew_CapturesStack(t *testing.T) {
	err := New("fresh")
	if err.Error() != "fresh" {
		t.Fatalf("Error() = %q", err.Error())
	}
	var ws *withStack
	if !errors.As(err, &ws) {
		t.Fatalf("unexpected type %T", err)
	}
	if len(ws.StackPCs()) == 0 {
		t.Fatal("no stack captured")
	}
}

func TestNewf_SupportsWrapVerb(t *testing.T) {
	err := Newf("loading %s: %w", "contact", errSentinel)
	if !errors.Is(err, errSentinel) {
		t.Fatal("%w through Newf broke errors.Is")
	}
	if !strings.Contains(err.Error(), "loading contact") {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestWithStack(t *testing.T) {
	if WithStack(nil) != nil {
		t.Fatal("WithStack(nil) != nil")
	}
	err := WithStack(errSentinel)
	if err.Error() != "sentinel" {
		t.Fatalf("WithStack changed the message: %q", err.Error())
	}
	if !errors.Is(err, errSentinel) {
		t.Fatal("WithStack broke errors.Is")
	}
	var ws *withStack
	if !errors.As(err, &ws) || len(ws.StackPCs()) == 0 {
		t.Fatal("no stack captured")
	}
}

func TestWrap_ChainRendersEveryLayer(t *testing.T) {
	err := Wrap(Wrapf(fmt.Errorf("io: %w", errSentinel), "read %s", "contact.json"), "load content")
	want := "load content: read contact.json: io: sentinel"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}
