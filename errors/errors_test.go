package errors_test

import (
	"errors"
	"strings"
	"testing"

	liberr "github.com/nabbar/edged/errors"
)

const testCode liberr.CodeError = 9000

func init() {
	liberr.RegisterIdFctMessage(testCode, func(code liberr.CodeError) string {
		switch code {
		case testCode:
			return "test failure"
		default:
			return ""
		}
	})
}

func TestCodeErrorMessage(t *testing.T) {
	e := testCode.Error()
	if !strings.Contains(e.Error(), "test failure") {
		t.Fatalf("expected message in %q", e.Error())
	}
	if e.Code() != testCode {
		t.Fatalf("expected code %d, got %d", testCode, e.Code())
	}
	if e.HasParent() {
		t.Fatal("fresh error must not have a parent")
	}
}

func TestCodeErrorAddParent(t *testing.T) {
	parent := errors.New("disk full")
	e := testCode.Error(parent)

	if !e.HasParent() {
		t.Fatal("expected HasParent true after Error(parent)")
	}
	if !strings.Contains(e.Error(), "disk full") {
		t.Fatalf("expected parent message folded in, got %q", e.Error())
	}
}

func TestCodeErrorAddIgnoresNil(t *testing.T) {
	e := testCode.Error()
	e.Add(nil, nil)

	if e.HasParent() {
		t.Fatal("Add with only nils must not register a parent")
	}
}

func TestUnknownCodeFallsBackToRegisteredBlock(t *testing.T) {
	e := liberr.CodeError(9001).Error()
	if e.Error() == "" {
		t.Fatal("expected a non-empty message even for an unregistered code in a known block")
	}
}
