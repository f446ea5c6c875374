package rterrors

import (
	"errors"
	"testing"

	"github.com/wolfhead/meridian/internal/iodesc"
)

func TestStructuredError(t *testing.T) {
	err := New("SendReceive", CodeTimeout, "no response within deadline")

	if err.Op != "SendReceive" {
		t.Errorf("Expected Op=SendReceive, got %s", err.Op)
	}
	if err.Code != CodeTimeout {
		t.Errorf("Expected Code=timeout, got %s", err.Code)
	}

	expected := "meridian: timeout: no response within deadline (op=SendReceive)"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestErrorWithDescriptor(t *testing.T) {
	d := iodesc.Descriptor{Slot: 4, Generation: 2}
	err := NewWithDescriptor("Push", d, CodeBackpressure, "queue full")

	if err.Descriptor != d {
		t.Errorf("Expected Descriptor=%v, got %v", d, err.Descriptor)
	}

	expected := "meridian: backpressure: queue full (op=Push descriptor=4/2)"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestWrapPreservesCategory(t *testing.T) {
	inner := Transport("dial", iodesc.Descriptor{}, "connection refused")
	wrapped := Wrap("reconnect", CodeFatal, inner)

	if wrapped.Code != CodeTransport {
		t.Errorf("Expected wrapped error to keep original Code=transport, got %s", wrapped.Code)
	}
	if !IsCode(wrapped, CodeTransport) {
		t.Error("Expected IsCode(wrapped, CodeTransport) to be true")
	}
}

func TestIsComparesByCodeNotMessage(t *testing.T) {
	a := Protocol("Decode", iodesc.Descriptor{}, "short frame")
	b := Protocol("Encode", iodesc.Descriptor{}, "different message entirely")

	if !errors.Is(a, b) {
		t.Error("Expected two Errors with the same Code to satisfy errors.Is regardless of message")
	}

	c := Transport("dial", iodesc.Descriptor{}, "refused")
	if errors.Is(a, c) {
		t.Error("Expected Errors with different Codes not to satisfy errors.Is")
	}
}

func TestWrapNilReturnsNil(t *testing.T) {
	if Wrap("op", CodeFatal, nil) != nil {
		t.Error("Expected Wrap(op, code, nil) to return nil")
	}
}
