package errcode

import (
	"errors"
	"testing"
)

func TestOf(t *testing.T) {
	if Of(nil) != OK {
		t.Fatal("nil should map to ok")
	}
	if Of(SensorRead) != SensorRead {
		t.Fatal("bare code not preserved")
	}
	cause := errors.New("nack")
	err := Wrap(SensorRead, "bh1750.collect", cause)
	if Of(err) != SensorRead {
		t.Fatalf("wrapped code = %q", Of(err))
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause not reachable through Unwrap")
	}
	if got := err.Error(); got != "bh1750.collect: sensor_read: nack" {
		t.Fatalf("Error() = %q", got)
	}
	if Of(errors.New("x")) != Error {
		t.Fatal("foreign errors should map to generic code")
	}
}
