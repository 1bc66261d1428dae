package log

import "testing"

func TestRecoverPanic(t *testing.T) {
	Setup("", false)
	if !Initialized() {
		t.Fatal("Setup did not mark the logger initialized")
	}

	cleaned := false
	func() {
		defer RecoverPanic("test", func() { cleaned = true })
		panic("boom")
	}()
	if !cleaned {
		t.Fatal("cleanup was not called after panic")
	}
}
