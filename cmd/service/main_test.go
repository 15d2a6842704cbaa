package main

import "testing"

func TestMainHasNoUnitTests(t *testing.T) {
	t.Skip("main is wiring only; behavior is covered by the internal package tests, and exercising the entrypoint would need a real provider key and exec")
}
