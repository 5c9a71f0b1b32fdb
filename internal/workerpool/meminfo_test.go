package workerpool

import "testing"

func TestAvailableMemoryMBReadsProcMeminfo(t *testing.T) {
	mb, err := AvailableMemoryMB()
	if err != nil {
		t.Fatalf("AvailableMemoryMB() error = %v", err)
	}
	if mb <= 0 {
		t.Errorf("AvailableMemoryMB() = %d, want a positive value", mb)
	}
}
