package participant

import "testing"

func TestCurrent(t *testing.T) {
	tests := []struct {
		port   int
		wantID int
	}{
		{8030, 1},
		{8031, 2},
		{8032, 3},
		{9999, 1},
		{0, 1},
	}
	for _, tt := range tests {
		if got := Current(tt.port); got.ID != tt.wantID {
			t.Errorf("Current(%d).ID = %d, want %d", tt.port, got.ID, tt.wantID)
		}
	}
}

func TestAllIsCopy(t *testing.T) {
	a := All()
	a[0].BackendPort = 1
	if All()[0].BackendPort != 8083 {
		t.Fatal("All() exposed the internal table")
	}
}

func TestBackendPorts(t *testing.T) {
	got := BackendPorts()
	want := []int{8083, 8082, 8081}
	if len(got) != len(want) {
		t.Fatalf("BackendPorts() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("BackendPorts() = %v, want %v", got, want)
		}
	}
}

func TestKey(t *testing.T) {
	d, ok := ByID(2)
	if !ok {
		t.Fatal("participant 2 missing")
	}
	if d.Key() != "participant2" {
		t.Errorf("Key() = %q", d.Key())
	}
}
