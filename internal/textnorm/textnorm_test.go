package textnorm

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Universität Düsseldorf", "universitat dusseldorf"},
		{"universitat dusseldorf", "universitat dusseldorf"},
		{"Technische Universität München", "technische universitat munchen"},
		{"Hochschule für Technik, Straßburg", "hochschule fur technik strassburg"},
		{"  École   Polytechnique — Paris!! ", "ecole polytechnique paris"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFoldKeepsPunctuation(t *testing.T) {
	if got, want := Fold("Leistungsübersicht: WiSe 2021/22"), "leistungsubersicht: wise 2021/22"; got != want {
		t.Fatalf("Fold() = %q, want %q", got, want)
	}
}
