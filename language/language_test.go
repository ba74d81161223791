package language

import "testing"

func TestTargetsExcludeAutoDetect(t *testing.T) {
	if len(Targets) != len(Sources)-1 {
		t.Fatalf("expected %d targets, got %d", len(Sources)-1, len(Targets))
	}
	for _, l := range Targets {
		if l.Code == AutoDetect {
			t.Error("auto detect must not be a target")
		}
	}
	if Targets[0].Code != "vi" {
		t.Errorf("source order should be kept, first target is %q", Targets[0].Code)
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"vi", "Vietnamese"},
		{"zh", "Chinese"},
		{"id", "Indonesian"},
		{"pt", "pt"},
		{"auto", "auto"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := Name(tt.code); got != tt.want {
				t.Errorf("Name(%q) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}

func TestByCode(t *testing.T) {
	if l := ByCode("ja"); l.Name != "Japanese" {
		t.Errorf("ByCode(ja) = %+v", l)
	}
	if l := ByCode("xx"); l.Code != AutoDetect {
		t.Errorf("unknown codes should fall back to auto detect, got %+v", l)
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"vi", "Vietnamese"},
		{"VI", "Vietnamese"},
		{"vietnamese", "Vietnamese"},
		{" English ", "English"},
		{"auto", "auto"},
		{"Klingon", "Klingon"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Resolve(tt.input); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsTarget(t *testing.T) {
	for input, want := range map[string]bool{"ko": true, "Thai": true, "auto": false, "Klingon": false} {
		if got := IsTarget(input); got != want {
			t.Errorf("IsTarget(%q) = %v, want %v", input, got, want)
		}
	}
}
