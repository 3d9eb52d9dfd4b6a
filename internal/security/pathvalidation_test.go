package security

import (
	"path/filepath"
	"testing"
)

func TestValidatePathComponent(t *testing.T) {
	tests := []struct {
		name      string
		component string
		wantError bool
	}{
		{"plain label", "plastic", false},
		{"label with space", "paper cup", false},
		{"reset label token", "None", false},
		{"empty", "", true},
		{"dot", ".", true},
		{"dot dot", "..", true},
		{"forward slash", "glass/../../etc", true},
		{"backslash", `metal\x`, true},
		{"nul byte", "pa\x00per", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathComponent(tt.component)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidatePathComponent(%q) error = %v, wantError %v", tt.component, err, tt.wantError)
			}
		})
	}
}

func TestValidatePathWithinDirectory(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		dir       string
		wantError bool
	}{
		{"direct child", "/archive/plastic_001.jpg", "/archive", false},
		{"nested child", "/archive/glass/wrong_glass_7.jpg", "/archive", false},
		{"relative dirs", "photo/misclassified/glass/x.jpg", "photo/misclassified", false},
		{"parent escape", "/archive/../etc/passwd", "/archive", true},
		{"sibling prefix", "/archive2/file.jpg", "/archive", true},
		{"the directory itself", "/archive", "/archive", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.filePath, tt.dir)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidatePathWithinDirectory(%q, %q) error = %v, wantError %v", tt.filePath, tt.dir, err, tt.wantError)
			}
		})
	}
}

func TestSafeJoin(t *testing.T) {
	got, err := SafeJoin("misclassified", "glass", "wrong_glass_7.jpg")
	if err != nil {
		t.Fatalf("SafeJoin returned error: %v", err)
	}
	if want := filepath.Join("misclassified", "glass", "wrong_glass_7.jpg"); got != want {
		t.Errorf("SafeJoin = %q, want %q", got, want)
	}

	if _, err := SafeJoin("misclassified", "..", "x.jpg"); err == nil {
		t.Error("expected error for traversal component")
	}
	if _, err := SafeJoin("misclassified", "a/b"); err == nil {
		t.Error("expected error for component with separator")
	}
}
