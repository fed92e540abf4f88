package executor

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseLanguage(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"python", false},
		{"javascript", false},
		{"go", false},
		{"java", false},
		{"cpp", false},
		{"ruby", true},
		{"", true},
		{"Python", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := ParseLanguage(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLanguage(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestDefaultLanguageConfigs_Complete(t *testing.T) {
	configs := DefaultLanguageConfigs()

	for _, lang := range SupportedLanguages() {
		cfg, ok := configs[lang]
		if !ok {
			t.Errorf("no default config for %s", lang)
			continue
		}
		if cfg.Image == "" {
			t.Errorf("%s: empty image", lang)
		}
		if cfg.SourceFile == "" {
			t.Errorf("%s: empty source file", lang)
		}
		if len(cfg.RunCmd) == 0 {
			t.Errorf("%s: empty run command", lang)
		}
	}

	// Compiled languages need a compile step
	for _, lang := range []Language{LanguageGo, LanguageJava, LanguageCPP} {
		if len(configs[lang].CompileCmd) == 0 {
			t.Errorf("%s: expected a compile command", lang)
		}
	}
}

func TestLoadLanguageConfigs_Overrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "languages.yaml")
	content := `languages:
  python:
    image: python:3.13-alpine
  cpp:
    compile_cmd: ["g++", "-O3", "-o", "main", "main.cpp"]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	configs, err := LoadLanguageConfigs(path)
	if err != nil {
		t.Fatalf("LoadLanguageConfigs() error = %v", err)
	}

	if got := configs[LanguagePython].Image; got != "python:3.13-alpine" {
		t.Errorf("python image = %q, want override", got)
	}
	// Untouched fields keep their defaults
	if got := configs[LanguagePython].SourceFile; got != "main.py" {
		t.Errorf("python source file = %q, want main.py", got)
	}
	if got := configs[LanguageCPP].CompileCmd[1]; got != "-O3" {
		t.Errorf("cpp compile cmd = %v, want -O3 flag", configs[LanguageCPP].CompileCmd)
	}
}

func TestLoadLanguageConfigs_UnknownLanguage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "languages.yaml")
	if err := os.WriteFile(path, []byte("languages:\n  fortran:\n    image: gcc:14\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadLanguageConfigs(path); err == nil {
		t.Error("expected error for unknown language key")
	}
}

func TestLoadLanguageConfigs_EmptyPath(t *testing.T) {
	configs, err := LoadLanguageConfigs("")
	if err != nil {
		t.Fatalf("LoadLanguageConfigs(\"\") error = %v", err)
	}
	if len(configs) != len(SupportedLanguages()) {
		t.Errorf("got %d configs, want %d", len(configs), len(SupportedLanguages()))
	}
}
