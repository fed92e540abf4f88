package executor

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Language represents a supported programming language
type Language string

const (
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageGo         Language = "go"
	LanguageJava       Language = "java"
	LanguageCPP        Language = "cpp"
)

// IsValid checks if the language is supported
func (l Language) IsValid() bool {
	switch l {
	case LanguagePython, LanguageJavaScript, LanguageGo, LanguageJava, LanguageCPP:
		return true
	default:
		return false
	}
}

// String returns the language as a string
func (l Language) String() string {
	return string(l)
}

// ParseLanguage converts a string to a Language
func ParseLanguage(s string) (Language, error) {
	lang := Language(s)
	if !lang.IsValid() {
		return "", fmt.Errorf("unsupported language: %s", s)
	}
	return lang, nil
}

// SupportedLanguages lists every language the sandbox can run
func SupportedLanguages() []Language {
	return []Language{LanguagePython, LanguageJavaScript, LanguageGo, LanguageJava, LanguageCPP}
}

// LanguageConfig contains language-specific sandbox configuration
type LanguageConfig struct {
	Image      string   `yaml:"image"`
	SourceFile string   `yaml:"source_file"`
	CompileCmd []string `yaml:"compile_cmd,omitempty"` // empty for interpreted languages
	RunCmd     []string `yaml:"run_cmd"`
}

// DefaultLanguageConfigs returns default configurations for all supported languages
func DefaultLanguageConfigs() map[Language]LanguageConfig {
	return map[Language]LanguageConfig{
		LanguagePython: {
			Image:      "python:3.12-alpine",
			SourceFile: "main.py",
			RunCmd:     []string{"python3", "main.py"},
		},
		LanguageJavaScript: {
			Image:      "node:22-alpine",
			SourceFile: "main.js",
			RunCmd:     []string{"node", "main.js"},
		},
		LanguageGo: {
			Image:      "golang:1.23-alpine",
			SourceFile: "main.go",
			CompileCmd: []string{"go", "build", "-o", "main", "main.go"},
			RunCmd:     []string{"./main"},
		},
		LanguageJava: {
			Image:      "eclipse-temurin:21-alpine",
			SourceFile: "Main.java",
			CompileCmd: []string{"javac", "Main.java"},
			RunCmd:     []string{"java", "Main"},
		},
		LanguageCPP: {
			Image:      "gcc:14",
			SourceFile: "main.cpp",
			CompileCmd: []string{"g++", "-O2", "-o", "main", "main.cpp"},
			RunCmd:     []string{"./main"},
		},
	}
}

// languagesFile is the on-disk shape of a language override file
type languagesFile struct {
	Languages map[string]LanguageConfig `yaml:"languages"`
}

// LoadLanguageConfigs reads sandbox overrides from a YAML file and merges
// them over the defaults. Unknown language keys are rejected.
func LoadLanguageConfigs(path string) (map[Language]LanguageConfig, error) {
	configs := DefaultLanguageConfigs()
	if path == "" {
		return configs, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read languages file: %w", err)
	}

	var file languagesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse languages file: %w", err)
	}

	for name, cfg := range file.Languages {
		lang, err := ParseLanguage(name)
		if err != nil {
			return nil, err
		}
		base := configs[lang]
		if cfg.Image != "" {
			base.Image = cfg.Image
		}
		if cfg.SourceFile != "" {
			base.SourceFile = cfg.SourceFile
		}
		if len(cfg.CompileCmd) > 0 {
			base.CompileCmd = cfg.CompileCmd
		}
		if len(cfg.RunCmd) > 0 {
			base.RunCmd = cfg.RunCmd
		}
		configs[lang] = base
	}

	return configs, nil
}
