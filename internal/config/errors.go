package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ConfigurationError describes why one configuration file was rejected.
// ErrorType is one of io, parse, validation or duplicate.
type ConfigurationError struct {
	FilePath    string
	FileName    string
	Category    string
	ErrorType   string
	Message     string
	Details     string
	Suggestions []string
}

// fileError builds a ConfigurationError for path. cause may be nil.
func fileError(path, category, errorType, message string, cause error, suggestions ...string) ConfigurationError {
	e := ConfigurationError{
		FilePath:    path,
		FileName:    filepath.Base(path),
		Category:    category,
		ErrorType:   errorType,
		Message:     message,
		Suggestions: suggestions,
	}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

func (e ConfigurationError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("%s %s: %s", e.Category, e.FileName, e.Message)
	}
	return fmt.Sprintf("%s %s: %s: %s", e.Category, e.FileName, e.Message, e.Details)
}

// Detail renders the error over several lines for operators.
func (e ConfigurationError) Detail() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s, %s error)\n", e.FilePath, e.Category, e.ErrorType)
	fmt.Fprintf(&b, "  %s\n", e.Message)
	if e.Details != "" {
		fmt.Fprintf(&b, "  %s\n", e.Details)
	}
	for _, s := range e.Suggestions {
		fmt.Fprintf(&b, "  hint: %s\n", s)
	}
	return b.String()
}

// ConfigurationErrorCollection gathers the per-file errors of one directory
// scan so that a single bad file does not hide the others.
type ConfigurationErrorCollection struct {
	Errors []ConfigurationError
}

func (c *ConfigurationErrorCollection) Error() string {
	switch len(c.Errors) {
	case 0:
		return "no configuration errors"
	case 1:
		return c.Errors[0].Error()
	}
	return fmt.Sprintf("%d invalid configuration files, first: %s", len(c.Errors), c.Errors[0].Error())
}

func (c *ConfigurationErrorCollection) Add(err ConfigurationError) {
	c.Errors = append(c.Errors, err)
}

func (c *ConfigurationErrorCollection) HasErrors() bool { return len(c.Errors) > 0 }

func (c *ConfigurationErrorCollection) Count() int { return len(c.Errors) }

// Report lists every error with its details, one block per file.
func (c *ConfigurationErrorCollection) Report() string {
	var b strings.Builder
	for i, e := range c.Errors {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(e.Detail())
	}
	return b.String()
}
