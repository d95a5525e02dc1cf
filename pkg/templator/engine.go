package templator

import (
	"fmt"
	"os"
)

type Engine struct {
	templates map[string]Template
}

func NewEngine() *Engine {
	return &Engine{
		templates: make(map[string]Template),
	}
}

func (e *Engine) LoadTemplate(name, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to load template %s from %s: %w", name, path, err)
	}
	defer file.Close()

	tmpl, err := Parse(file)
	if err != nil {
		return fmt.Errorf("failed to read template %s from %s: %w", name, path, err)
	}
	e.templates[name] = tmpl
	return nil
}

func (e *Engine) Render(name string, vars Vars) (Rendered, error) {
	tmpl, exists := e.templates[name]
	if !exists {
		return nil, fmt.Errorf("template %s not found", name)
	}

	return Render(tmpl, vars), nil
}

func (e *Engine) RenderToFile(name, outputPath string, vars Vars) error {
	rendered, err := e.Render(name, vars)
	if err != nil {
		return err
	}

	if err := os.WriteFile(outputPath, rendered.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write rendered template %s to %s: %w", name, outputPath, err)
	}

	return nil
}
