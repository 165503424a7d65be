// Package replay drives a collector from a scripted sequence of page
// interactions, standing in for a browser.
package replay

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/AtRiskMedia/tractstack-beacon/internal/application/collector"
	"github.com/AtRiskMedia/tractstack-beacon/internal/domain/telemetry"
	"gopkg.in/yaml.v3"
)

// Action names one kind of scripted interaction.
type Action string

const (
	ActionClick  Action = "click"
	ActionScroll Action = "scroll"
	ActionLoad   Action = "load"
	ActionVital  Action = "vital"
	ActionHide   Action = "hide"
	ActionShow   Action = "show"
	ActionFlush  Action = "flush"
	ActionUnload Action = "unload"
)

// Page describes the simulated document.
type Page struct {
	Path           string         `yaml:"path"`
	Title          string         `yaml:"title"`
	Referrer       string         `yaml:"referrer"`
	UserAgent      string         `yaml:"userAgent"`
	Screen         collector.Size `yaml:"screen"`
	Viewport       collector.Size `yaml:"viewport"`
	DocumentHeight int            `yaml:"documentHeight"`
}

// Step is one interaction, At milliseconds after the page opened.
type Step struct {
	At     int    `yaml:"at"`
	Action Action `yaml:"action"`

	// click
	X      int               `yaml:"x"`
	Y      int               `yaml:"y"`
	Target telemetry.Element `yaml:"target"`

	// scroll
	ScrollTop int `yaml:"scrollTop"`

	// load
	Timing     *telemetry.NavigationTiming `yaml:"timing"`
	Connection *telemetry.Connection       `yaml:"connection"`

	// vital
	Name  string  `yaml:"name"`
	Value float64 `yaml:"value"`
}

// Offset returns the step's offset from page open.
func (s Step) Offset() time.Duration {
	return time.Duration(s.At) * time.Millisecond
}

// Script is a complete page visit.
type Script struct {
	Page  Page   `yaml:"page"`
	Steps []Step `yaml:"steps"`
}

// ParseScript decodes and validates a YAML script.
func ParseScript(data []byte) (*Script, error) {
	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	if err := script.Validate(); err != nil {
		return nil, err
	}
	return &script, nil
}

// LoadScript reads and parses a script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script %s: %w", path, err)
	}
	return ParseScript(data)
}

// Validate checks that steps are known and in time order.
func (s *Script) Validate() error {
	if s.Page.Path == "" {
		return errors.New("script page.path is required")
	}
	last := 0
	for i, step := range s.Steps {
		if step.At < last {
			return fmt.Errorf("step %d at %dms is earlier than the step before it", i, step.At)
		}
		last = step.At

		switch step.Action {
		case ActionClick, ActionScroll, ActionLoad, ActionHide, ActionShow, ActionFlush, ActionUnload:
		case ActionVital:
			if _, err := telemetry.ParseVital(step.Name); err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
		default:
			return fmt.Errorf("step %d: unknown action %q", i, step.Action)
		}
	}
	return nil
}

// Host builds the simulated page the collector reads from.
func (s *Script) Host() *collector.StaticHost {
	return &collector.StaticHost{
		Path:       s.Page.Path,
		PageTitle:  s.Page.Title,
		Referer:    s.Page.Referrer,
		Agent:      s.Page.UserAgent,
		ScreenSize: s.Page.Screen,
		View:       s.Page.Viewport,
		Document:   s.Page.DocumentHeight,
	}
}
