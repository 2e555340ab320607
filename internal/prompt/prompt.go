// Package prompt wraps the interactive questions asked by config init.
package prompt

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/huh"
)

type InputConfig struct {
	Title       string
	Description string
	Placeholder string
	// Secret hides the typed value.
	Secret   bool
	Validate func(string) error
}

type ConfirmConfig struct {
	Title       string
	Description string
	Default     bool
}

// LeagueOption is one league offered by SelectLeagues.
type LeagueOption struct {
	ID       int
	Name     string
	Selected bool
}

type SelectLeaguesConfig struct {
	Title   string
	Options []LeagueOption
}

// Prompter asks the user questions. Commands use Default; tests swap in a
// Mock.
type Prompter interface {
	Input(cfg InputConfig) (string, error)
	Confirm(cfg ConfirmConfig) (bool, error)
	SelectLeagues(cfg SelectLeaguesConfig) ([]int, error)
}

var Default Prompter = &Huh{}

// SetDefault replaces the package-level prompter.
func SetDefault(p Prompter) {
	Default = p
}

// Huh implements Prompter with charmbracelet/huh forms.
type Huh struct{}

func (h *Huh) Input(cfg InputConfig) (string, error) {
	var value string
	input := huh.NewInput().
		Title(cfg.Title).
		Value(&value)

	if cfg.Description != "" {
		input.Description(cfg.Description)
	}
	if cfg.Placeholder != "" {
		input.Placeholder(cfg.Placeholder)
	}
	if cfg.Secret {
		input.EchoMode(huh.EchoModePassword)
	}
	if cfg.Validate != nil {
		input.Validate(cfg.Validate)
	}

	err := huh.NewForm(huh.NewGroup(input)).WithKeyMap(quitKeyMap()).Run()
	return value, err
}

func (h *Huh) Confirm(cfg ConfirmConfig) (bool, error) {
	value := cfg.Default
	confirm := huh.NewConfirm().
		Title(cfg.Title).
		Value(&value)

	if cfg.Description != "" {
		confirm.Description(cfg.Description)
	}

	err := huh.NewForm(huh.NewGroup(confirm)).WithKeyMap(quitKeyMap()).Run()
	return value, err
}

func (h *Huh) SelectLeagues(cfg SelectLeaguesConfig) ([]int, error) {
	var selected []int
	options := make([]huh.Option[int], len(cfg.Options))
	for i, opt := range cfg.Options {
		options[i] = huh.NewOption(opt.Name, opt.ID).Selected(opt.Selected)
		if opt.Selected {
			selected = append(selected, opt.ID)
		}
	}

	ms := huh.NewMultiSelect[int]().
		Title(cfg.Title).
		Options(options...).
		Value(&selected).
		Validate(ValidateLeagues)

	err := huh.NewForm(huh.NewGroup(ms)).WithKeyMap(quitKeyMap()).Run()
	return selected, err
}

// quitKeyMap lets Escape abandon a form as well as ctrl+c.
func quitKeyMap() *huh.KeyMap {
	keymap := huh.NewDefaultKeyMap()
	keymap.Quit = key.NewBinding(key.WithKeys("esc", "ctrl+c"))
	return keymap
}
