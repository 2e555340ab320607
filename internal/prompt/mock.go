package prompt

// Mock implements Prompter for testing. Nil funcs return zero values.
type Mock struct {
	InputFunc         func(cfg InputConfig) (string, error)
	ConfirmFunc       func(cfg ConfirmConfig) (bool, error)
	SelectLeaguesFunc func(cfg SelectLeaguesConfig) ([]int, error)

	InputCalls         []InputConfig
	ConfirmCalls       []ConfirmConfig
	SelectLeaguesCalls []SelectLeaguesConfig
}

func (m *Mock) Input(cfg InputConfig) (string, error) {
	m.InputCalls = append(m.InputCalls, cfg)
	if m.InputFunc != nil {
		return m.InputFunc(cfg)
	}
	return "", nil
}

func (m *Mock) Confirm(cfg ConfirmConfig) (bool, error) {
	m.ConfirmCalls = append(m.ConfirmCalls, cfg)
	if m.ConfirmFunc != nil {
		return m.ConfirmFunc(cfg)
	}
	return false, nil
}

func (m *Mock) SelectLeagues(cfg SelectLeaguesConfig) ([]int, error) {
	m.SelectLeaguesCalls = append(m.SelectLeaguesCalls, cfg)
	if m.SelectLeaguesFunc != nil {
		return m.SelectLeaguesFunc(cfg)
	}
	return nil, nil
}
