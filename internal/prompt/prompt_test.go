package prompt

import (
	"errors"
	"testing"
)

func TestMock_RecordsCalls(t *testing.T) {
	m := &Mock{
		InputFunc: func(cfg InputConfig) (string, error) { return "key-123", nil },
	}
	got, err := m.Input(InputConfig{Title: "API-Sports key", Secret: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "key-123" {
		t.Errorf("got %q, want key-123", got)
	}
	if len(m.InputCalls) != 1 || !m.InputCalls[0].Secret {
		t.Errorf("InputCalls = %+v", m.InputCalls)
	}
}

func TestMock_InputError(t *testing.T) {
	m := &Mock{
		InputFunc: func(cfg InputConfig) (string, error) { return "", errors.New("user aborted") },
	}
	if _, err := m.Input(InputConfig{}); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestMock_ZeroValues(t *testing.T) {
	m := &Mock{}
	if ok, err := m.Confirm(ConfirmConfig{Title: "Overwrite?"}); ok || err != nil {
		t.Errorf("Confirm = %v, %v; want false, nil", ok, err)
	}
	if ids, err := m.SelectLeagues(SelectLeaguesConfig{}); ids != nil || err != nil {
		t.Errorf("SelectLeagues = %v, %v; want nil, nil", ids, err)
	}
}

func TestMock_SelectLeagues(t *testing.T) {
	m := &Mock{
		SelectLeaguesFunc: func(cfg SelectLeaguesConfig) ([]int, error) {
			var ids []int
			for _, o := range cfg.Options {
				if o.Selected {
					ids = append(ids, o.ID)
				}
			}
			return ids, nil
		},
	}
	got, err := m.SelectLeagues(SelectLeaguesConfig{Options: []LeagueOption{
		{ID: 39, Name: "Premier League", Selected: true},
		{ID: 140, Name: "La Liga"},
		{ID: 78, Name: "Bundesliga", Selected: true},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != 39 || got[1] != 78 {
		t.Errorf("got %v, want [39 78]", got)
	}
}

func TestSetDefault_Restores(t *testing.T) {
	original := Default
	mock := &Mock{}
	SetDefault(mock)
	if Default != mock {
		t.Fatal("SetDefault did not set the mock")
	}
	SetDefault(original)
	if Default != original {
		t.Fatal("SetDefault did not restore original")
	}
}

func TestValidateNotEmpty(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"abc", false},
		{"", true},
		{"   ", true},
	}
	for _, tt := range tests {
		if err := ValidateNotEmpty(tt.in); (err != nil) != tt.wantErr {
			t.Errorf("ValidateNotEmpty(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}

func TestValidateLeagues(t *testing.T) {
	if err := ValidateLeagues(nil); err == nil {
		t.Error("ValidateLeagues(nil) = nil, want error")
	}
	if err := ValidateLeagues([]int{39}); err != nil {
		t.Errorf("ValidateLeagues([39]) = %v", err)
	}
}
