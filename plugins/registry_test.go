package plugins

import (
	"context"
	"testing"
)

// mockSource is a test implementation of the Source interface
type mockSource struct {
	name string
}

func (m *mockSource) Name() string {
	return m.name
}

func (m *mockSource) GetLatest(ctx context.Context) (string, error) {
	return "latest from " + m.name, nil
}

func (m *mockSource) Get(ctx context.Context, id string) (string, error) {
	return "item " + id + " from " + m.name, nil
}

func TestNewRegistry(t *testing.T) {
	registry := NewRegistry()
	if registry == nil {
		t.Fatal("NewRegistry should not return nil")
	}

	sources := registry.List()
	if len(sources) != 0 {
		t.Errorf("New registry should be empty, got %d sources: %v", len(sources), sources)
	}
}

func TestRegisterAndLookup(t *testing.T) {
	registry := NewRegistry()

	registry.Register(&mockSource{name: "weather"})
	registry.Register(&mockSource{name: "contacts"})

	names := registry.List()
	if len(names) != 2 || names[0] != "contacts" || names[1] != "weather" {
		t.Errorf("Expected [contacts weather], got %v", names)
	}

	s, exists := registry.Source("weather")
	if !exists {
		t.Fatal("weather source should exist")
	}
	if s.Name() != "weather" {
		t.Errorf("Expected source name 'weather', got '%s'", s.Name())
	}

	if _, exists = registry.Source("nonexistent"); exists {
		t.Error("Non-existent source should not exist")
	}
}

func TestSourceInterface(t *testing.T) {
	s := &mockSource{name: "test"}
	ctx := context.Background()

	result, err := s.GetLatest(ctx)
	if err != nil {
		t.Errorf("GetLatest should not return error: %v", err)
	}
	if result != "latest from test" {
		t.Errorf("Expected 'latest from test', got '%s'", result)
	}

	result, err = s.Get(ctx, "123")
	if err != nil {
		t.Errorf("Get should not return error: %v", err)
	}
	if result != "item 123 from test" {
		t.Errorf("Expected 'item 123 from test', got '%s'", result)
	}
}

func TestRegistryOverwrite(t *testing.T) {
	registry := NewRegistry()

	first := &mockSource{name: "test"}
	registry.Register(first)
	second := &mockSource{name: "test"}
	registry.Register(second)

	if n := len(registry.List()); n != 1 {
		t.Errorf("Expected 1 source after overwrite, got %d", n)
	}

	s, exists := registry.Source("test")
	if !exists {
		t.Fatal("Source should exist")
	}
	if s != second {
		t.Error("Should get the second registered source")
	}
}
