// ABOUTME: Session: the per-conversation execution context threaded through every step
// ABOUTME: Holds the working directory and chat model selection; one plan runs at a time

package agent

import (
	"strings"
	"sync"
)

// Providers accepted by set_llm.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// DefaultModels maps each provider to the model used when set_llm names none.
var DefaultModels = map[string]string{
	ProviderOpenAI: "gpt-4o-mini",
	ProviderOllama: "gemma3:12b",
}

// LLM is the chat model selection recorded by set_llm.
type LLM struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Session is the mutable state shared by consecutive plans of one
// conversation. The zero value has no working directory and no model.
type Session struct {
	run sync.Mutex // held for the duration of Executor.Run

	mu      sync.RWMutex
	workdir string
	llm     LLM
	models  map[string]string
}

// NewSession creates a session with the given model selection. models
// overrides DefaultModels per provider; nil keeps the defaults.
func NewSession(llm LLM, models map[string]string) *Session {
	m := make(map[string]string, len(DefaultModels))
	for k, v := range DefaultModels {
		m[k] = v
	}
	for k, v := range models {
		if v != "" {
			m[k] = v
		}
	}
	s := &Session{models: m}
	s.llm = s.normalizeLLM(llm.Provider, llm.Model)
	return s
}

// Workdir returns the current project directory, or "" when unset.
func (s *Session) Workdir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workdir
}

// SetWorkdir replaces the current project directory.
func (s *Session) SetWorkdir(dir string) {
	s.mu.Lock()
	s.workdir = dir
	s.mu.Unlock()
}

// LLM returns the current chat model selection.
func (s *Session) LLM() LLM {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.llm
}

// SetLLM records a new model selection and returns it. Unknown providers
// fall back to openai; an empty model picks the provider's default.
func (s *Session) SetLLM(provider, model string) LLM {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.llm = s.normalizeLLM(provider, model)
	return s.llm
}

func (s *Session) normalizeLLM(provider, model string) LLM {
	p := strings.ToLower(strings.TrimSpace(provider))
	if p != ProviderOpenAI && p != ProviderOllama {
		p = ProviderOpenAI
	}
	m := strings.TrimSpace(model)
	if m == "" {
		m = s.models[p]
	}
	return LLM{Provider: p, Model: m}
}
