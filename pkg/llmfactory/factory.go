package llmfactory

import (
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/llms/anthropic"
	"github.com/effective-security/mcpbridge/pkg/llms/bedrock"
	"github.com/effective-security/mcpbridge/pkg/llms/openai"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge/pkg", "llmfactory")

// NewLLM is a wrapper for CreateLLM to allow for overriding the default implementation.
var NewLLM = CreateLLM

// Factory is the interface for creating and managing LLM models.
type Factory interface {
	// DefaultModel returns the default LLM model.
	DefaultModel() (llms.Model, error)
	// ModelByType returns an LLM model by its provider type:
	// OPENAI, ANTHROPIC or BEDROCK
	ModelByType(providerType string) (llms.Model, error)
	// ModelByName returns an LLM model by its name,
	// if the model is not found, it will return the default model.
	ModelByName(preferredModels ...string) (llms.Model, error)
	// AssistantModel returns the model configured for the assistant.
	AssistantModel(assistantName string, preferredModels ...string) (llms.Model, error)
}

// Load returns a factory for the config file
func Load(location string) (Factory, error) {
	cfg, err := LoadConfig(location)
	if err != nil {
		return nil, err
	}
	return New(cfg), nil
}

type factory struct {
	cfg             *Config
	defaultProvider *ProviderConfig

	// models are cached by "type:" or "name:" key
	models map[string]llms.Model
	lock   sync.Mutex
}

// New creates a new LLM factory
func New(cfg *Config) Factory {
	f := &factory{
		cfg:    cfg,
		models: make(map[string]llms.Model),
	}
	if len(cfg.Providers) > 0 {
		f.defaultProvider = cfg.Providers[0]
	}
	if cfg.DefaultProvider != "" {
		if idx := slices.IndexFunc(cfg.Providers, func(p *ProviderConfig) bool {
			return p.Name == cfg.DefaultProvider
		}); idx >= 0 {
			f.defaultProvider = cfg.Providers[idx]
		}
	}
	return f
}

// CreateLLM returns a model of the provider, the first of preferredModels
// available at the provider is used, or its default model
func CreateLLM(cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	model := cfg.FindModel(preferredModels...)
	switch llms.ProviderType(cfg.Type) {
	case llms.ProviderOpenAI:
		opts := []openai.Option{openai.WithToken(cfg.Token), openai.WithModel(model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.OrgID != "" {
			opts = append(opts, openai.WithOrganization(cfg.OrgID))
		}
		return openai.New(opts...)
	case llms.ProviderAnthropic:
		opts := []anthropic.Option{anthropic.WithToken(cfg.Token), anthropic.WithModel(model)}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		return anthropic.New(opts...)
	case llms.ProviderBedrock:
		opts := []bedrock.Option{bedrock.WithRegion(cfg.AWS.Region)}
		if model != "" {
			opts = append(opts, bedrock.WithModel(model))
		}
		if cfg.AWS.AccessKeyID != "" {
			opts = append(opts, bedrock.WithCredentials(cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey, cfg.AWS.SessionToken))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, bedrock.WithEndpoint(cfg.BaseURL))
		}
		return bedrock.New(opts...)
	}
	return nil, errors.Errorf("unsupported provider type: %s", cfg.Type)
}

// DefaultModel returns the default model of the default provider
func (f *factory) DefaultModel() (llms.Model, error) {
	if f.defaultProvider == nil {
		return nil, errors.New("no providers configured")
	}
	return NewLLM(f.defaultProvider, f.defaultProvider.DefaultModel)
}

func (f *factory) ModelByType(providerType string) (llms.Model, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	key := "type:" + providerType
	if model, ok := f.models[key]; ok {
		return model, nil
	}

	idx := slices.IndexFunc(f.cfg.Providers, func(p *ProviderConfig) bool {
		return p.Type == providerType
	})
	if idx < 0 {
		return nil, errors.Errorf("provider not found for type: %s", providerType)
	}
	return f.create(key, f.cfg.Providers[idx])
}

func (f *factory) ModelByName(modelNames ...string) (llms.Model, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	for _, name := range modelNames {
		key := "name:" + name
		if model, ok := f.models[key]; ok {
			return model, nil
		}

		for _, cfg := range f.cfg.Providers {
			if !slices.Contains(cfg.AvailableModels, name) {
				continue
			}
			model, err := f.create(key, cfg, modelNames...)
			if err != nil {
				logger.KV(xlog.ERROR,
					"reason", "create_llm",
					"type", cfg.Type,
					"models", modelNames,
					"err", err.Error(),
				)
				continue
			}
			return model, nil
		}
	}
	return f.DefaultModel()
}

// create must be called under the lock
func (f *factory) create(key string, cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	model, err := NewLLM(cfg, preferredModels...)
	if err != nil {
		return nil, err
	}
	logger.KV(xlog.DEBUG,
		"status", "created_llm",
		"type", cfg.Type,
		"provider", cfg.Name,
		"model", model.GetName(),
	)
	f.models[key] = model
	return model, nil
}

// AssistantModel returns the model configured for the assistant,
// or for the "default" assistant, before the preferred models
func (f *factory) AssistantModel(assistantName string, preferredModels ...string) (llms.Model, error) {
	for _, name := range []string{assistantName, "default"} {
		if modelNames, ok := f.cfg.AssistantModels[name]; ok {
			return f.ModelByName(modelNames...)
		}
	}
	return f.ModelByName(preferredModels...)
}
