/*
Copyright 2025 eatmoreapple

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package sqlmap

import (
	"fmt"
	"iter"
	"os"
	"regexp"
	"strings"
	"sync"
)

// Environment describes one <environment> entry: a named data source plus
// the connection-pool tuning knobs db.go's Source is built from.
type Environment struct {
	DataSource           string
	Driver               string
	MaxIdleConnNum       int
	MaxOpenConnNum       int
	MaxConnLifetime      int
	MaxIdleConnLifetime  int
	attrs                map[string]string
}

func (e *Environment) setAttr(key, value string) {
	if e.attrs == nil {
		e.attrs = make(map[string]string)
	}
	e.attrs[key] = value
}

// Attribute returns a raw XML attribute of the <environment> element.
func (e *Environment) Attribute(key string) string {
	return e.attrs[key]
}

// ID returns the environment's id attribute.
func (e *Environment) ID() string {
	return e.Attribute("id")
}

// provider resolves the EnvValueProvider this environment's child elements
// are parsed through, selected by the optional "provider" attribute.
func (e *Environment) provider() EnvValueProvider {
	if name := e.Attribute("provider"); name != "" {
		return GetEnvValueProvider(name)
	}
	return OsEnvValueProvider{}
}

// EnvironmentProvider is the read surface Configuration.Environments() exposes.
type EnvironmentProvider interface {
	// Use returns the Environment registered under id.
	Use(id string) (*Environment, error)
	// Iter ranges over every registered Environment, keyed by its id.
	Iter() iter.Seq2[string, *Environment]
	// Attribute returns an attribute of the <environments> element itself,
	// e.g. "default".
	Attribute(key string) string
}

// environments is the concrete EnvironmentProvider built by the XML parser.
type environments struct {
	envs  map[string]*Environment
	attrs map[string]string
}

func (e *environments) setAttr(key, value string) {
	if e.attrs == nil {
		e.attrs = make(map[string]string)
	}
	e.attrs[key] = value
}

func (e *environments) Attribute(key string) string {
	return e.attrs[key]
}

// Use returns the Environment registered under id.
func (e *environments) Use(id string) (*Environment, error) {
	env, ok := e.envs[id]
	if !ok {
		return nil, fmt.Errorf("environment %s not found", id)
	}
	return env, nil
}

// Iter ranges over all registered environments.
func (e *environments) Iter() iter.Seq2[string, *Environment] {
	return func(yield func(string, *Environment) bool) {
		for id, env := range e.envs {
			if !yield(id, env) {
				return
			}
		}
	}
}

// EnvValueProvider resolves the text content of an <environment> child
// element (dataSource, driver, ...) into its final string value, allowing
// e.g. environment-variable substitution before the value reaches Source.
type EnvValueProvider interface {
	Get(value string) (string, error)
}

// EnvValueProviderFunc adapts a plain function to EnvValueProvider.
type EnvValueProviderFunc func(value string) (string, error)

// Get implements EnvValueProvider.
func (f EnvValueProviderFunc) Get(value string) (string, error) { return f(value) }

// envVarPattern matches "${NAME}" placeholders.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// OsEnvValueProvider substitutes "${NAME}" placeholders with os.Getenv(NAME).
// It is the default provider used when an <environment> declares none.
type OsEnvValueProvider struct{}

// Get implements EnvValueProvider.
func (OsEnvValueProvider) Get(value string) (string, error) {
	var missing []string
	result := envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		v, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
		}
		return v
	})
	if len(missing) > 0 {
		return result, fmt.Errorf("environment variable(s) not set: %s", strings.Join(missing, ", "))
	}
	return result, nil
}

var (
	envProviderMu sync.RWMutex
	envProviders  = map[string]EnvValueProvider{}
)

// RegisterEnvValueProvider makes a named EnvValueProvider available for
// <environment provider="name"> to select. It panics on an empty name,
// matching driver.Register's own guard against malformed registration.
func RegisterEnvValueProvider(name string, provider EnvValueProvider) {
	if name == "" {
		panic("sqlmap: RegisterEnvValueProvider name is empty")
	}
	envProviderMu.Lock()
	defer envProviderMu.Unlock()
	envProviders[name] = provider
}

// GetEnvValueProvider returns the provider registered under name, falling
// back to OsEnvValueProvider when name is unregistered.
func GetEnvValueProvider(name string) EnvValueProvider {
	envProviderMu.RLock()
	defer envProviderMu.RUnlock()
	if p, ok := envProviders[name]; ok {
		return p
	}
	return OsEnvValueProvider{}
}
