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
	"encoding"
	"strconv"

	"github.com/spf13/viper"
)

// StringValue is a single raw <setting> value, parsed on demand into
// whichever scalar type the caller needs. Invalid conversions return the
// type's zero value rather than an error, matching the teacher's
// Attribute(key string) string accessors which never fail either.
type StringValue string

// Bool parses the value as a boolean, false if it is not one.
func (s StringValue) Bool() bool {
	v, _ := strconv.ParseBool(string(s))
	return v
}

// Int64 parses the value as a base-10 int64, 0 if it is not one.
func (s StringValue) Int64() int64 {
	v, _ := strconv.ParseInt(string(s), 10, 64)
	return v
}

// Uint64 parses the value as a base-10 uint64, 0 if it is not one.
func (s StringValue) Uint64() uint64 {
	v, _ := strconv.ParseUint(string(s), 10, 64)
	return v
}

// Float64 parses the value as a float64, 0 if it is not one.
func (s StringValue) Float64() float64 {
	v, _ := strconv.ParseFloat(string(s), 64)
	return v
}

// String returns the raw value unchanged.
func (s StringValue) String() string {
	return string(s)
}

// Unmarshaler decodes the raw value through v's TextUnmarshaler, for
// settings whose shape isn't one of the scalar accessors above.
func (s StringValue) Unmarshaler(v encoding.TextUnmarshaler) error {
	return v.UnmarshalText([]byte(s))
}

// SettingProvider is the read surface Configuration.Settings() exposes.
type SettingProvider interface {
	Get(key string) StringValue
}

// keyValueSettingProvider is the concrete SettingProvider built by
// XMLSettingsElementParser from a flat <settings><setting name="" value=""/></settings> list.
type keyValueSettingProvider map[string]string

// Get implements SettingProvider.
func (k keyValueSettingProvider) Get(key string) StringValue {
	return StringValue(k[key])
}

// settingItem is the XML shape of a single <setting name="..." value="..."/> element.
type settingItem struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// Settings is the typed, defaulted view of the global <settings> block
// described in spec.md §6. It is built from the raw keyValueSettingProvider
// parsed off the mapping XML and then overlaid with a Viper instance, so
// the same knobs can also come from environment variables, flags, or a
// separate settings file (e.g. JUICE_CACHEENABLED=false) without touching
// the mapping XML.
type Settings struct {
	CacheEnabled                     bool   `mapstructure:"cacheEnabled"`
	LazyLoadingEnabled                bool   `mapstructure:"lazyLoadingEnabled"`
	AggressiveLazyLoading             bool   `mapstructure:"aggressiveLazyLoading"`
	MultipleResultSetsEnabled         bool   `mapstructure:"multipleResultSetsEnabled"`
	UseColumnLabel                    bool   `mapstructure:"useColumnLabel"`
	UseGeneratedKeys                  bool   `mapstructure:"useGeneratedKeys"`
	AutoMappingBehavior               string `mapstructure:"autoMappingBehavior"`
	AutoMappingUnknownColumnBehavior  string `mapstructure:"autoMappingUnknownColumnBehavior"`
	DefaultExecutorType               string `mapstructure:"defaultExecutorType"`
	DefaultStatementTimeout           int    `mapstructure:"defaultStatementTimeout"`
	DefaultFetchSize                  int    `mapstructure:"defaultFetchSize"`
	MapUnderscoreToCamelCase          bool   `mapstructure:"mapUnderscoreToCamelCase"`
	SafeRowBoundsEnabled              bool   `mapstructure:"safeRowBoundsEnabled"`
	SafeResultHandlerEnabled          bool   `mapstructure:"safeResultHandlerEnabled"`
	LocalCacheScope                   string `mapstructure:"localCacheScope"`
	JdbcTypeForNull                   string `mapstructure:"jdbcTypeForNull"`
	LazyLoadTriggerMethods            string `mapstructure:"lazyLoadTriggerMethods"`
	CallSettersOnNulls                bool   `mapstructure:"callSettersOnNulls"`
	ReturnInstanceForEmptyRow         bool   `mapstructure:"returnInstanceForEmptyRow"`
	UseActualParamName                bool   `mapstructure:"useActualParamName"`
}

// defaultSettings returns the documented defaults from spec.md §6.
func defaultSettings() Settings {
	return Settings{
		CacheEnabled:                     true,
		MultipleResultSetsEnabled:        true,
		UseColumnLabel:                   true,
		AutoMappingBehavior:              "PARTIAL",
		AutoMappingUnknownColumnBehavior: "NONE",
		DefaultExecutorType:              "SIMPLE",
		LocalCacheScope:                  "SESSION",
		SafeResultHandlerEnabled:         true,
		UseActualParamName:               true,
	}
}

// LoadSettings builds a Settings value from the mapping XML's keyValueSettingProvider,
// overlaid by envPrefix-scoped environment variables via Viper (e.g. a
// prefix of "JUICE" exposes JUICE_CACHEENABLED, JUICE_DEFAULTEXECUTORTYPE, ...).
// XML values seed Viper's defaults, so unset environment variables fall back
// to what the mapping declared, and values absent from both fall back to
// defaultSettings.
func LoadSettings(provider SettingProvider, envPrefix string) (Settings, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	defaults := defaultSettings()
	seed := map[string]any{
		"cacheEnabled":                     defaults.CacheEnabled,
		"lazyLoadingEnabled":               defaults.LazyLoadingEnabled,
		"aggressiveLazyLoading":            defaults.AggressiveLazyLoading,
		"multipleResultSetsEnabled":        defaults.MultipleResultSetsEnabled,
		"useColumnLabel":                   defaults.UseColumnLabel,
		"useGeneratedKeys":                 defaults.UseGeneratedKeys,
		"autoMappingBehavior":              defaults.AutoMappingBehavior,
		"autoMappingUnknownColumnBehavior": defaults.AutoMappingUnknownColumnBehavior,
		"defaultExecutorType":              defaults.DefaultExecutorType,
		"defaultStatementTimeout":          defaults.DefaultStatementTimeout,
		"defaultFetchSize":                 defaults.DefaultFetchSize,
		"mapUnderscoreToCamelCase":         defaults.MapUnderscoreToCamelCase,
		"safeRowBoundsEnabled":             defaults.SafeRowBoundsEnabled,
		"safeResultHandlerEnabled":         defaults.SafeResultHandlerEnabled,
		"localCacheScope":                  defaults.LocalCacheScope,
		"jdbcTypeForNull":                  defaults.JdbcTypeForNull,
		"lazyLoadTriggerMethods":           defaults.LazyLoadTriggerMethods,
		"callSettersOnNulls":               defaults.CallSettersOnNulls,
		"returnInstanceForEmptyRow":        defaults.ReturnInstanceForEmptyRow,
		"useActualParamName":               defaults.UseActualParamName,
	}
	for key := range seed {
		if raw := provider.Get(key); raw != "" {
			seed[key] = raw.String()
		}
	}
	for key, value := range seed {
		v.SetDefault(key, value)
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return Settings{}, newError(CONFIG_MALFORMED, "", "", err)
	}
	return settings, nil
}
