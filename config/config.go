// Copyright 2025 nextbook Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads training and serving settings from a TOML file,
// environment variables and command line flags. Precedence from lowest to
// highest: defaults, config file, NEXTBOOK_* environment variables, flags.
package config

import (
	"runtime"
	"strings"

	"github.com/juju/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nextbook-io/nextbook/base"
	"github.com/nextbook-io/nextbook/knn"
)

// Config is the configuration of both the training and the serving path.
type Config struct {
	Data  DataConfig  `mapstructure:"data"`
	Train TrainConfig `mapstructure:"train"`
	Serve ServeConfig `mapstructure:"serve"`
}

// DataConfig describes the ratings source.
type DataConfig struct {
	InputPath string `mapstructure:"input_path"`
	Separator string `mapstructure:"separator"`
	HasHeader bool   `mapstructure:"has_header"`
}

// TrainConfig holds the hyperparameters of a training run.
type TrainConfig struct {
	MinUserInteractions int    `mapstructure:"min_user_interactions"`
	MinItemInteractions int    `mapstructure:"min_item_interactions"`
	K                   int    `mapstructure:"k"`
	Metric              string `mapstructure:"metric"`
	Jobs                int    `mapstructure:"jobs"`
	OutputPath          string `mapstructure:"output_path"`
}

// ServeConfig holds the query side settings.
type ServeConfig struct {
	ModelPath string `mapstructure:"model_path"`
	DefaultN  int    `mapstructure:"default_n"`
}

func setDefault(v *viper.Viper) {
	v.SetDefault("data.input_path", "")
	v.SetDefault("data.separator", ";")
	v.SetDefault("data.has_header", true)
	v.SetDefault("train.min_user_interactions", 2)
	v.SetDefault("train.min_item_interactions", 2)
	v.SetDefault("train.k", 10)
	v.SetDefault("train.metric", string(knn.Cosine))
	v.SetDefault("train.jobs", runtime.NumCPU())
	v.SetDefault("train.output_path", "nextbook.model")
	v.SetDefault("serve.model_path", "nextbook.model")
	v.SetDefault("serve.default_n", 10)
}

// bindings maps config keys to the command line flags overriding them.
var bindings = map[string]string{
	"data.input_path":             "input",
	"data.separator":              "separator",
	"data.has_header":             "header",
	"train.min_user_interactions": "min-user-interactions",
	"train.min_item_interactions": "min-item-interactions",
	"train.k":                     "k",
	"train.metric":                "metric",
	"train.jobs":                  "jobs",
	"train.output_path":           "output",
	"serve.model_path":            "model",
	"serve.default_n":             "top-n",
}

// LoadConfig reads the configuration. path may be empty; flags may be nil. A
// flag overrides the corresponding key only when the user changed it.
func LoadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefault(v)
	v.SetEnvPrefix("nextbook")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	if flags != nil {
		for key, name := range bindings {
			if flag := flags.Lookup(name); flag != nil && flag.Changed {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, errors.Trace(err)
				}
			}
		}
	}
	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

// Validate rejects settings no component would accept.
func (c *Config) Validate() error {
	if c.Train.MinUserInteractions < 1 {
		return base.NewInvalidArgumentError("train.min_user_interactions", c.Train.MinUserInteractions, "must be at least 1")
	}
	if c.Train.MinItemInteractions < 1 {
		return base.NewInvalidArgumentError("train.min_item_interactions", c.Train.MinItemInteractions, "must be at least 1")
	}
	if c.Train.K < 1 {
		return base.NewInvalidArgumentError("train.k", c.Train.K, "must be at least 1")
	}
	if knn.Metric(c.Train.Metric) != knn.Cosine {
		return base.NewInvalidArgumentError("train.metric", c.Train.Metric, "unsupported similarity metric")
	}
	if c.Train.Jobs < 1 {
		return base.NewInvalidArgumentError("train.jobs", c.Train.Jobs, "must be at least 1")
	}
	if c.Data.Separator == "" {
		return base.NewInvalidArgumentError("data.separator", c.Data.Separator, "must not be empty")
	}
	if c.Serve.DefaultN < 1 {
		return base.NewInvalidArgumentError("serve.default_n", c.Serve.DefaultN, "must be at least 1")
	}
	return nil
}
