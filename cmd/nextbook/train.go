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

package main

import (
	"os"
	"runtime"

	"github.com/juju/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nextbook-io/nextbook/artifact"
	"github.com/nextbook-io/nextbook/base/log"
	"github.com/nextbook-io/nextbook/config"
	"github.com/nextbook-io/nextbook/dataset"
	"github.com/nextbook-io/nextbook/knn"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a similarity model from a ratings file",
	Run:   runTrain,
}

func init() {
	trainCmd.Flags().StringP("input", "i", "", "path of the ratings CSV file")
	trainCmd.Flags().String("separator", ";", "field separator of the ratings file")
	trainCmd.Flags().Bool("header", true, "skip the first row of the ratings file")
	trainCmd.Flags().Int("min-user-interactions", 2, "minimal distinct items per retained user")
	trainCmd.Flags().Int("min-item-interactions", 2, "minimal distinct users per retained item")
	trainCmd.Flags().Int("k", 10, "number of neighbors retained per item")
	trainCmd.Flags().String("metric", string(knn.Cosine), "similarity metric")
	trainCmd.Flags().IntP("jobs", "j", runtime.NumCPU(), "number of fit workers")
	trainCmd.Flags().StringP("output", "o", "nextbook.model", "path of the output model file")
}

func runTrain(cmd *cobra.Command, _ []string) {
	debug, _ := cmd.Flags().GetBool("debug")
	log.SetLogger(cmd.Flags(), debug)
	configPath, _ := cmd.Flags().GetString("config")
	conf, err := config.LoadConfig(configPath, cmd.Flags())
	if err != nil {
		log.Logger().Fatal("failed to load config", zap.Error(err))
	}
	if conf.Data.InputPath == "" {
		log.Logger().Fatal("no ratings file, set --input or data.input_path")
	}

	records, err := loadRatings(&conf.Data)
	if err != nil {
		log.Logger().Fatal("failed to load ratings",
			zap.String("csv_file", conf.Data.InputPath), zap.Error(err))
	}
	m, _, err := dataset.Build(records, conf.Train.MinUserInteractions, conf.Train.MinItemInteractions)
	if err != nil {
		var insufficient *dataset.DataInsufficientError
		if errors.As(err, &insufficient) {
			log.Logger().Fatal("filtering eliminated all data",
				zap.String("stage", insufficient.Stage),
				zap.Int("min_user_interactions", insufficient.MinUserInteractions),
				zap.Int("min_item_interactions", insufficient.MinItemInteractions))
		}
		log.Logger().Fatal("failed to build interaction matrix", zap.Error(err))
	}
	table, err := knn.Fit(m, conf.Train.K, knn.Metric(conf.Train.Metric), conf.Train.Jobs)
	if err != nil {
		log.Logger().Fatal("failed to fit similarity index", zap.Error(err))
	}
	bundle := artifact.NewBundle(artifact.Params{
		K:                   conf.Train.K,
		MinUserInteractions: conf.Train.MinUserInteractions,
		MinItemInteractions: conf.Train.MinItemInteractions,
		Metric:              knn.Metric(conf.Train.Metric),
	}, m, table, knn.Popularity(m))
	if err = artifact.Save(bundle, conf.Train.OutputPath); err != nil {
		log.Logger().Fatal("failed to save artifact",
			zap.String("path", conf.Train.OutputPath), zap.Error(err))
	}
	log.Logger().Info("training complete",
		zap.String("bundle_id", bundle.ID),
		zap.Int("users", m.CountUsers()),
		zap.Int("items", m.CountItems()),
		zap.Int("ratings", m.CountRatings()))
}

func loadRatings(conf *config.DataConfig) ([]dataset.RatingRecord, error) {
	file, err := os.Open(conf.InputPath)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, errors.Trace(err)
	}
	bar := progressbar.DefaultBytes(info.Size(), "Loading ratings")
	reader := progressbar.NewReader(file, bar)
	records, malformed, err := dataset.ReadRatings(&reader, conf.Separator, conf.HasHeader)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if malformed > 0 {
		log.Logger().Warn("skipped malformed rating rows",
			zap.String("csv_file", conf.InputPath),
			zap.Int("malformed", malformed))
	}
	return records, nil
}
