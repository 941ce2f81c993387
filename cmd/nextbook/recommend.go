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
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nextbook-io/nextbook/artifact"
	"github.com/nextbook-io/nextbook/base/log"
	"github.com/nextbook-io/nextbook/config"
	"github.com/nextbook-io/nextbook/engine"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Query a trained model for recommendations",
	Run:   runRecommend,
}

func init() {
	recommendCmd.Flags().StringP("model", "m", "nextbook.model", "path of the model file")
	recommendCmd.Flags().String("item", "", "recommend items similar to this item")
	recommendCmd.Flags().String("user", "", "recommend items for this user")
	recommendCmd.Flags().IntP("top-n", "n", 10, "number of recommendations")
	recommendCmd.Flags().Bool("strict", false, "fail on unknown IDs instead of serving the popularity fallback")
}

func runRecommend(cmd *cobra.Command, _ []string) {
	debug, _ := cmd.Flags().GetBool("debug")
	log.SetLogger(cmd.Flags(), debug)
	configPath, _ := cmd.Flags().GetString("config")
	conf, err := config.LoadConfig(configPath, cmd.Flags())
	if err != nil {
		log.Logger().Fatal("failed to load config", zap.Error(err))
	}
	itemId, _ := cmd.Flags().GetString("item")
	userId, _ := cmd.Flags().GetString("user")
	if (itemId == "") == (userId == "") {
		log.Logger().Fatal("exactly one of --item and --user is required")
	}
	strict, _ := cmd.Flags().GetBool("strict")

	bundle, err := artifact.Load(context.Background(), conf.Serve.ModelPath)
	if err != nil {
		log.Logger().Fatal("failed to load model",
			zap.String("path", conf.Serve.ModelPath), zap.Error(err))
	}
	e := engine.NewEngine(bundle)
	defer e.Close()

	var opts []engine.QueryOption
	if strict {
		opts = append(opts, engine.WithStrict())
	}
	var recommendation *engine.Recommendation
	if itemId != "" {
		recommendation, err = e.RecommendByItem(itemId, conf.Serve.DefaultN, opts...)
	} else {
		recommendation, err = e.RecommendForUser(userId, conf.Serve.DefaultN, opts...)
	}
	if err != nil {
		log.Logger().Fatal("query failed", zap.Error(err))
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "item", "score"})
	for i, item := range recommendation.Items {
		table.Append([]string{strconv.Itoa(i + 1), item.ItemId, fmt.Sprintf("%.4f", item.Score)})
	}
	table.Render()
	if recommendation.Fallback {
		fmt.Println("served from popularity fallback")
	}
}
