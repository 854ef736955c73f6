// Package modeltest provides small credit-risk models and held-out splits
// for tests.
package modeltest

import (
	"github.com/finxai/xai/internal/dataset"
	"github.com/finxai/xai/internal/models"
)

// Features are the inputs shared by every fixture model.
var Features = []string{"age", "income", "debt_ratio"}

var rows = [][]float64{
	{45, 85000, 0.20},
	{23, 21000, 0.60},
	{52, 64000, 0.45},
	{37, 48000, 0.30},
	{29, 92000, 0.15},
	{61, 120000, 0.25},
	{33, 39000, 0.55},
	{48, 71000, 0.33},
	{26, 30000, 0.70},
	{41, 56000, 0.40},
	{58, 45000, 0.20},
	{35, 99000, 0.10},
}

var labels = []int{1, 0, 0, 0, 1, 1, 0, 1, 0, 1, 0, 1}

func leaf(value, cover float64) models.Node {
	return models.Node{Feature: -1, Left: -1, Right: -1, Value: value, Cover: cover}
}

func split(feature int, threshold float64, left, right int, cover float64) models.Node {
	return models.Node{Feature: feature, Threshold: threshold, Left: left, Right: right, Cover: cover}
}

// Forest returns model "m1", a two-tree random forest. Row 0 of Split scores
// 0.80 for the positive class.
func Forest() *models.Handle {
	return &models.Handle{
		ID:           "m1",
		Family:       models.FamilyRandomForest,
		FeatureNames: append([]string(nil), Features...),
		ClassNames:   []string{"repaid", "default"},
		Trees: []models.Tree{
			{Nodes: []models.Node{
				split(1, 50000, 1, 2, 100),
				leaf(0.2, 40),
				split(2, 0.35, 3, 4, 60),
				leaf(0.9, 35),
				leaf(0.4, 25),
			}},
			{Nodes: []models.Node{
				split(0, 30, 1, 2, 100),
				leaf(0.3, 30),
				split(2, 0.5, 3, 4, 70),
				leaf(0.7, 50),
				leaf(0.1, 20),
			}},
		},
	}
}

// Boosted returns model "g1", a gradient boosted ensemble in log-odds space.
func Boosted() *models.Handle {
	return &models.Handle{
		ID:           "g1",
		Family:       models.FamilyGradientBoosting,
		FeatureNames: append([]string(nil), Features...),
		BaseScore:    -0.2,
		Trees: []models.Tree{
			{Nodes: []models.Node{
				split(1, 50000, 1, 2, 100),
				leaf(-0.8, 40),
				split(2, 0.35, 3, 4, 60),
				leaf(1.1, 35),
				leaf(-0.3, 25),
			}},
			{Nodes: []models.Node{
				split(0, 30, 1, 2, 100),
				leaf(-0.4, 30),
				leaf(0.5, 70),
			}},
		},
	}
}

// Logistic returns model "l1", a logistic regression.
func Logistic() *models.Handle {
	return &models.Handle{
		ID:           "l1",
		Family:       models.FamilyLogisticRegression,
		FeatureNames: append([]string(nil), Features...),
		Coefficients: []float64{0.02, 0.00002, -3.0},
		Intercept:    -1.5,
	}
}

// Split returns the labeled held-out split shared by the fixture models.
func Split() *dataset.Split {
	s, err := dataset.NewSplit(Features, rows, labels)
	if err != nil {
		panic(err)
	}
	return s
}
