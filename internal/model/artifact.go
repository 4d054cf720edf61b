package model

import (
	"encoding/json"
	"fmt"
)

// Artifact kinds.
const (
	KindRandomForest       = "random_forest"
	KindLogisticRegression = "logistic_regression"
	KindBernoulliNB        = "bernoulli_nb"
	KindXGBoostOVR         = "xgboost_ovr"
)

// Document is the on-disk classifier artifact. Exactly one of the
// kind-specific sections is read, selected by Kind.
type Document struct {
	Kind               string    `json:"kind"`
	FeatureNames       []string  `json:"feature_names,omitempty"`
	FeatureImportances []float64 `json:"feature_importances,omitempty"`

	Forest     *ForestSpec     `json:"forest,omitempty"`
	Linear     *LinearSpec     `json:"linear,omitempty"`
	NaiveBayes *NaiveBayesSpec `json:"naive_bayes,omitempty"`
	XGBoost    *XGBoostSpec    `json:"xgboost,omitempty"`
}

// Decode builds a Facade from a JSON artifact.
func Decode(data []byte) (*Facade, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse classifier artifact: %w", err)
	}
	return FromDocument(doc)
}

func FromDocument(doc Document) (*Facade, error) {
	var (
		clf Classifier
		err error
	)
	switch doc.Kind {
	case KindRandomForest:
		if doc.Forest == nil {
			return nil, fmt.Errorf("%s artifact has no forest section", doc.Kind)
		}
		clf, err = NewForest(*doc.Forest)
	case KindLogisticRegression:
		if doc.Linear == nil {
			return nil, fmt.Errorf("%s artifact has no linear section", doc.Kind)
		}
		clf, err = NewLinear(*doc.Linear)
	case KindBernoulliNB:
		if doc.NaiveBayes == nil {
			return nil, fmt.Errorf("%s artifact has no naive_bayes section", doc.Kind)
		}
		clf, err = NewBernoulliNB(*doc.NaiveBayes)
	case KindXGBoostOVR:
		if doc.XGBoost == nil {
			return nil, fmt.Errorf("%s artifact has no xgboost section", doc.Kind)
		}
		clf, err = NewXGBoostOVR(*doc.XGBoost)
	case "":
		return nil, fmt.Errorf("classifier artifact has no kind")
	default:
		return nil, fmt.Errorf("unsupported classifier kind %q", doc.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", doc.Kind, err)
	}

	n := clf.NumFeatures()
	if doc.FeatureNames != nil && len(doc.FeatureNames) != n {
		return nil, fmt.Errorf("artifact lists %d feature names for %d features", len(doc.FeatureNames), n)
	}
	if doc.FeatureImportances != nil && len(doc.FeatureImportances) != n {
		return nil, fmt.Errorf("artifact lists %d feature importances for %d features", len(doc.FeatureImportances), n)
	}
	return &Facade{
		clf:          clf,
		kind:         doc.Kind,
		featureNames: doc.FeatureNames,
		importances:  doc.FeatureImportances,
	}, nil
}
