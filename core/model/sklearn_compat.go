package model

import (
	"fmt"
	"sort"

	"github.com/YuminosukeSato/blight/pkg/errors"
)

// SKLearnCompatible はscikit-learn互換のハイパーパラメータ操作インターフェース
type SKLearnCompatible interface {
	// GetParams はモデルのハイパーパラメータを取得
	GetParams() map[string]interface{}

	// SetParams はモデルのハイパーパラメータを設定
	SetParams(params map[string]interface{}) error
}

// TunableClassifier はハイパーパラメータ探索で使用できる分類器
type TunableClassifier interface {
	Classifier
	SKLearnCompatible

	// Clone は同じハイパーパラメータを持つ未学習の新しいインスタンスを作成
	Clone() TunableClassifier
}

// ParamInt extracts an integer hyperparameter. Whole float64 values are
// accepted because YAML and JSON decoders produce them for numbers.
func ParamInt(name string, value interface{}) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v == float64(int(v)) {
			return int(v), nil
		}
	}
	return 0, errors.NewValidationError(name, "must be an integer", value)
}

// ParamInt64 extracts an int64 hyperparameter such as a random seed.
func ParamInt64(name string, value interface{}) (int64, error) {
	v, err := ParamInt(name, value)
	return int64(v), err
}

// ParamFloat extracts a floating point hyperparameter.
func ParamFloat(name string, value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	}
	return 0, errors.NewValidationError(name, "must be a number", value)
}

// ParamString extracts a string hyperparameter.
func ParamString(name string, value interface{}) (string, error) {
	if v, ok := value.(string); ok {
		return v, nil
	}
	return "", errors.NewValidationError(name, "must be a string", value)
}

// ParamBool extracts a boolean hyperparameter.
func ParamBool(name string, value interface{}) (bool, error) {
	if v, ok := value.(bool); ok {
		return v, nil
	}
	return false, errors.NewValidationError(name, "must be a boolean", value)
}

// FormatParams renders a parameter set with sorted keys, e.g.
// "max_depth=30 n_estimators=100". Used for logs and reports.
func FormatParams(params map[string]interface{}) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := ""
	for i, k := range keys {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%v", k, params[k])
	}
	return out
}
