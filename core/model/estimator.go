package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Classifier は確率を出力できる分類器のインターフェース
type Classifier interface {
	Fitter
	Predictor

	// PredictProba は各クラスの確率を返す (n_samples × n_classes)
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// Classes は学習時に見つかったクラスラベルを昇順で返す
	Classes() []int
}

// Transformer はデータ変換のインターフェース
type Transformer interface {
	// Fit は変換に必要なパラメータを学習する
	Fit(X mat.Matrix) error

	// Transform はデータを変換する
	Transform(X mat.Matrix) (mat.Matrix, error)

	// FitTransform はFitとTransformを同時に実行する
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// PositiveClassProba returns the probability column of the given class label.
// The column is located through Classes so that estimators trained on a
// subset of labels still line up with the caller's notion of "positive".
func PositiveClassProba(c Classifier, X mat.Matrix, positive int) ([]float64, error) {
	proba, err := c.PredictProba(X)
	if err != nil {
		return nil, err
	}

	rows, _ := proba.Dims()
	out := make([]float64, rows)

	col := -1
	for i, class := range c.Classes() {
		if class == positive {
			col = i
			break
		}
	}
	if col < 0 {
		// 正例クラスを学習していない場合、確率は常に0
		return out, nil
	}

	for i := 0; i < rows; i++ {
		out[i] = proba.At(i, col)
	}
	return out, nil
}
