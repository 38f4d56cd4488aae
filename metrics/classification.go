// Package metrics は分類モデルの評価指標を提供する
package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/blight/pkg/errors"
)

// logLossEps は log(0) を避けるためのクリッピング幅
const logLossEps = 1e-15

// checkPair は2つのベクトルが空でなく同じ長さであることを検証する
func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil {
		return 0, errors.NewValueError(op, "empty vector")
	}
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

// checkBinary はラベルが0/1のみであることを検証し、陽性数を返す
func checkBinary(op string, yTrue *mat.VecDense) (int, error) {
	nPos := 0
	for i := 0; i < yTrue.Len(); i++ {
		switch yTrue.AtVec(i) {
		case 1:
			nPos++
		case 0:
		default:
			return 0, errors.NewValueError(op, "y_true must contain only binary labels (0 or 1)")
		}
	}
	return nPos, nil
}

// AUC はROC曲線下の面積を計算する
//
// Mann-Whitney の U 統計量として計算し、同順位のスコアには平均順位を与える。
// y_true が単一クラスのみの場合は UndefinedMetricWarning を出して 0.5 を返す。
func AUC(yTrue, yScore *mat.VecDense) (float64, error) {
	n, err := checkPair("AUC", yTrue, yScore)
	if err != nil {
		return 0, err
	}
	nPos, err := checkBinary("AUC", yTrue)
	if err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		if math.IsNaN(yScore.AtVec(i)) {
			return 0, errors.NewValueError("AUC", "y_score contains NaN")
		}
	}

	nNeg := n - nPos
	if nPos == 0 || nNeg == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("roc_auc", "only one class present in y_true", 0.5))
		return 0.5, nil
	}

	// スコア昇順に並べて順位を付ける
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return yScore.AtVec(idx[a]) < yScore.AtVec(idx[b])
	})

	var rankSumPos float64
	for start := 0; start < n; {
		end := start + 1
		for end < n && yScore.AtVec(idx[end]) == yScore.AtVec(idx[start]) {
			end++
		}
		// 順位は1始まり、同順位グループ [start, end) の平均順位
		avgRank := float64(start+end+1) / 2
		for k := start; k < end; k++ {
			if yTrue.AtVec(idx[k]) == 1 {
				rankSumPos += avgRank
			}
		}
		start = end
	}

	u := rankSumPos - float64(nPos)*float64(nPos+1)/2
	return u / (float64(nPos) * float64(nNeg)), nil
}

// AUCMatrix は行列形式の入力に対してAUCを計算する（先頭列を使用）
func AUCMatrix(yTrue, yScore mat.Matrix) (float64, error) {
	if yTrue == nil || yScore == nil {
		return 0, errors.NewValueError("AUCMatrix", "nil matrix")
	}
	rTrue, cTrue := yTrue.Dims()
	rScore, cScore := yScore.Dims()
	if rTrue == 0 || cTrue == 0 || rScore == 0 || cScore == 0 {
		return 0, errors.NewValueError("AUCMatrix", "empty matrix")
	}
	if rTrue != rScore {
		return 0, errors.NewDimensionError("AUCMatrix", rTrue, rScore, 0)
	}

	return AUC(firstColumn(yTrue), firstColumn(yScore))
}

func firstColumn(m mat.Matrix) *mat.VecDense {
	r, _ := m.Dims()
	v := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		v.SetVec(i, m.At(i, 0))
	}
	return v
}

// BinaryLogLoss は二値分類の交差エントロピー損失を計算する
//
// 予測確率は [eps, 1-eps] にクリップされる。
func BinaryLogLoss(yTrue, yProb *mat.VecDense) (float64, error) {
	n, err := checkPair("BinaryLogLoss", yTrue, yProb)
	if err != nil {
		return 0, err
	}
	if _, err := checkBinary("BinaryLogLoss", yTrue); err != nil {
		return 0, err
	}

	var sum float64
	for i := 0; i < n; i++ {
		p := errors.ClipValue(yProb.AtVec(i), logLossEps, 1-logLossEps)
		if yTrue.AtVec(i) == 1 {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(n), nil
}

// ClassificationError は誤分類率を計算する
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	acc, err := accuracy("ClassificationError", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}

// Accuracy は正解率を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	return accuracy("Accuracy", yTrue, yPred)
}

func accuracy(op string, yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair(op, yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// ROCCurve は閾値ごとの偽陽性率・真陽性率を返す
//
// 閾値はスコアの降順に並んだ異なる値で、先頭に +Inf（すべて陰性と判定）が入る。
// 曲線は必ず (0, 0) から始まり (1, 1) で終わる。
func ROCCurve(yTrue, yScore *mat.VecDense) (fpr, tpr, thresholds []float64, err error) {
	n, err := checkPair("ROCCurve", yTrue, yScore)
	if err != nil {
		return nil, nil, nil, err
	}
	nPos, err := checkBinary("ROCCurve", yTrue)
	if err != nil {
		return nil, nil, nil, err
	}
	nNeg := n - nPos
	if nPos == 0 || nNeg == 0 {
		return nil, nil, nil, errors.NewValueError("ROCCurve", "y_true must contain both classes")
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return yScore.AtVec(idx[a]) > yScore.AtVec(idx[b])
	})

	fpr = []float64{0}
	tpr = []float64{0}
	thresholds = []float64{math.Inf(1)}

	var tp, fp int
	for k := 0; k < n; k++ {
		if yTrue.AtVec(idx[k]) == 1 {
			tp++
		} else {
			fp++
		}
		// 同じスコアが続く間は点を打たない
		if k+1 < n && yScore.AtVec(idx[k+1]) == yScore.AtVec(idx[k]) {
			continue
		}
		fpr = append(fpr, float64(fp)/float64(nNeg))
		tpr = append(tpr, float64(tp)/float64(nPos))
		thresholds = append(thresholds, yScore.AtVec(idx[k]))
	}
	return fpr, tpr, thresholds, nil
}

// TrapezoidArea は (x, y) 折れ線の下の面積を台形則で求める
func TrapezoidArea(x, y []float64) float64 {
	var area float64
	for i := 1; i < len(x) && i < len(y); i++ {
		area += (x[i] - x[i-1]) * (y[i] + y[i-1]) / 2
	}
	return area
}
