package preprocessing

import (
	"fmt"
	"sort"

	"github.com/YuminosukeSato/blight/core/model"
	"github.com/YuminosukeSato/blight/pkg/errors"
)

// UnknownCode は語彙にない値に割り当てられるコード（WithUnknownCode 指定時）
const UnknownCode = -1

// LabelEncoder は文字列ラベルを整数コードに変換する
//
// 語彙は重複を除いてソートされた値の列で、コードはその位置。
// 同じ入力からは常に同じコードが得られる。
type LabelEncoder struct {
	state *model.StateManager

	classes []string
	index   map[string]int

	// handleUnknown が true の場合、未知の値は UnknownCode になる
	handleUnknown bool
}

// LabelEncoderOption はLabelEncoderの設定オプション
type LabelEncoderOption func(*LabelEncoder)

// WithUnknownCode は未知の値をエラーにせず UnknownCode に変換する
func WithUnknownCode() LabelEncoderOption {
	return func(e *LabelEncoder) {
		e.handleUnknown = true
	}
}

// NewLabelEncoder は新しいLabelEncoderを作成する
func NewLabelEncoder(opts ...LabelEncoderOption) *LabelEncoder {
	e := &LabelEncoder{state: model.NewStateManager()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fit は与えられたすべての値の和集合から語彙を作る
//
//	enc.Fit(trainValues, testValues) // 和集合で学習
func (e *LabelEncoder) Fit(values ...[]string) error {
	seen := make(map[string]struct{})
	total := 0
	for _, vs := range values {
		total += len(vs)
		for _, v := range vs {
			seen[v] = struct{}{}
		}
	}
	if total == 0 {
		return errors.NewModelError("LabelEncoder.Fit", "empty data", errors.ErrEmptyData)
	}

	classes := make([]string, 0, len(seen))
	for v := range seen {
		classes = append(classes, v)
	}
	sort.Strings(classes)

	e.classes = classes
	e.index = make(map[string]int, len(classes))
	for i, c := range classes {
		e.index[c] = i
	}

	e.state.SetDimensions(1, total)
	e.state.SetFitted()
	return nil
}

// Transform は値をコードに変換する
func (e *LabelEncoder) Transform(values []string) ([]int, error) {
	if err := e.state.RequireFitted("LabelEncoder", "Transform"); err != nil {
		return nil, err
	}

	codes := make([]int, len(values))
	for i, v := range values {
		code, ok := e.index[v]
		if !ok {
			if !e.handleUnknown {
				return nil, errors.NewValueError("LabelEncoder.Transform", fmt.Sprintf("y contains previously unseen label %q", v))
			}
			code = UnknownCode
		}
		codes[i] = code
	}
	return codes, nil
}

// FitTransform は語彙を学習して同じ値を変換する
func (e *LabelEncoder) FitTransform(values []string) ([]int, error) {
	if err := e.Fit(values); err != nil {
		return nil, err
	}
	return e.Transform(values)
}

// InverseTransform はコードを元の値に戻す
func (e *LabelEncoder) InverseTransform(codes []int) ([]string, error) {
	if err := e.state.RequireFitted("LabelEncoder", "InverseTransform"); err != nil {
		return nil, err
	}

	values := make([]string, len(codes))
	for i, c := range codes {
		if c < 0 || c >= len(e.classes) {
			return nil, errors.NewValueError("LabelEncoder.InverseTransform", fmt.Sprintf("code %d is out of range [0, %d)", c, len(e.classes)))
		}
		values[i] = e.classes[c]
	}
	return values, nil
}

// Classes は学習した語彙をコード順で返す
func (e *LabelEncoder) Classes() []string {
	out := make([]string, len(e.classes))
	copy(out, e.classes)
	return out
}

// Len は語彙のサイズを返す
func (e *LabelEncoder) Len() int {
	return len(e.classes)
}

// IsFitted は学習済みかどうかを返す
func (e *LabelEncoder) IsFitted() bool {
	return e.state.IsFitted()
}

// GetParams はエンコーダのパラメータを取得する
func (e *LabelEncoder) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"handle_unknown": e.handleUnknown,
	}
}
