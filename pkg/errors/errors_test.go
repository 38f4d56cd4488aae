package errors

import (
	"fmt"
	"math"
	"strings"
	"testing"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name     string
		op       string
		kind     string
		err      error
		wantMsg  string
		hasStack bool
	}{
		{
			name:     "with original error",
			op:       "Fit",
			kind:     "invalid input",
			err:      fmt.Errorf("test error"),
			wantMsg:  "blight: Fit: invalid input: test error",
			hasStack: true,
		},
		{
			name:     "without original error",
			op:       "Predict",
			kind:     "not fitted",
			err:      nil,
			wantMsg:  "blight: Predict: not fitted",
			hasStack: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)

			// 基本的なエラーメッセージの確認
			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			// スタックトレースの存在確認
			if tt.hasStack {
				formatted := fmt.Sprintf("%+v", err)
				if !strings.Contains(formatted, "errors_test.go") {
					t.Error("Expected stack trace to contain test file name")
				}
			}

			// ModelError型にキャスト可能か確認
			var modelErr *ModelError
			if !As(err, &modelErr) {
				t.Error("Error should be castable to *ModelError")
			}

			// ModelError型へのキャストのみ確認
		})
	}
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Predict", 10, 10, 0)

	// 基本的なエラーメッセージの確認
	want := "blight: Predict: dimension mismatch on axis 0 (rows). Expected 10, got 10"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	// DimensionError型にキャスト可能か確認
	var dimErr *DimensionError
	if !As(err, &dimErr) {
		t.Error("Error should be castable to *DimensionError")
	}

	// DimensionError型へのキャストのみ確認
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("LogisticRegression", "Predict")

	// 基本的なエラーメッセージの確認
	want := "blight: LogisticRegression: this model is not fitted yet. Call Fit() before using Predict()"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	// NotFittedError型にキャスト可能か確認
	var notFittedErr *NotFittedError
	if !As(err, &notFittedErr) {
		t.Error("Error should be castable to *NotFittedError")
	}
}

func TestNewValueError(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		param   string
		value   interface{}
		message string
		wantMsg string
	}{
		{
			name:    "with message",
			op:      "SetParam",
			param:   "learning_rate",
			value:   -0.5,
			message: "must be positive",
			wantMsg: "blight: SetParam: learning_rate: -0.5 (must be positive)",
		},
		{
			name:    "without message",
			op:      "SetParam",
			param:   "n_components",
			value:   0,
			message: "",
			wantMsg: "blight: SetParam: n_components: 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.message != "" {
				err = NewValueError(tt.op, fmt.Sprintf("%s: %v (%s)", tt.param, tt.value, tt.message))
			} else {
				err = NewValueError(tt.op, fmt.Sprintf("%s: %v", tt.param, tt.value))
			}

			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			// ValueError型にキャスト可能か確認
			var valErr *ValueError
			if !As(err, &valErr) {
				t.Error("Error should be castable to *ValueError")
			}
		})
	}
}

func TestNewConvergenceWarning(t *testing.T) {
	warn := NewConvergenceWarning("GradientDescent", 1000, "loss did not decrease")

	// 基本的なエラーメッセージの確認
	want := "GradientDescent failed to converge after 1000 iterations: loss did not decrease"
	if warn.Error() != want {
		t.Errorf("Error() = %v, want %v", warn.Error(), want)
	}

	// ConvergenceWarning型へのキャストのみ確認
	var convWarn *ConvergenceWarning
	if !As(warn, &convWarn) {
		t.Error("Warning should be castable to *ConvergenceWarning")
	}
}

func TestWrapAndIs(t *testing.T) {
	// 元のエラー
	baseErr := ErrUnmatchedRows

	// ラップ
	wrapped := Wrap(baseErr, "in AttachLocations")

	// Is関数でチェック
	if !Is(wrapped, ErrUnmatchedRows) {
		t.Error("Expected Is(wrapped, ErrUnmatchedRows) to be true")
	}

	// エラーメッセージの確認
	if !strings.Contains(wrapped.Error(), "in AttachLocations") {
		t.Error("Expected wrapped error to contain wrapping message")
	}
}

func TestWrapf(t *testing.T) {
	// 元のエラー
	baseErr := ErrEmptyData

	// フォーマット付きラップ
	wrapped := Wrapf(baseErr, "in %s: expected %d, got %d", "Predict", 10, 5)

	// Is関数でチェック
	if !Is(wrapped, ErrEmptyData) {
		t.Error("Expected Is(wrapped, ErrEmptyData) to be true")
	}

	// エラーメッセージの確認
	expectedMsg := "in Predict: expected 10, got 5"
	if !strings.Contains(wrapped.Error(), expectedMsg) {
		t.Errorf("Expected wrapped error to contain %q", expectedMsg)
	}
}

func TestErrorChaining(t *testing.T) {
	// エラーチェーンの作成
	err1 := fmt.Errorf("base error")
	err2 := Wrap(err1, "wrapped once")
	err3 := NewModelError("Operation", "failed", err2)

	// チェーン全体を確認
	if !strings.Contains(err3.Error(), "base error") {
		t.Error("Expected error chain to contain base error")
	}

	// スタックトレースの確認（詳細表示）
	formatted := fmt.Sprintf("%+v", err3)
	if !strings.Contains(formatted, "errors_test.go") {
		t.Error("Expected detailed error to contain stack trace")
	}
}

func TestNewSchemaError(t *testing.T) {
	tests := []struct {
		name    string
		table   string
		column  string
		reason  string
		wantMsg string
	}{
		{
			name:    "with column",
			table:   "train",
			column:  "compliance",
			reason:  "required column is missing",
			wantMsg: `blight: schema error in table "train", column "compliance": required column is missing`,
		},
		{
			name:    "table level",
			table:   "latlons",
			reason:  "duplicate key",
			wantMsg: `blight: schema error in table "latlons": duplicate key`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewSchemaError(tt.table, tt.column, tt.reason)
			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			var schemaErr *SchemaError
			if !As(Wrap(err, "load"), &schemaErr) {
				t.Fatal("Error should be castable to *SchemaError through a wrap")
			}
			if schemaErr.Table != tt.table {
				t.Errorf("Table = %q, want %q", schemaErr.Table, tt.table)
			}
		})
	}
}

func TestWarnRoutesToZerologFunc(t *testing.T) {
	var got []error
	SetZerologWarnFunc(func(w error) { got = append(got, w) })
	defer SetZerologWarnFunc(nil)

	Warn(NewUndefinedMetricWarning("roc_auc", "only one class present in y_true", 0.5))

	if len(got) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(got))
	}
	var metricWarn *UndefinedMetricWarning
	if !As(got[0], &metricWarn) || metricWarn.Metric != "roc_auc" {
		t.Errorf("unexpected warning %v", got[0])
	}
}

func TestWarnHandlerTakesPrecedence(t *testing.T) {
	var logged, handled []error
	SetZerologWarnFunc(func(w error) { logged = append(logged, w) })
	defer SetZerologWarnFunc(nil)
	SetWarningHandler(func(w error) { handled = append(handled, w) })

	Warn(NewDataWarning("StratifiedKFold.Split", "small class"))
	if len(handled) != 1 || len(logged) != 0 {
		t.Fatalf("handler got %d, zerolog got %d; want 1 and 0", len(handled), len(logged))
	}

	// ハンドラを外すと zerolog に戻る
	SetWarningHandler(nil)
	Warn(NewDataWarning("StratifiedKFold.Split", "small class"))
	if len(logged) != 1 {
		t.Fatalf("expected zerolog to receive the warning, got %d", len(logged))
	}
}

func TestCheckMatrix(t *testing.T) {
	clean := denseStub{{1, 2}, {3, 4}}
	if err := CheckMatrix("features", clean, 2, 2, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dirty := denseStub{{1, math.NaN()}, {3, 4}}
	err := CheckMatrix("features", dirty, 2, 2, 0)
	var numErr *NumericalInstabilityError
	if !As(err, &numErr) {
		t.Fatalf("expected NumericalInstabilityError, got %v", err)
	}
	if numErr.Context["rows"] != 2 {
		t.Errorf("expected rows in context, got %v", numErr.Context)
	}
}

func TestSigmoid(t *testing.T) {
	tests := []struct {
		z    float64
		want float64
	}{
		{0, 0.5},
		{1000, 1},
		{-1000, 0},
	}
	for _, tt := range tests {
		got := Sigmoid(tt.z)
		if math.Abs(got-tt.want) > 1e-12 || math.IsNaN(got) {
			t.Errorf("Sigmoid(%v) = %v, want %v", tt.z, got, tt.want)
		}
	}
	if s := Sigmoid(2) + Sigmoid(-2); math.Abs(s-1) > 1e-12 {
		t.Errorf("Sigmoid(2)+Sigmoid(-2) = %v, want 1", s)
	}
}

type denseStub [][]float64

func (d denseStub) At(i, j int) float64 { return d[i][j] }
