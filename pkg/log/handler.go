package log

import (
	"context"
	"fmt"
	"log/slog"

	crdb "github.com/cockroachdb/errors"

	"github.com/YuminosukeSato/blight/pkg/errors"
)

// ErrFmtHandler is a slog handler that expands the error attribute of a
// record: it adds the cockroachdb stack trace and the error type, and for
// schema and dimension errors the offending table, column or shape, so that
// a failed run can be filtered by table in Cloud Logging.
type ErrFmtHandler struct {
	handler slog.Handler
}

// WrapByErrFmtHandler wraps handler with ErrFmtHandler.
func WrapByErrFmtHandler(handler slog.Handler) slog.Handler {
	return &ErrFmtHandler{handler: handler}
}

func (eh *ErrFmtHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return eh.handler.Enabled(ctx, l)
}

func (eh *ErrFmtHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	r.Attrs(func(attr slog.Attr) bool {
		if attr.Key != ErrAttrKey {
			return true
		}
		err, _ = attr.Value.Any().(error)
		return false
	})
	if err != nil {
		r.AddAttrs(errorAttrs(err)...)
	}
	return eh.handler.Handle(ctx, r)
}

func (eh *ErrFmtHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ErrFmtHandler{handler: eh.handler.WithAttrs(attrs)}
}

func (eh *ErrFmtHandler) WithGroup(g string) slog.Handler {
	return &ErrFmtHandler{handler: eh.handler.WithGroup(g)}
}

// errorAttrs returns the attributes derived from err.
func errorAttrs(err error) []slog.Attr {
	attrs := []slog.Attr{slog.String(ErrorTypeKey, fmt.Sprintf("%T", crdb.UnwrapAll(err)))}

	var schemaErr *errors.SchemaError
	if errors.As(err, &schemaErr) {
		attrs = append(attrs, slog.String(TableKey, schemaErr.Table))
		if schemaErr.Column != "" {
			attrs = append(attrs, slog.String(ColumnKey, schemaErr.Column))
		}
	}
	var dimErr *errors.DimensionError
	if errors.As(err, &dimErr) {
		attrs = append(attrs, slog.Int("dimension.expected", dimErr.Expected), slog.Int("dimension.got", dimErr.Got))
	}

	if st := extractStacktrace(err); st != "" {
		attrs = append(attrs, slog.String(StacktraceAttrKey, st))
	}
	return attrs
}

func extractStacktrace(err error) string {
	// 最初の安全な詳細がスタックトレース
	if details := crdb.GetSafeDetails(err).SafeDetails; len(details) > 0 {
		return details[0]
	}
	return ""
}
