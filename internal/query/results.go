package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"imaging-archive-service/internal/dicom"
	apperrors "imaging-archive-service/internal/errors"
)

// State is the execution state of a query.
type State int

const (
	StateBuilt State = iota
	StateExecuting
	StateStreaming
	StateExhausted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateExecuting:
		return "executing"
	case StateStreaming:
		return "streaming"
	case StateExhausted:
		return "exhausted"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Results is the lazy, forward-only sequence of assembled attribute sets of
// one query execution. It is not safe for concurrent use and cannot be
// restarted. Close must be called when the caller stops early.
type Results struct {
	ctx    context.Context
	lq     LevelQuery
	cursor Cursor
	asm    *rowAssembler
	logger logrus.FieldLogger
	span   trace.Span
	start  time.Time

	state       State
	current     *dicom.Attributes
	err         error
	skipped     []*apperrors.DecodeError
	unsupported []dicom.Tag
	released    bool
}

// Next advances to the next result. It returns false when the sequence is
// exhausted, has failed or was closed.
func (r *Results) Next() bool {
	r.current = nil
	if r.released {
		return false
	}
	for {
		if err := r.ctx.Err(); err != nil {
			r.fail(err)
			return false
		}
		if !r.cursor.Next() {
			if err := r.cursor.Err(); err != nil {
				r.fail(apperrors.NewStoreFailure("scan", err))
				return false
			}
			r.finish(StateExhausted)
			return false
		}
		r.state = StateStreaming

		var row Row
		if err := r.cursor.Scan(r.lq.scanTargets(&row)...); err != nil {
			r.fail(apperrors.NewStoreFailure("scan", err))
			return false
		}
		attrs, err := r.lq.assemble(r.asm, &row)
		if err != nil {
			var decodeErr *apperrors.DecodeError
			if errors.As(err, &decodeErr) {
				r.skip(decodeErr)
				continue
			}
			r.fail(err)
			return false
		}
		if attrs == nil {
			queryRows.WithLabelValues(string(r.lq.Level()), "dropped").Inc()
			continue
		}
		queryRows.WithLabelValues(string(r.lq.Level()), "yielded").Inc()
		r.current = attrs
		return true
	}
}

// Attributes returns the current result. The caller owns the returned set.
func (r *Results) Attributes() *dicom.Attributes { return r.current }

// Err returns the error that ended the sequence, if any.
func (r *Results) Err() error { return r.err }

// State returns the execution state.
func (r *Results) State() State { return r.state }

// Skipped returns the rows skipped because an attribute blob could not be decoded.
func (r *Results) Skipped() []*apperrors.DecodeError {
	return append([]*apperrors.DecodeError(nil), r.skipped...)
}

// OptionalKeysNotSupported lists the requested keys that were not matched.
func (r *Results) OptionalKeysNotSupported() []dicom.Tag {
	return append([]dicom.Tag(nil), r.unsupported...)
}

// Close releases the cursor. It is safe to call more than once.
func (r *Results) Close() error {
	if r.released {
		return nil
	}
	r.logger.Debug("query closed before the end of the stream")
	return r.release("closed")
}

func (r *Results) skip(err *apperrors.DecodeError) {
	queryRows.WithLabelValues(string(r.lq.Level()), "skipped").Inc()
	r.skipped = append(r.skipped, err)
	r.span.AddEvent("row_skipped", trace.WithAttributes(attribute.String("error", err.Error())))
	r.logger.WithError(err).Warn("skipping row with undecodable attributes")
}

func (r *Results) fail(err error) {
	r.err = err
	r.span.RecordError(err)
	r.span.SetStatus(codes.Error, "query failed")
	r.logger.WithError(err).Error("query failed")
	r.finish(StateFailed)
}

func (r *Results) finish(state State) {
	r.state = state
	if state == StateExhausted {
		r.span.SetStatus(codes.Ok, "query complete")
	}
	if err := r.release(state.String()); err != nil {
		r.logger.WithError(err).Warn("closing cursor")
	}
}

func (r *Results) release(outcome string) error {
	if r.released {
		return nil
	}
	r.released = true
	err := r.cursor.Close()
	level := string(r.lq.Level())
	queryTotal.WithLabelValues(level, outcome).Inc()
	queryDuration.WithLabelValues(level).Observe(time.Since(r.start).Seconds())
	r.span.SetAttributes(attribute.Int("skipped_rows", len(r.skipped)))
	r.span.End()
	return err
}
