package flash

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/flashcue-core/internal/session"
)

var errSessionGone = errors.New("session disconnected")

// runSequence performs duplicate, enable, wait, disable, remove and fills in
// exec.Status. Once a duplicate exists, remove is always attempted unless
// the session itself has gone away.
func (e *Executor) runSequence(ctx context.Context, req ActionRequest, exec *Execution) {
	sess, err := e.sessions.Get(req.SessionID)
	if err != nil {
		exec.fail(StepSession, err)
		if errors.Is(err, session.ErrNotConnected) {
			exec.Status = StatusCancelled
		} else {
			exec.Status = StatusFailed
		}
		return
	}

	fctx, cancel := context.WithTimeout(ctx, e.maxFlashTime)
	defer cancel()
	stop := context.AfterFunc(sess.Context(), cancel)
	defer stop()

	if stopped(fctx, sess) {
		e.interrupted(exec, StepDuplicate, sess, fctx)
		exec.failIfUnset()
		return
	}

	handle, err := sess.DuplicateElement(fctx, req.Scene, req.Element)
	if err != nil {
		if stopped(fctx, sess) {
			e.interrupted(exec, StepDuplicate, sess, fctx)
			exec.failIfUnset()
			return
		}
		exec.fail(StepDuplicate, err)
		exec.Status = StatusFailed
		return
	}

	if err := sess.SetElementEnabled(fctx, req.Scene, handle, true); err != nil {
		if stopped(fctx, sess) {
			e.interrupted(exec, StepEnable, sess, fctx)
		} else {
			exec.fail(StepEnable, err)
		}
		exec.failIfUnset()
		e.cleanup(fctx, sess, req, handle, exec, false)
		return
	}

	timer := time.NewTimer(req.Duration)
	select {
	case <-timer.C:
	case <-fctx.Done():
		timer.Stop()
		e.interrupted(exec, StepWait, sess, fctx)
	}

	e.cleanup(fctx, sess, req, handle, exec, true)

	if exec.Status == "" {
		if exec.FailedStep == "" {
			exec.Status = StatusCompleted
		} else {
			exec.Status = StatusPartial
		}
	}
}

// stopped reports whether the flash context or the session has ended. The
// session check is direct because the AfterFunc cancel runs asynchronously.
func stopped(fctx context.Context, sess *session.Session) bool {
	return fctx.Err() != nil || sess.Context().Err() != nil
}

// interrupted classifies a done flash context. A disconnected session or a
// cancelled caller marks the flash cancelled; a hard timeout is a failure.
func (e *Executor) interrupted(exec *Execution, step Step, sess *session.Session, fctx context.Context) {
	switch {
	case sess.Context().Err() != nil:
		exec.fail(step, errSessionGone)
		exec.Status = StatusCancelled
	case errors.Is(fctx.Err(), context.Canceled):
		exec.fail(step, fctx.Err())
		exec.Status = StatusCancelled
	default:
		exec.fail(step, fmt.Errorf("flash exceeded %s: %w", e.maxFlashTime, fctx.Err()))
	}
}

// cleanup disables (when the duplicate was shown) and removes the duplicate.
// With the session gone the client is closed, so nothing is attempted.
func (e *Executor) cleanup(fctx context.Context, sess *session.Session, req ActionRequest, h session.Handle, exec *Execution, shown bool) {
	if sess.Context().Err() != nil {
		return
	}

	ctx := fctx
	if fctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(sess.Context(), cleanupTimeout)
		defer cancel()
	}

	if shown {
		if err := sess.SetElementEnabled(ctx, req.Scene, h, false); err != nil {
			if sess.Context().Err() != nil {
				e.interrupted(exec, StepDisable, sess, ctx)
				return
			}
			exec.fail(StepDisable, err)
		}
	}

	if err := sess.RemoveElement(ctx, req.Scene, h); err != nil {
		if sess.Context().Err() != nil {
			e.interrupted(exec, StepRemove, sess, ctx)
			return
		}
		exec.fail(StepRemove, err)
		e.logger.Warn("flash duplicate may be stranded",
			"session_id", req.SessionID,
			"scene", req.Scene,
			"element", req.Element,
			"handle", int64(h),
			"error", err,
		)
	}
}
