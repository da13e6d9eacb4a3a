package internal

import (
	"context"
	"io"

	"github.com/matrix-org/util"
)

// CloseAndLogIfError closes the given closer, logging any error at the
// request logger for ctx. Helper for deferred Close calls on rows and
// response bodies where the error would otherwise be dropped.
func CloseAndLogIfError(ctx context.Context, closer io.Closer, message string) {
	if closer == nil {
		return
	}
	err := closer.Close()
	if ctx == nil {
		ctx = context.TODO()
	}
	if err != nil {
		util.GetLogger(ctx).WithError(err).Error(message)
	}
}
