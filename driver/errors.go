package driver

import (
	"errors"
	"fmt"

	"github.com/xet7/httpvfs/domain/model"
)

// Predefined errors
var (
	// ErrNoNameProvided is returned when the DSN does not name a mounted file
	ErrNoNameProvided = fmt.Errorf("%w: httpvfs driver: no database name provided", model.ErrConfig)

	// ErrNotMounted is returned when the DSN names a file that is not mounted
	ErrNotMounted = fmt.Errorf("%w: httpvfs driver: database is not mounted", model.ErrConfig)

	// ErrInvalidDSN is returned when the DSN options cannot be parsed
	ErrInvalidDSN = fmt.Errorf("%w: httpvfs driver: invalid dsn", model.ErrConfig)

	// ErrStmtExecContextNotSupported is returned when statement does not support ExecContext
	ErrStmtExecContextNotSupported = errors.New("httpvfs driver: statement does not support ExecContext")

	// ErrBeginTxNotSupported is returned when underlying connection does not support BeginTx
	ErrBeginTxNotSupported = errors.New("httpvfs driver: underlying connection does not support BeginTx")

	// ErrPrepareContextNotSupported is returned when underlying connection does not support PrepareContext
	ErrPrepareContextNotSupported = errors.New("httpvfs driver: underlying connection does not support PrepareContext")
)
