package session

import "errors"

var (
	// ErrNoRouter is returned by Subscribe when the manager has no router.
	ErrNoRouter = errors.New("session: no notification router")

	// ErrUnknownSession is returned for an ID with no open session.
	ErrUnknownSession = errors.New("session: unknown session")
)
