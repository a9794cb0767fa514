package mcumgr

import "errors"

var (
	// ErrManagerConfigNil indicates that a nil ManagerConfig was provided.
	ErrManagerConfigNil = errors.New("mcumgr: manager config is nil")

	// ErrTransportNil indicates that a nil transport was provided.
	ErrTransportNil = errors.New("mcumgr: transport is nil")

	// ErrManagerClosed indicates a request on a closed Manager.
	ErrManagerClosed = errors.New("mcumgr: manager closed")
)
