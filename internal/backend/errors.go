package backend

import (
	"errors"
	"fmt"
)

// Error represents a configuration or resource problem detected while
// building or maintaining a backend actor.
//
// Errors of this type are never fatal: the world logs them and leaves the
// affected node inert. They are returned so callers and tests can tell the
// categories apart.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Node names the affected scene node.
	Node string

	// Err is the underlying native error, if any.
	Err error
}

// ErrorCode categorizes backend errors.
type ErrorCode string

const (
	// ErrCodeNoShapes indicates a rigid body without collision shapes.
	ErrCodeNoShapes ErrorCode = "NO_SHAPES"

	// ErrCodeInvalidControllerShapes indicates a controller that does not
	// have exactly one capsule shape.
	ErrCodeInvalidControllerShapes ErrorCode = "INVALID_CONTROLLER_SHAPES"

	// ErrCodeControllerCreateFailed indicates the native controller manager
	// refused to create the controller.
	ErrCodeControllerCreateFailed ErrorCode = "CONTROLLER_CREATE_FAILED"

	// ErrCodeStaticOnlyShapes indicates an operation that requires a
	// simulated dynamic body on a body with static-only geometry.
	ErrCodeStaticOnlyShapes ErrorCode = "STATIC_ONLY_SHAPES"

	// ErrCodeSceneInUse indicates two worlds claiming the same scene root.
	ErrCodeSceneInUse ErrorCode = "SCENE_IN_USE"

	// ErrCodeNativeFailure indicates a native create call failed.
	ErrCodeNativeFailure ErrorCode = "NATIVE_FAILURE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Node != "" {
		msg = fmt.Sprintf("%s (node=%s)", msg, e.Node)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying native error.
func (e *Error) Unwrap() error { return e.Err }

func newError(code ErrorCode, node, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Node: node}
}

func hasCode(err error, code ErrorCode) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}

// IsNoShapes reports whether err is a missing-shapes error.
func IsNoShapes(err error) bool { return hasCode(err, ErrCodeNoShapes) }

// IsInvalidControllerShapes reports whether err is a controller shape error.
func IsInvalidControllerShapes(err error) bool {
	return hasCode(err, ErrCodeInvalidControllerShapes)
}

// IsControllerCreateFailed reports whether err is a controller creation error.
func IsControllerCreateFailed(err error) bool {
	return hasCode(err, ErrCodeControllerCreateFailed)
}

// IsStaticOnlyShapes reports whether err is a static-only geometry error.
func IsStaticOnlyShapes(err error) bool { return hasCode(err, ErrCodeStaticOnlyShapes) }

// IsSceneInUse reports whether err is a shared scene root error.
func IsSceneInUse(err error) bool { return hasCode(err, ErrCodeSceneInUse) }

// NewSceneInUseError creates an Error for a scene root already claimed by
// another world.
func NewSceneInUseError(root string) *Error {
	return newError(ErrCodeSceneInUse, root, "scene root is already used by another world")
}
