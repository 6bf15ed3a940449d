package handler

const (
	// BaseLayout is the default path for layout templates.
	BaseLayout = "layouts/base"

	// RouterRootPath is the root path inside a route group.
	RouterRootPath = "/"

	// ErrNilDepsFatalLogMsg is used if the app or deps pointer is nil.
	ErrNilDepsFatalLogMsg = "app or deps is nil"
)
