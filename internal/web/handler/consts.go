package handler

const (
	// BaseLayout is the default path for layout templates.
	BaseLayout = "layouts/base"

	// RootPath is the root path of the route table.
	RootPath = "/"

	// ErrNilDepsFatalLogMsg is used when a handler is initialized with a nil
	// dependency.
	ErrNilDepsFatalLogMsg = "router, cfg, db or views is nil"

	// FlashError is the flash key for error banners.
	FlashError = "error"

	// FlashSuccess is the flash key for success banners.
	FlashSuccess = "success"

	// GenericLoginError is shown for every failed login attempt, so the
	// response does not reveal whether the account exists or which backend
	// rejected it.
	GenericLoginError = "Invalid username or password"
)
