package auth

import "errors"

var (
	// ErrValidation is returned when the supplied username or password is empty.
	ErrValidation = errors.New("username and password are required")

	// ErrAccountLocked is returned when the account has exceeded the failed
	// attempt limit and the lockout window has not yet elapsed.
	ErrAccountLocked = errors.New("account is temporarily locked")

	// ErrInvalidCredentials is returned when the provided username and/or
	// password are not valid for the selected backend.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrUserNotFound is returned when a user cannot be found in the database or directory.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAccountDisabled is returned when attempting to authenticate a disabled user account.
	ErrUserAccountDisabled = errors.New("user account is disabled")

	// ErrMultipleUsersFound is returned when a query expected one user but found multiple.
	// This typically indicates a misconfigured directory filter or duplicate entries.
	ErrMultipleUsersFound = errors.New("multiple users found")

	// ErrDirectoryUnavailable is returned when the directory service cannot be
	// reached or is misconfigured. It must never be mistaken for bad
	// credentials in logs, even though the user-facing message is identical.
	ErrDirectoryUnavailable = errors.New("directory service unavailable")

	// ErrDirectoryDisabled is returned when directory authentication is
	// requested but disabled via configuration.
	ErrDirectoryDisabled = errors.New("directory authentication is disabled")

	// ErrUnknownStrategy is returned for an authentication strategy other than
	// local or directory.
	ErrUnknownStrategy = errors.New("unknown authentication strategy")

	// ErrUserNameExists is returned when attempting to create a user with a
	// username that already exists.
	ErrUserNameExists = errors.New("user with this username already exists")

	// ErrInvalidOldPassword is returned when the provided old password does not
	// match the user's current password.
	ErrInvalidOldPassword = errors.New("invalid old password")
)
