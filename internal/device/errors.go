package device

import "errors"

// Sentinel errors for device operations.
//
// Use errors.Is() to check error types:
//
//	dev, err := repo.GetByDeviceID(ctx, id)
//	if errors.Is(err, device.ErrNotFound) {
//	    // handle missing device
//	}
var (
	// ErrNotFound indicates the requested device does not exist.
	ErrNotFound = errors.New("device not found")

	// ErrDuplicateID indicates the device identifier is already taken.
	ErrDuplicateID = errors.New("device id already exists")

	// ErrInvalidType indicates an unknown device type.
	ErrInvalidType = errors.New("invalid device type")

	// ErrInvalidStatus indicates an unknown device status.
	ErrInvalidStatus = errors.New("invalid device status")

	// ErrEmptyDeviceID indicates a missing device identifier.
	ErrEmptyDeviceID = errors.New("device id must not be empty")

	// ErrImmutableDeviceID indicates an attempt to change a device's
	// stable identifier after creation.
	ErrImmutableDeviceID = errors.New("device id is immutable")
)
