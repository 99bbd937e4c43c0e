package common

import "errors"

type CustomError struct {
	error
	code int
}

var DeviceOutOfMemoryError = CustomError{
	error: errors.New("device out of memory"),
	code:  1,
}
var DeviceFaultError = CustomError{
	error: errors.New("device fault"),
	code:  2,
}
var DeviceClosedError = CustomError{
	error: errors.New("device is closed"),
	code:  3,
}
var SlotInFlightError = CustomError{
	error: errors.New("buffer slot is owned by the device"),
	code:  4,
}
var CorruptedStreamError = CustomError{
	error: errors.New("corrupted compressed stream"),
	code:  5,
}
var InvalidConfigError = CustomError{
	error: errors.New("invalid configuration"),
	code:  6,
}
