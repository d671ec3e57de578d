package modem

import "errors"

var (
	// ErrNoDialer is returned when a Modem is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when an operation is attempted on a Modem
	// that has not been successfully initialized.
	//
	// This can occur if the dialer returned no transport or if the Modem was
	// not created via New.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Modem that has
	// already been closed, and by every request made after Close.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrSIMPinRequired is returned when the SIM card requires a PIN and no
	// PIN was provided in the Config.
	//
	// Callers may handle this error specially (for example, by prompting
	// the user for a PIN) and retry initialization.
	ErrSIMPinRequired = errors.New("SIM PIN required")

	// ErrLoopRunning is returned by Loop when another Loop is already
	// serving the modem.
	ErrLoopRunning = errors.New("modem loop already running")

	// ErrBusy is returned when a request is made while another one is in
	// progress. Requests are not queued.
	ErrBusy = errors.New("modem busy")

	// ErrTimeout reports a step that got no terminal answer in time.
	ErrTimeout = errors.New("modem response timeout")

	// ErrAborted is returned to the caller of a transaction ended by Abort
	// or Reset.
	ErrAborted = errors.New("transaction aborted")

	// ErrSendWhileAsleep is the panic value raised when a command is about
	// to be written while the modem sleeps. It is a programming error in
	// the variant's low power handling.
	ErrSendWhileAsleep = errors.New("command sent while modem asleep")

	// ErrInvalidRequest is returned for a request with no service.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNoTransaction is returned when a step is driven with no
	// transaction open.
	ErrNoTransaction = errors.New("no transaction in progress")

	// ErrCommandBuild is returned when the variant could not build the
	// command of a step and recorded no reason.
	ErrCommandBuild = errors.New("command could not be built")

	// ErrUnexpectedResponse is returned when a service answered with a
	// response of the wrong type.
	ErrUnexpectedResponse = errors.New("unexpected response type")
)
