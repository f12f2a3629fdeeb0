package mqtt

import "errors"

// Sentinel kinds for MQTT errors.
var (
	ErrConnect   = errors.New("mqtt connect failed")
	ErrSubscribe = errors.New("mqtt subscribe failed")
	ErrNoBroker  = errors.New("mqtt broker not configured")
)
