package cmd

import "errors"

// errUnknownLogLevel is returned for an unsupported --log-level value.
var errUnknownLogLevel = errors.New("unknown log level")
