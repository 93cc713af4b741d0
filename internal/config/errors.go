package config

import "errors"

// ErrLoadConfig wraps failures reading a source: the YAML file, the dotenv
// file or TAPBATTLE_ variables. ErrInvalidConfig carries every validation
// problem joined into one message.
var (
	ErrLoadConfig    = errors.New("config: cannot load")
	ErrInvalidConfig = errors.New("config: invalid values")
)
