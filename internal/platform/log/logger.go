package log

import "go.uber.org/zap"

type Logger = zap.Logger

var (
	Any   = zap.Any
	Err   = zap.Error
	Str   = zap.String
	Strs  = zap.Strings
	Int   = zap.Int
	Int64 = zap.Int64
	Bool  = zap.Bool
)

// L returns the process-wide logger for packages that are not handed one
// explicitly. ReplaceGlobals installs it at startup.
var (
	L              = zap.L
	ReplaceGlobals = zap.ReplaceGlobals
)

func New(env string) *Logger {
	if env == "prod" {
		l, err := zap.NewProduction()
		if err != nil {
			return zap.NewNop()
		}

		return l
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}

	return l
}
