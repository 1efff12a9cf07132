package internal

import (
	"time"
	"unicode/utf8"

	"mentorlink/errors"
)

// Config is populated from environment variables by go-env.
type Config struct {
	LogLevel string `env:"LOG_LEVEL,default=info"`

	Host         string        `env:"HOST,default=localhost"`
	Port         int           `env:"PORT,default=8080"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT,default=5s"`

	AuthSecretKey     string        `env:"AUTH_SECRET_KEY,required=true"`
	AuthIssuer        string        `env:"AUTH_ISSUER,default=mentorlink"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`
	IndexBatchSize int    `env:"INDEX_BATCH_SIZE,default=20"`
	LimitMessages  *int   `env:"LIMIT_MESSAGES"`

	BufferSize           int           `env:"BUFFER_SIZE,default=256"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=2s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s"`
	CharReplacement      string        `env:"CHARACTER_REPLACEMENT,default=*"`

	MetricInterval time.Duration `env:"METRIC_INTERVAL,default=1s"`
	ReportInterval time.Duration `env:"REPORT_INTERVAL,default=30s"`

	// DebugPort exposes the badger inspector when non-zero.
	DebugPort int `env:"DEBUG_PORT,default=0"`
}

// CharacterRune converts a single-character env value into a rune.
func CharacterRune(str string) (rune, error) {
	if utf8.RuneCountInString(str) != 1 {
		return 0, errors.ErrInvalidCharacter
	}
	r, _ := utf8.DecodeRuneInString(str)
	return r, nil
}
