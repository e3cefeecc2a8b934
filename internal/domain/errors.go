package domain

import (
	"errors"
	"fmt"
)

// ErrMissingCredentials is returned when the model endpoint cannot be used.
var ErrMissingCredentials = errors.New("missing model credentials")

// NoFeedSourceError reports a source directory without any OPML file.
type NoFeedSourceError struct {
	Dir string
}

func (e *NoFeedSourceError) Error() string {
	return fmt.Sprintf("no .opml files found in %s", e.Dir)
}
