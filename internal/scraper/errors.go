package scraper

import (
	"errors"
	"fmt"
)

// ErrInvalidURL is returned for input that is not an Amazon India URL.
var ErrInvalidURL = errors.New("invalid amazon india product url")

// Stage names the part of a scrape that failed.
type Stage string

const (
	StageValidation Stage = "validation"
	StageSession    Stage = "session"
	StageNavigation Stage = "navigation"
	StageExtraction Stage = "extraction"
)

// ScrapeError wraps a failure with the stage and target it happened at.
type ScrapeError struct {
	Stage Stage
	URL   string
	Err   error
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Stage, e.URL, e.Err)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

func newScrapeError(stage Stage, url string, err error) *ScrapeError {
	return &ScrapeError{Stage: stage, URL: url, Err: err}
}
