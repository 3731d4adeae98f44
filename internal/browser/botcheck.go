package browser

import (
	"errors"
	"strings"
)

// ErrCaptcha is returned when Amazon serves a captcha instead of the page.
var ErrCaptcha = errors.New("amazon captcha page served")

const continueButtonSelector = `button:has-text("Continue shopping"), input[type="submit"][value*="Continue"], .a-button-primary`

type blockKind int

const (
	blockNone blockKind = iota
	blockContinue
	blockCaptcha
)

func detectBlock(content string) blockKind {
	// The continue-shopping interstitial posts to the captcha endpoint too,
	// so it has to be recognised first.
	switch {
	case strings.Contains(content, "Click the button below to continue shopping"):
		return blockContinue
	case strings.Contains(content, "Enter the characters you see below"),
		strings.Contains(content, "/errors/validateCaptcha"):
		return blockCaptcha
	default:
		return blockNone
	}
}
