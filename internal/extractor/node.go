package extractor

import "errors"

// ErrNotInteractive is returned by nodes that cannot be clicked, such as
// nodes of a static HTML snapshot.
var ErrNotInteractive = errors.New("node is not interactive")

// Node is the set of DOM capabilities the extraction routine needs from a
// rendered page. The document root is itself a Node.
//
// QuerySelector returns (nil, nil) when nothing matches. Errors are reserved
// for automation faults (dead page, crashed browser) and abort extraction.
type Node interface {
	QuerySelector(selector string) (Node, error)
	QuerySelectorAll(selector string) ([]Node, error)
	TextContent() (string, error)
	// ImageSource returns the resolved src of an image element.
	ImageSource() (string, error)
	// Displayed reports whether the computed display is anything but none.
	Displayed() (bool, error)
	// Click dispatches a DOM click on the element.
	Click() error
}
