package extractor

// fakeNode is a scriptable in-memory element used to drive the offer engine
// without a browser. Children are keyed by the exact selector string the
// engine queries with.
type fakeNode struct {
	text     string
	src      string
	hidden   bool
	children map[string][]*fakeNode
	onClick  func()
	clicks   int
	err      error
}

func newFake(text string) *fakeNode {
	return &fakeNode{text: text, children: map[string][]*fakeNode{}}
}

func (n *fakeNode) with(selector string, kids ...*fakeNode) *fakeNode {
	n.children[selector] = append(n.children[selector], kids...)
	return n
}

func (n *fakeNode) remove(selector string) {
	delete(n.children, selector)
}

func (n *fakeNode) QuerySelector(selector string) (Node, error) {
	if n.err != nil {
		return nil, n.err
	}
	kids := n.children[selector]
	if len(kids) == 0 {
		return nil, nil
	}
	return kids[0], nil
}

func (n *fakeNode) QuerySelectorAll(selector string) ([]Node, error) {
	if n.err != nil {
		return nil, n.err
	}
	nodes := make([]Node, 0, len(n.children[selector]))
	for _, k := range n.children[selector] {
		nodes = append(nodes, k)
	}
	return nodes, nil
}

func (n *fakeNode) TextContent() (string, error) { return n.text, nil }

func (n *fakeNode) ImageSource() (string, error) { return n.src, nil }

func (n *fakeNode) Displayed() (bool, error) { return !n.hidden, nil }

func (n *fakeNode) Click() error {
	n.clicks++
	if n.onClick != nil {
		n.onClick()
	}
	return nil
}

// offerCard builds a carousel card with the given title and an optional
// side sheet trigger.
func offerCard(title, description, count string, trigger *fakeNode) *fakeNode {
	card := newFake("").
		with(SelectorOfferTitle, newFake(title)).
		with(SelectorOfferDescription, newFake(description))
	if count != "" {
		card.with(SelectorOfferCount, newFake(count))
	}
	if trigger != nil {
		card.with(SelectorSideSheetTrigger, trigger)
	}
	return card
}

func bankRow(bank, details, validity string) *fakeNode {
	row := newFake("").
		with(SelectorBankName, newFake(bank)).
		with(SelectorBankDetails, newFake(details))
	if validity != "" {
		row.with(SelectorBankValidity, newFake(validity))
	}
	return row
}

func emiRow(bank, details, tenure string) *fakeNode {
	row := newFake("").
		with(SelectorEMIBankName, newFake(bank)).
		with(SelectorEMIDetails, newFake(details))
	if tenure != "" {
		row.with(SelectorEMITenure, newFake(tenure))
	}
	return row
}
