package model

// noMatchSentinel marks an attribute/document pair as explicitly having no
// match, distinguishing it from "not yet decided" (signal absent) and
// "confirmed to a nugget" (KindNuggetRef).
const noMatchSentinel = "\x00wannadb:no-match\x00"

// SetConfirmedMatch records that docIndex's cell for attr is nugget, the
// one at nuggetIndex within that document's nugget list.
func SetConfirmedMatch(b *DocumentBase, docIndex, nuggetIndex int, attr *Attribute) {
	doc := b.Documents[docIndex]
	doc.Signals.Set(ScopedSignalID(SignalConfirmedMatch, attr.Name), NuggetRefSignal(docIndex, nuggetIndex))
}

// SetNoMatch records that doc's cell for attr is explicitly empty and the
// document must never be shown again for this attribute.
func SetNoMatch(doc *Document, attr *Attribute) {
	doc.Signals.Set(ScopedSignalID(SignalConfirmedMatch, attr.Name), StringSignal(noMatchSentinel))
}

// ConfirmedMatch reports doc's confirmed state for attr: a resolved nugget
// if confirmed positive, isNoMatch if explicitly empty, or isSet=false if
// the user has not yet answered for this document.
func ConfirmedMatch(b *DocumentBase, doc *Document, attr *Attribute) (nugget *Nugget, isNoMatch bool, isSet bool) {
	v, ok := doc.Signals.Get(ScopedSignalID(SignalConfirmedMatch, attr.Name))
	if !ok {
		return nil, false, false
	}
	if v.Kind == KindString && v.Str == noMatchSentinel {
		return nil, true, true
	}
	if v.Kind == KindNuggetRef && v.NuggetRef != nil {
		if _, n, ok := b.Resolve(*v.NuggetRef); ok {
			return n, false, true
		}
	}
	return nil, false, false
}
