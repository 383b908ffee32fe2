package model

// Nugget is a candidate information span: a (document, start, end) triple
// plus its signals. Start/End are byte offsets into the owning Document's
// text, with End exclusive. A Nugget does not hold a pointer to its
// Document — DocIndex is a non-owning reference resolved through the
// owning DocumentBase, so Document and Nugget never form a pointer cycle.
type Nugget struct {
	DocIndex int
	Start    int
	End      int
	Signals  Signals
}

// NewNugget constructs a Nugget with an empty signal map.
func NewNugget(docIndex, start, end int) *Nugget {
	return &Nugget{DocIndex: docIndex, Start: start, End: end, Signals: Signals{}}
}

// Text returns the Nugget's surface text given its owning Document.
func (n *Nugget) Text(doc *Document) string {
	return doc.Text[n.Start:n.End]
}

// Key identifies a Nugget for deduplication: two nuggets with identical
// (document, start, end) are equal regardless of signal contents.
type NuggetKey struct {
	DocIndex int
	Start    int
	End      int
}

func (n *Nugget) Key() NuggetKey {
	return NuggetKey{DocIndex: n.DocIndex, Start: n.Start, End: n.End}
}

// Document is an immutable (after creation) piece of source text plus an
// ordered, mutable sequence of Nuggets drawn from that text.
type Document struct {
	Name    string
	Text    string
	Nuggets []*Nugget
	Signals Signals

	nuggetKeys map[NuggetKey]int // Key -> index into Nuggets, for dedup
}

// NewDocument constructs an empty Document.
func NewDocument(name, text string) *Document {
	return &Document{
		Name:       name,
		Text:       text,
		Signals:    Signals{},
		nuggetKeys: make(map[NuggetKey]int),
	}
}

// AddNugget appends n to the document's nugget list after validating its
// offsets and checking for a duplicate. Returns false, without error, if an
// identical (document, start, end) nugget is already present.
func (d *Document) AddNugget(n *Nugget) (bool, error) {
	if n.Start < 0 || n.Start >= n.End || n.End > len(d.Text) {
		return false, violation("nugget offsets [%d:%d) out of bounds for document %q (len %d)",
			n.Start, n.End, d.Name, len(d.Text))
	}
	key := n.Key()
	if d.nuggetKeys == nil {
		d.nuggetKeys = make(map[NuggetKey]int)
	}
	if _, exists := d.nuggetKeys[key]; exists {
		return false, nil
	}
	d.nuggetKeys[key] = len(d.Nuggets)
	d.Nuggets = append(d.Nuggets, n)
	return true, nil
}

// NuggetAt returns the nugget at (start, end) if one has been added.
func (d *Document) NuggetAt(start, end int) (*Nugget, bool) {
	for _, n := range d.Nuggets {
		if n.Start == start && n.End == end {
			return n, true
		}
	}
	return nil, false
}

// Attribute is one target table column: a name plus accumulated signals
// (its seed label, memoized label embedding, and so on).
type Attribute struct {
	Name    string
	Signals Signals
}

func NewAttribute(name string) *Attribute {
	return &Attribute{Name: name, Signals: Signals{}}
}

// Label returns the attribute's seed label signal, falling back to its
// name if no explicit label was set.
func (a *Attribute) Label() string {
	if lbl, ok := a.Signals.GetString(SignalLabel); ok && lbl != "" {
		return lbl
	}
	return a.Name
}

// DocumentBase is the unit of storage: an ordered list of Attributes and an
// ordered list of Documents. One matching engine acts on one base at a time.
type DocumentBase struct {
	Attributes []*Attribute
	Documents  []*Document

	attrIndex map[string]int
	docIndex  map[string]int
}

// NewDocumentBase constructs an empty DocumentBase.
func NewDocumentBase() *DocumentBase {
	return &DocumentBase{
		attrIndex: make(map[string]int),
		docIndex:  make(map[string]int),
	}
}

// AddAttribute appends attr, rejecting a duplicate name.
func (b *DocumentBase) AddAttribute(attr *Attribute) error {
	if _, exists := b.attrIndex[attr.Name]; exists {
		return violation("duplicate attribute name %q", attr.Name)
	}
	b.attrIndex[attr.Name] = len(b.Attributes)
	b.Attributes = append(b.Attributes, attr)
	return nil
}

// AddDocument appends doc, rejecting a duplicate name.
func (b *DocumentBase) AddDocument(doc *Document) error {
	if _, exists := b.docIndex[doc.Name]; exists {
		return violation("duplicate document name %q", doc.Name)
	}
	b.docIndex[doc.Name] = len(b.Documents)
	b.Documents = append(b.Documents, doc)
	return nil
}

// Attribute looks up an attribute by name.
func (b *DocumentBase) Attribute(name string) (*Attribute, bool) {
	idx, ok := b.attrIndex[name]
	if !ok {
		return nil, false
	}
	return b.Attributes[idx], true
}

// Document looks up a document by name.
func (b *DocumentBase) Document(name string) (*Document, bool) {
	idx, ok := b.docIndex[name]
	if !ok {
		return nil, false
	}
	return b.Documents[idx], true
}

// DocIndex returns the stable index of doc within b, or -1.
func (b *DocumentBase) DocIndex(name string) int {
	if idx, ok := b.docIndex[name]; ok {
		return idx
	}
	return -1
}

// Resolve follows a NuggetRef back to its Nugget, returning the owning
// Document as well for convenience.
func (b *DocumentBase) Resolve(ref NuggetRef) (*Document, *Nugget, bool) {
	if ref.DocIndex < 0 || ref.DocIndex >= len(b.Documents) {
		return nil, nil, false
	}
	doc := b.Documents[ref.DocIndex]
	if ref.NuggetIndex < 0 || ref.NuggetIndex >= len(doc.Nuggets) {
		return nil, nil, false
	}
	return doc, doc.Nuggets[ref.NuggetIndex], true
}

// FixupAfterDecode recomputes attrIndex/docIndex/nuggetKeys and every
// Nugget's DocIndex from the slices. A codec decodes Documents and
// Nuggets independently of their final position in the base, so this
// must run once after all Add* calls complete and before the base is
// used (the persistence codec calls this; nothing else should need to).
func (b *DocumentBase) FixupAfterDecode() {
	b.rebuildIndexes()
}

// rebuildIndexes recomputes attrIndex/docIndex/nuggetKeys from the slices,
// used after decoding a base from persistence.
func (b *DocumentBase) rebuildIndexes() {
	b.attrIndex = make(map[string]int, len(b.Attributes))
	for i, a := range b.Attributes {
		b.attrIndex[a.Name] = i
	}
	b.docIndex = make(map[string]int, len(b.Documents))
	for i, d := range b.Documents {
		b.docIndex[d.Name] = i
		d.nuggetKeys = make(map[NuggetKey]int, len(d.Nuggets))
		for j, n := range d.Nuggets {
			n.DocIndex = i
			d.nuggetKeys[n.Key()] = j
		}
	}
}

// Validate performs the single consistency pass run before the first
// matching stage on a DocumentBase that may have been produced
// concurrently by the extractor stage: every nugget's offsets must be
// in bounds, and attribute/document names must be unique.
func (b *DocumentBase) Validate() error {
	seenAttrs := make(map[string]bool, len(b.Attributes))
	for _, a := range b.Attributes {
		if seenAttrs[a.Name] {
			return violation("duplicate attribute name %q", a.Name)
		}
		seenAttrs[a.Name] = true
	}
	seenDocs := make(map[string]bool, len(b.Documents))
	for i, d := range b.Documents {
		if seenDocs[d.Name] {
			return violation("duplicate document name %q", d.Name)
		}
		seenDocs[d.Name] = true
		seen := make(map[NuggetKey]bool, len(d.Nuggets))
		for _, n := range d.Nuggets {
			if n.DocIndex != i {
				return violation("nugget in document %q carries DocIndex %d, want %d", d.Name, n.DocIndex, i)
			}
			if n.Start < 0 || n.Start >= n.End || n.End > len(d.Text) {
				return violation("nugget [%d:%d) out of bounds for document %q (len %d)", n.Start, n.End, d.Name, len(d.Text))
			}
			key := n.Key()
			if seen[key] {
				return violation("duplicate nugget (%d,%d,%d) in document %q", key.DocIndex, key.Start, key.End, d.Name)
			}
			seen[key] = true
		}
	}
	return nil
}
