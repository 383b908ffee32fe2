package model

import "testing"

func TestAddNuggetRejectsOutOfBoundsOffsets(t *testing.T) {
	doc := NewDocument("doc1", "hello world")
	cases := []struct {
		name       string
		start, end int
	}{
		{"negative start", -1, 3},
		{"start equals end", 3, 3},
		{"start after end", 5, 3},
		{"end past text length", 0, 100},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := doc.AddNugget(NewNugget(0, c.start, c.end))
			if err == nil {
				t.Fatalf("expected a ConsistencyViolationError for [%d:%d)", c.start, c.end)
			}
		})
	}
}

func TestAddNuggetDeduplicatesByKey(t *testing.T) {
	doc := NewDocument("doc1", "hello world")
	ok1, err := doc.AddNugget(NewNugget(0, 0, 5))
	if err != nil || !ok1 {
		t.Fatalf("first AddNugget: ok=%v err=%v", ok1, err)
	}
	ok2, err := doc.AddNugget(NewNugget(0, 0, 5))
	if err != nil {
		t.Fatalf("second AddNugget: %v", err)
	}
	if ok2 {
		t.Fatalf("expected duplicate (doc,start,end) to be rejected silently")
	}
	if len(doc.Nuggets) != 1 {
		t.Fatalf("expected 1 nugget after dedup, got %d", len(doc.Nuggets))
	}
}

func TestNuggetTextSlicesOwningDocument(t *testing.T) {
	doc := NewDocument("doc1", "Tim Cook runs Apple.")
	n := NewNugget(0, 0, len("Tim Cook"))
	if got := n.Text(doc); got != "Tim Cook" {
		t.Fatalf("Text() = %q, want %q", got, "Tim Cook")
	}
}

func TestDocumentBaseRejectsDuplicateNames(t *testing.T) {
	base := NewDocumentBase()
	if err := base.AddAttribute(NewAttribute("ceo")); err != nil {
		t.Fatal(err)
	}
	if err := base.AddAttribute(NewAttribute("ceo")); err == nil {
		t.Fatalf("expected duplicate attribute name to be rejected")
	}
	if err := base.AddDocument(NewDocument("doc1", "x")); err != nil {
		t.Fatal(err)
	}
	if err := base.AddDocument(NewDocument("doc1", "y")); err == nil {
		t.Fatalf("expected duplicate document name to be rejected")
	}
}

func TestAttributeLabelFallsBackToName(t *testing.T) {
	attr := NewAttribute("ceo")
	if got := attr.Label(); got != "ceo" {
		t.Fatalf("Label() = %q, want fallback to name %q", got, "ceo")
	}
	attr.Signals.Set(SignalLabel, StringSignal("chief executive officer"))
	if got := attr.Label(); got != "chief executive officer" {
		t.Fatalf("Label() = %q, want explicit label", got)
	}
}

func TestResolveFollowsNuggetRef(t *testing.T) {
	base := NewDocumentBase()
	doc := NewDocument("doc1", "Tim Cook runs Apple.")
	n := NewNugget(0, 0, 8)
	if _, err := doc.AddNugget(n); err != nil {
		t.Fatal(err)
	}
	if err := base.AddDocument(doc); err != nil {
		t.Fatal(err)
	}

	gotDoc, gotNugget, ok := base.Resolve(NuggetRef{DocIndex: 0, NuggetIndex: 0})
	if !ok || gotDoc != doc || gotNugget != n {
		t.Fatalf("Resolve: ok=%v doc=%v nugget=%v", ok, gotDoc, gotNugget)
	}
	if _, _, ok := base.Resolve(NuggetRef{DocIndex: 5, NuggetIndex: 0}); ok {
		t.Fatalf("expected out-of-range DocIndex to fail")
	}
	if _, _, ok := base.Resolve(NuggetRef{DocIndex: 0, NuggetIndex: 5}); ok {
		t.Fatalf("expected out-of-range NuggetIndex to fail")
	}
}

func TestFixupAfterDecodeRebuildsIndexesAndDocIndex(t *testing.T) {
	base := NewDocumentBase()
	base.Attributes = []*Attribute{NewAttribute("ceo")}
	doc0 := NewDocument("doc0", "Alice works here.")
	doc1 := NewDocument("doc1", "Bob works here.")
	// Nuggets minted with a stale DocIndex, as a codec decoding them
	// independently of their final position would produce.
	doc1.Nuggets = []*Nugget{NewNugget(99, 0, 3)}
	base.Documents = []*Document{doc0, doc1}

	base.FixupAfterDecode()

	if _, ok := base.Attribute("ceo"); !ok {
		t.Fatalf("expected attribute index rebuilt")
	}
	if idx := base.DocIndex("doc1"); idx != 1 {
		t.Fatalf("DocIndex(doc1) = %d, want 1", idx)
	}
	if doc1.Nuggets[0].DocIndex != 1 {
		t.Fatalf("expected nugget DocIndex fixed up to 1, got %d", doc1.Nuggets[0].DocIndex)
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateCatchesOutOfBoundsNugget(t *testing.T) {
	base := NewDocumentBase()
	doc := NewDocument("doc1", "short")
	doc.Nuggets = []*Nugget{{DocIndex: 0, Start: 0, End: 100}}
	base.Documents = []*Document{doc}
	if err := base.Validate(); err == nil {
		t.Fatalf("expected Validate to reject an out-of-bounds nugget")
	}
}

func TestValidateCatchesMismatchedDocIndex(t *testing.T) {
	base := NewDocumentBase()
	doc := NewDocument("doc1", "hello")
	doc.Nuggets = []*Nugget{{DocIndex: 7, Start: 0, End: 3}}
	base.Documents = []*Document{doc}
	if err := base.Validate(); err == nil {
		t.Fatalf("expected Validate to reject a nugget whose DocIndex disagrees with its document")
	}
}
