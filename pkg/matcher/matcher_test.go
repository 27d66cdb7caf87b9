package matcher

import (
	"reflect"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/dtnitsch/pagespeed-ai/pkg/cssrules"
	"github.com/dtnitsch/pagespeed-ai/pkg/signature"
)

func sigSet(sigs ...string) signature.Set {
	s := make(signature.Set)
	for _, sig := range sigs {
		s.Add(sig)
	}
	return s
}

func TestBaseSelector(t *testing.T) {
	tests := map[string]string{
		"a:hover":              "a",
		".btn::before":         ".btn",
		"li:nth-child(2n+1) a": "li a",
		"p:not(.x):focus":      "p",
		"header nav":           "header nav",
	}
	for in, want := range tests {
		if got := BaseSelector(in); got != want {
			t.Errorf("BaseSelector(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSubstringMatch(t *testing.T) {
	rules := cssrules.Parse("test", `header{color:red} .foo{color:blue} .nav-item:hover, footer{x:y} #main::after{z:1}`)
	sigs := sigSet("header", ".nav-item", "#main")

	got := Substring{}.Match(sigs, rules).Sorted()
	want := []string{"#main::after", ".nav-item:hover", "header"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Match() = %v, want %v", got, want)
	}
}

func TestSubstringMatch_IsPermissive(t *testing.T) {
	// "nav" is a substring of ".navbar", which is accepted on purpose.
	rules := cssrules.Parse("test", `.navbar{a:b}`)
	got := Substring{}.Match(sigSet("nav"), rules)
	if !got.Has(".navbar") {
		t.Error("expected substring containment to accept .navbar")
	}
}

func TestSubstringMatch_Monotonic(t *testing.T) {
	rules := cssrules.Parse("test", `header{a:b} .hero h1{c:d} img.logo{e:f} .unrelated{g:h}`)
	small := sigSet("header")
	large := sigSet("header", ".hero", "img")

	a := Substring{}.Match(small, rules)
	b := Substring{}.Match(large, rules)
	for sel := range a {
		if !b.Has(sel) {
			t.Errorf("selector %q lost after adding signatures", sel)
		}
	}
	if len(b) <= len(a) {
		t.Errorf("expected larger signature set to grow the result: %d <= %d", len(b), len(a))
	}
}

func TestEngineMatch_SupersetOfSubstring(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<html><body><div role="banner" data-x="1"><span></span></div></body></html>`))
	if err != nil {
		t.Fatalf("failed to parse HTML: %v", err)
	}
	nodes := doc.Find("div").Nodes
	rules := cssrules.Parse("test", `[role=banner]{a:b} div{c:d} *:hover{e:f} p.x{g:h} [[bad{i:j}`)
	sigs := signature.Build(nodes)

	sub := Substring{}.Match(sigs, rules)
	eng := Engine{Nodes: nodes}.Match(sigs, rules)

	for sel := range sub {
		if !eng.Has(sel) {
			t.Errorf("engine dropped substring match %q", sel)
		}
	}
	if !eng.Has("[role=banner]") {
		t.Error("engine should match attribute selector [role=banner]")
	}
	if !eng.Has("*:hover") {
		t.Error("engine should match universal selector after stripping :hover")
	}
	if eng.Has("p.x") {
		t.Error("engine should not match p.x")
	}
}

func TestNew(t *testing.T) {
	if _, ok := New("substring", nil); !ok {
		t.Error("New(substring) failed")
	}
	if m, ok := New("", nil); !ok || m == nil {
		t.Error("New(\"\") should default to substring")
	}
	if _, ok := New("engine", nil); !ok {
		t.Error("New(engine) failed")
	}
	if _, ok := New("xpath", nil); ok {
		t.Error("New(xpath) should fail")
	}
}
