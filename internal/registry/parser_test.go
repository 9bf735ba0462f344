package registry

import "testing"

const wikiPage = `<html><body>
<div id="wiki-body">
<p>Some intro text.</p>
<table><tr><td>unrelated table</td></tr></table>
<table>
<thead><tr><th>Instance</th><th>Online</th><th>SSL expiry</th><th>Country</th><th>SSL provider</th></tr></thead>
<tbody>
<tr>
  <td><a href="https://mirror-a.example/">mirror-a.example</a></td>
  <td>✅</td><td>2026-12-01</td><td>🇩🇪</td><td>Let's Encrypt</td>
</tr>
<tr>
  <td><a href="https://Mirror-B.example">mirror-b</a></td>
  <td>❌</td><td>2026-11-15</td><td>🇺🇸</td><td>Let's Encrypt</td>
</tr>
<tr>
  <td>no link here</td>
  <td>✅</td><td>x</td><td>y</td><td>z</td>
</tr>
<tr>
  <td><a href="ftp://bad-scheme.example">bad</a></td>
  <td>✅</td><td>x</td><td>y</td><td>z</td>
</tr>
</tbody>
</table>
</div>
</body></html>`

func TestParseInstanceList(t *testing.T) {
	parsed, err := ParseInstanceList(wikiPage)
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed) != 2 {
		t.Fatalf("want 2 parsed instances, got %d: %v", len(parsed), parsed)
	}

	a, ok := parsed["mirror-a.example"]
	if !ok {
		t.Fatal("mirror-a.example missing")
	}
	if a.URL != "https://mirror-a.example" {
		t.Fatalf("trailing slash must be stripped, got %q", a.URL)
	}
	if !a.Online {
		t.Fatal("mirror-a.example must be online")
	}
	if a.Country != "🇩🇪" {
		t.Fatalf("country: got %q", a.Country)
	}

	b, ok := parsed["mirror-b.example"]
	if !ok {
		t.Fatal("domain must be lowercased")
	}
	if b.Online {
		t.Fatal("mirror-b.example must be offline")
	}
}

func TestParseInstanceList_NoWikiBody(t *testing.T) {
	if _, err := ParseInstanceList("<html><body><p>404</p></body></html>"); err != ErrNoWikiBody {
		t.Fatalf("want ErrNoWikiBody, got %v", err)
	}
}

func TestParseInstanceList_NoTable(t *testing.T) {
	html := `<html><body><div id="wiki-body"><p>moved</p></div></body></html>`
	if _, err := ParseInstanceList(html); err != ErrNoInstanceTable {
		t.Fatalf("want ErrNoInstanceTable, got %v", err)
	}
}

func TestDomainOf(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://mirror.example", "mirror.example", true},
		{"http://Mirror.Example:8080/path", "mirror.example", true},
		{"ftp://mirror.example", "", false},
		{"not a url at all://", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := DomainOf(c.in)
		if got != c.want || ok != c.ok {
			t.Fatalf("DomainOf(%q) = (%q, %v), want (%q, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}
