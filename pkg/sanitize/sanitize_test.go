package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTML_StripsExecutableContent(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		want        string
		notContains []string
	}{
		{
			name:        "script tag and body",
			in:          `<p>Opened 1884</p><script>alert("x")</script>`,
			want:        `<p>Opened 1884</p>`,
			notContains: []string{"script", "alert"},
		},
		{
			name:        "inline event handler",
			in:          `<p onclick="steal()">Home of Everton</p>`,
			want:        `<p>Home of Everton</p>`,
			notContains: []string{"onclick", "steal"},
		},
		{
			name:        "javascript href",
			in:          `<a href="javascript:alert(1)">click</a>`,
			want:        `<a rel="noopener noreferrer" target="_blank">click</a>`,
			notContains: []string{"javascript"},
		},
		{
			name:        "obfuscated javascript href",
			in:          `<a href=" JaVa&#x09;ScRiPt:alert(1)">click</a>`,
			notContains: []string{"alert", "ScRiPt"},
		},
		{
			name:        "style and iframe subtrees",
			in:          `<style>p{color:red}</style><iframe src="https://evil.example"><p>x</p></iframe><p>ok</p>`,
			want:        `<p>ok</p>`,
			notContains: []string{"color", "evil", "iframe"},
		},
		{
			name: "disallowed tags are unwrapped",
			in:   `<div class="lead"><span>Terraces</span> <h2>History</h2></div>`,
			want: `Terraces History`,
		},
		{
			name: "text is escaped",
			in:   `<p>1 &lt; 2 &amp; <b>3</b></p>`,
			want: `<p>1 &lt; 2 &amp; <b>3</b></p>`,
		},
		{
			name:        "comments dropped",
			in:          `<p>a<!-- <script>x</script> -->b</p>`,
			want:        `<p>ab</p>`,
			notContains: []string{"<!--"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HTML(tt.in)
			if tt.want != "" {
				assert.Equal(t, tt.want, got)
			}
			for _, nc := range tt.notContains {
				assert.NotContains(t, got, nc)
			}
		})
	}
}

func TestHTML_PreservesAllowList(t *testing.T) {
	in := `<p>The <b>ground</b> <strong>opened</strong> in <i>1892</i> <em>officially</em>.</p>` +
		`<ul><li>one</li></ul><ol><li>two</li></ol><blockquote>quote</blockquote>` +
		`<h3>Early years</h3><h4>Stands</h4>` +
		`<table><thead><tr><th colspan="2">Season</th></tr></thead>` +
		`<tbody><tr><td rowspan="2">1990</td><td>Record</td></tr></tbody></table>` +
		`<figure class="mw-default-size"><figcaption>Main stand</figcaption></figure>`

	assert.Equal(t, in, HTML(in))
}

func TestHTML_DropsDisallowedAttributes(t *testing.T) {
	got := HTML(`<td colspan="2" style="color:red" id="x">a</td><figure class="thumb" data-mw="{}">f</figure><p class="lead">p</p>`)
	assert.Equal(t, `<td colspan="2">a</td><figure class="thumb">f</figure><p>p</p>`, got)
}

func TestHTML_AnchorRewrite(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "adds rel and target",
			in:   `<a href="./Anfield" title="Anfield">Anfield</a>`,
			want: `<a href="./Anfield" title="Anfield" rel="noopener noreferrer" target="_blank">Anfield</a>`,
		},
		{
			name: "overrides existing rel and target",
			in:   `<a rel="opener" target="_self" href="https://en.wikipedia.org/wiki/Goodison_Park">G</a>`,
			want: `<a href="https://en.wikipedia.org/wiki/Goodison_Park" rel="noopener noreferrer" target="_blank">G</a>`,
		},
		{
			name: "anchor without href",
			in:   `<a name="top">top</a>`,
			want: `<a rel="noopener noreferrer" target="_blank">top</a>`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HTML(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, 1, strings.Count(got, "rel="))
			assert.Equal(t, 1, strings.Count(got, "target="))
		})
	}
}

func TestHTML_Trims(t *testing.T) {
	assert.Equal(t, "<p>x</p>", HTML("\n\t <p>x</p>\n  "))
	assert.Equal(t, "", HTML("   "))
	assert.Equal(t, "", HTML(`<script>only()</script>`))
}

func TestHTML_LinkSchemes(t *testing.T) {
	tests := []struct {
		href string
		keep bool
	}{
		{"./Stamford_Bridge_(stadium)", true},
		{"//en.wikipedia.org/wiki/Anfield", true},
		{"https://example.org/a:b", true},
		{"/wiki/File:Anfield.jpg", true},
		{"#cite_note-1", true},
		{"mailto:club@example.org", true},
		{"tel:+441512632361", true},
		{"javascript:alert(1)", false},
		{"JAVASCRIPT:alert(1)", false},
		{"java&#10;script:alert(1)", false},
		{"data:text/html;base64,PHNjcmlwdD4=", false},
		{"vbscript:msgbox", false},
	}
	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			got := HTML(`<a href="` + tt.href + `">x</a>`)
			assert.Equal(t, tt.keep, strings.Contains(got, "href="), got)
			assert.Contains(t, got, `rel="noopener noreferrer" target="_blank"`)
		})
	}
}

func TestHTML_NonNumericSpan(t *testing.T) {
	assert.Equal(t, `<td>a</td>`, HTML(`<td colspan="x onmouseover=y">a</td>`))
}
