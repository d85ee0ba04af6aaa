package botfilter

import "testing"

func TestIsBot(t *testing.T) {
	f := New(CrawlerToken)

	cases := []struct {
		name  string
		agent string
		want  bool
	}{
		{"absent agent", "", false},
		{"desktop browser", "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0", false},
		{"googlebot", "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", true},
		{"platform crawler token", "Mozilla/5.0 (compatible; Gallica/2.0)", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := f.IsBot(tc.agent); got != tc.want {
				t.Fatalf("IsBot(%q) = %v, want %v", tc.agent, got, tc.want)
			}
		})
	}
}

func TestIsBot_CachedLookupIsStable(t *testing.T) {
	f := New(CrawlerToken)
	agent := "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
	first := f.IsBot(agent)
	for i := 0; i < 3; i++ {
		if f.IsBot(agent) != first {
			t.Fatalf("cached result changed between calls")
		}
	}
}
