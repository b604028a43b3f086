package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"newsletterbot/internal/content"
	"newsletterbot/internal/source"
	logx "newsletterbot/pkg/logx"
)

var para = "South African retailers are using AI tools to forecast demand and cut stock costs."

func articlePage() string {
	return `<html><head><title>Site</title></head><body>
<nav><p>Home | About | Contact us today please</p></nav>
<article class="post">
  <h1>AI in Retail, Week 41</h1>
  <p>` + para + `</p>
  <p>short</p>
  <p>` + para + ` Second paragraph.</p>
  <p>` + para + ` Third paragraph.</p>
  <p>Unsubscribe from these updates at any time you like.</p>
</article>
</body></html>`
}

func newServer(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchArticleSelectors(t *testing.T) {
	t.Parallel()

	srv := newServer(t, map[string]string{"/": articlePage()})
	a, err := New(Config{Pages: []string{srv.URL + "/"}}, content.MustNormalizer(content.DefaultDenylist, 0), logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cands, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	it := cands[0].Item
	if it.Title != "AI in Retail, Week 41" {
		t.Fatalf("title=%q", it.Title)
	}
	if strings.Contains(it.Body, "short") || strings.Contains(strings.ToLower(it.Body), "unsubscribe") {
		t.Fatalf("body kept filtered text: %q", it.Body)
	}
	if strings.Count(it.Body, "\n") != 2 {
		t.Fatalf("expected three paragraphs, got %q", it.Body)
	}
	if it.Source != content.SourceScrape || it.Link != srv.URL+"/" {
		t.Fatalf("unexpected item meta: %+v", it)
	}
}

func TestFetchFallsThroughPages(t *testing.T) {
	t.Parallel()

	srv := newServer(t, map[string]string{
		"/empty": `<html><body><main><p>tiny</p></main></body></html>`,
		"/good":  articlePage(),
	})
	a, _ := New(Config{Pages: []string{srv.URL + "/missing", srv.URL + "/empty", srv.URL + "/good"}}, content.MustNormalizer(nil, 0), logx.Nop())
	cands, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if cands[0].Item.Link != srv.URL+"/good" {
		t.Fatalf("link=%q", cands[0].Item.Link)
	}
}

func TestFetchLooseArea(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("Machine learning adoption keeps growing in Johannesburg. ", 12)
	srv := newServer(t, map[string]string{"/": `<html><body><div class="site-content-wrapper">` + long + `</div></body></html>`})
	a, _ := New(Config{Pages: []string{srv.URL + "/"}}, content.MustNormalizer(nil, 0), logx.Nop())
	cands, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if cands[0].Item.Title != "Latest AI Content" {
		t.Fatalf("title=%q", cands[0].Item.Title)
	}
}

func TestFetchAllPagesFail(t *testing.T) {
	t.Parallel()

	srv := newServer(t, map[string]string{})
	a, _ := New(Config{Pages: []string{srv.URL + "/a", srv.URL + "/b"}}, content.MustNormalizer(nil, 0), logx.Nop())
	_, err := a.Fetch(context.Background())
	if err == nil || errors.Is(err, source.ErrNoContent) {
		t.Fatalf("err=%v want http failure", err)
	}
}

func TestNewValidatesPages(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}, nil, logx.Nop()); err == nil {
		t.Fatalf("expected error for no pages")
	}
	if _, err := New(Config{Pages: []string{"not a url"}}, nil, logx.Nop()); err == nil {
		t.Fatalf("expected error for bad page")
	}
}
